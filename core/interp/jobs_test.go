package interp

import (
	"testing"
	"time"

	"github.com/josephlewis42/tinysh/core/vos"
	"github.com/josephlewis42/tinysh/core/vos/vostest"
	"github.com/stretchr/testify/assert"
)

func TestJobs(t *testing.T) {
	jobs := NewJobs()
	proc := vostest.NewDeterministicProc(nil)

	release := make(chan struct{})
	first := jobs.Start(proc, func(vos.VOS) int { <-release; return 3 })
	second := jobs.Start(proc, func(vos.VOS) int { return 0 })

	assert.Equal(t, []int{first, second}, jobs.IDs())

	code, ok := jobs.Wait(second)
	assert.True(t, ok)
	assert.Equal(t, 0, code)

	// The first job is still running so there's nothing to reap.
	assert.Empty(t, jobs.Reap())

	close(release)
	code, ok = jobs.Wait(first)
	assert.True(t, ok)
	assert.Equal(t, 3, code)

	_, ok = jobs.Wait(first)
	assert.False(t, ok)
}

func TestJobs_Reap(t *testing.T) {
	jobs := NewJobs()
	proc := vostest.NewDeterministicProc(nil)

	jobs.Start(proc, func(vos.VOS) int { return 5 })
	jobs.WaitAll()
	assert.Empty(t, jobs.IDs())

	id := jobs.Start(proc, func(vos.VOS) int { return 7 })

	var reaped []JobStatus
	assert.Eventually(t, func() bool {
		reaped = append(reaped, jobs.Reap()...)
		return len(reaped) == 1
	}, time.Second, time.Millisecond)

	assert.Equal(t, []JobStatus{{ID: id, Status: 7}}, reaped)
	assert.Empty(t, jobs.IDs())
}
