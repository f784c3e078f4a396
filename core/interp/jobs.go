package interp

import (
	"sort"
	"sync"

	"github.com/josephlewis42/tinysh/core/vos"
)

// Jobs is a table of background jobs. Finished jobs stay in the table until
// they're waited for or reaped.
type Jobs struct {
	mu   sync.Mutex
	next int
	jobs map[int]*job
}

type job struct {
	proc vos.Process
	done chan struct{}
}

// JobStatus is the outcome of a finished job.
type JobStatus struct {
	ID     int
	Status int
}

// NewJobs creates an empty job table.
func NewJobs() *Jobs {
	return &Jobs{jobs: make(map[int]*job)}
}

// Start runs fn against p in the background and returns the job id.
func (j *Jobs) Start(p *vos.Proc, fn vos.ProcessFunc) int {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.next++
	jb := &job{done: make(chan struct{})}
	jb.proc = vos.StartFunc(p, fn, func() { close(jb.done) })
	j.jobs[j.next] = jb

	return j.next
}

// IDs returns the ids of all jobs in the table in ascending order.
func (j *Jobs) IDs() []int {
	j.mu.Lock()
	defer j.mu.Unlock()

	var out []int
	for id := range j.jobs {
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}

// Wait blocks until job id finishes and removes it from the table. The
// second return value is false if there is no such job.
func (j *Jobs) Wait(id int) (int, bool) {
	j.mu.Lock()
	jb, ok := j.jobs[id]
	delete(j.jobs, id)
	j.mu.Unlock()

	if !ok {
		return StatusNotFound, false
	}

	code, _ := jb.proc.Wait()
	return code, true
}

// WaitAll waits for every job in the table.
func (j *Jobs) WaitAll() {
	for _, id := range j.IDs() {
		j.Wait(id)
	}
}

// Reap removes finished jobs from the table without blocking and returns
// their statuses.
func (j *Jobs) Reap() []JobStatus {
	j.mu.Lock()
	var finished []int
	for id, jb := range j.jobs {
		select {
		case <-jb.done:
			finished = append(finished, id)
		default:
		}
	}
	j.mu.Unlock()

	sort.Ints(finished)

	var out []JobStatus
	for _, id := range finished {
		if code, ok := j.Wait(id); ok {
			out = append(out, JobStatus{ID: id, Status: code})
		}
	}
	return out
}
