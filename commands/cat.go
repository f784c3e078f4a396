package commands

import (
	"fmt"
	"io"

	"github.com/josephlewis42/tinysh/core/vos"
)

// Cat implements the UNIX cat command. With no files, or the file "-", it
// copies standard input.
func Cat(virtOS vos.VOS) int {
	cmd := &SimpleCommand{
		Use:   "cat [OPTION]... [FILE]...",
		Short: "Concatenate FILE(s) to standard output.",
	}

	return cmd.Run(virtOS, func() int {
		files := cmd.Flags().Args()
		if len(files) == 0 {
			files = []string{"-"}
		}

		status := 0
		for _, name := range files {
			if name == "-" {
				io.Copy(virtOS.Stdout(), virtOS.Stdin())
				continue
			}

			fd, err := virtOS.Fs().Open(virtOS.Abs(name))
			if err != nil {
				fmt.Fprintf(virtOS.Stderr(), "cat: %s: No such file or directory\n", name)
				status = 1
				continue
			}

			if _, err := io.Copy(virtOS.Stdout(), fd); err != nil {
				fmt.Fprintf(virtOS.Stderr(), "cat: %s: %v\n", name, err)
				status = 1
			}
			fd.Close()
		}

		return status
	})
}

var _ vos.ProcessFunc = Cat

func init() {
	addCmd("cat", Cat)
}
