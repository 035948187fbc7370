// Command meshcast runs one node of the broadcast workload under Maelstrom.
//
// The node speaks newline-delimited JSON on stdin and stdout and logs to
// stderr:
//
//	maelstrom test -w broadcast --bin ./meshcast --node-count 25 --time-limit 20 --rate 100 --latency 100
package main

import (
	"fmt"
	"io"
	"os"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cmd := newRootCommand(stdin, stdout, stderr)
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(stderr, "meshcast: %v\n", err)
		return 1
	}
	return 0
}
