package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
)

var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// 进程退出码
const (
	exitOK       = 0
	exitFailure  = 1
	exitProtocol = 70 // EX_SOFTWARE：远端违反了 API 约定
)

// exitError 携带非默认的退出码
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

func (e *exitError) Unwrap() error { return e.err }

func main() {
	os.Exit(execute(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func execute(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	root := newRootCmd(stdin, stdout, stderr)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}

	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil && !errors.Is(ee.err, errItemsFailed) {
			fmt.Fprintf(stderr, "error: %v\n", ee.err)
		}
		return ee.code
	}
	fmt.Fprintf(stderr, "error: %v\n", err)
	return exitFailure
}
