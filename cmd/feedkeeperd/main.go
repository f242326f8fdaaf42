package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/GPTx-global/feedkeeper/oracle/daemon"
)

func main() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)

		var exitErr *daemon.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}
