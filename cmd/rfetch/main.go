package main

import (
	"fmt"
	"os"

	"github.com/rfetch/rfetch/cmd/rfetch/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
