package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/banux/nxt-shelf/internal/cli"
	"github.com/banux/nxt-shelf/internal/config"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
