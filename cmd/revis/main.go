package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/mu-hashmi/revis/internal/interfaces/cli"
	apperrors "github.com/mu-hashmi/revis/pkg/errors"
)

func main() {
	os.Exit(run())
}

func run() int {
	root := cli.NewRootCommand()
	err := root.Execute()
	if err == nil {
		return 0
	}

	if errors.Is(err, cli.ErrInterrupted) {
		return 130
	}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		fmt.Fprintln(os.Stderr, appErr.Message)
	} else {
		fmt.Fprintln(os.Stderr, err)
	}
	return 1
}
