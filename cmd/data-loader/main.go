package main

import (
	"context"
	"fmt"
	"os"

	"github.com/randyridgley/cdk-athena-federated/internal/command"
)

func main() {
	os.Exit(realMain())
}

func realMain() int {
	app := command.InitApp(command.DefaultDeps())
	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}
