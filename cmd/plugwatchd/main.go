package main

import (
	"fmt"
	"os"

	"github.com/phinze/plugwatch/pkg/cli"
)

func main() {
	if err := cli.NewDaemonRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
