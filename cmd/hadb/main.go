package main

import (
	"os"

	"github.com/hadb-go/hadb/cmd/hadb/command"
)

func main() {
	if err := command.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
