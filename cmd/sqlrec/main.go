package main

import (
	"os"

	"github.com/leporo/sqlrec/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
