package main

import (
	"os"

	"github.com/billowhq/billow/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
