package main

import (
	"os"

	"github.com/atlas-desktop/crossover-trader/cmd/crossover/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
