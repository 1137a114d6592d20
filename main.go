package main

import (
	"os"

	"github.com/filament-dev/filament/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
