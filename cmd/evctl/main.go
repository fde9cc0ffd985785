package main

import (
	"os"

	"github.com/admetry-labs/admetry/internal/evctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
