package main

import (
	"os"

	"github.com/osintlab/dronewatch/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
