package main

import (
	"os"

	"snapseal/cmd/snapseal-cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
