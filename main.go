package main

import (
	"os"

	"listings-ingest/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
