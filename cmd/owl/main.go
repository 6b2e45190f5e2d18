package main

import (
	"os"

	"github.com/Dicklesworthstone/owl/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
