package main

import (
	"os"

	"github.com/tokenchat/tokenchat/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
