package main

import (
	"os"

	branchmemcmder "github.com/papercomputeco/branchmem/cmd/branchmem"
)

func main() {
	cmd := branchmemcmder.NewBranchmemCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
