// Package main is the entry point for the taskctl admin CLI.
package main

import (
	"os"

	"github.com/ahmetcdevelopment/task-management-api/cmd/taskctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
