// Command ebillmanager serves the bill API, runs the scheduled billing
// worker and offers offline bill tooling.
package main

import (
	"os"

	"github.com/bher20/ebillmanager/cmd/ebillmanager/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
