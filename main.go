// Command comictl is the translation orchestrator for comic page images.
package main

import (
	"os"

	"go.aimuz.me/comictl/cmd"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cmd.SetVersion(version + " (" + commit + ", " + date + ")")
	if err := cmd.Execute(); err != nil {
		os.Stderr.WriteString("Error: " + err.Error() + "\n")
		os.Exit(1)
	}
}
