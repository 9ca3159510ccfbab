// Command notifierctl administers the notifier's stored configuration:
// monitored channels, the tenant webhook, YouTube OAuth and the schema.
package main

import (
	"os"

	"github.com/onnwee/stream-notifier/cmd/notifierctl/cmd"
)

// version is set at build time via ldflags
var version = "dev"

func main() {
	cmd.SetVersion(version)
	if err := cmd.Execute(); err != nil {
		os.Stderr.WriteString("Error: " + err.Error() + "\n")
		os.Exit(1)
	}
}
