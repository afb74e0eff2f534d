// Command healthmulti monitors a fleet of HTTP services and reports
// aggregate health via a live dashboard, a one-shot check, or a rendered
// export.
package main

import (
	"os"

	"github.com/W0rldHacker/health-multi/internal/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:], os.Stdout, os.Stderr))
}
