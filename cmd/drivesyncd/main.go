package main

import (
	"os"

	"github.com/celalgokce/gdrive-sync-clean/internal/adapters/driving/cli"
)

// version is overridden at build time:
//
//	go build -ldflags "-X main.version=v1.0.0" ./cmd/drivesyncd
var version = "dev"

func main() {
	cli.SetVersion(version)
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
