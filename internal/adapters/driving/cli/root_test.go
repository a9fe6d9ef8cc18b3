package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRootCmd_Use(t *testing.T) {
	assert.Equal(t, "drivesync", rootCmd.Use)
}

func TestRootCmd_HasAllSubcommands(t *testing.T) {
	want := map[string]bool{
		"serve":         false,
		"health-check":  false,
		"dead-letters":  false,
		"migrate-state": false,
		"reset-state":   false,
		"version":       false,
	}
	for _, cmd := range rootCmd.Commands() {
		if _, ok := want[cmd.Name()]; ok {
			want[cmd.Name()] = true
		}
	}
	for name, found := range want {
		assert.True(t, found, "missing subcommand %s", name)
	}
}

func TestRootCmd_ConfigFlag(t *testing.T) {
	flag := rootCmd.PersistentFlags().Lookup("config")
	assert.NotNil(t, flag)
	assert.Equal(t, "c", flag.Shorthand)
}
