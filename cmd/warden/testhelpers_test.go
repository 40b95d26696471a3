package main

import (
	"bytes"
	"testing"

	"github.com/harunnryd/warden/internal/config"

	"github.com/spf13/cobra"
)

const (
	testSecret      = "cli-test-secret"
	testOperatorKey = "cli-operator-key"
)

// testCommand returns a bare command carrying the persistent flags the
// subcommands read, with output captured.
func testCommand(output string) (*cobra.Command, *bytes.Buffer) {
	cmd := &cobra.Command{}
	cmd.Flags().String("output", output, "")
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	return cmd, buf
}

// useConfig swaps the package config for the duration of the test.
func useConfig(t *testing.T, c *config.Config) {
	t.Helper()
	previous := cfg
	cfg = c
	t.Cleanup(func() { cfg = previous })
}
