package cmd

import (
	"bytes"
	"strings"
	"testing"
)

func TestEnableCommand_DaemonNotRunning(t *testing.T) {
	cfgFile = writeTempConfig(t)
	enableUpstream = "eth0"
	t.Cleanup(func() { enableUpstream = "" })

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"enable", "--upstream", "eth0"})

	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("expected error when the daemon is not running")
	}
	if !strings.Contains(err.Error(), "tetherd enable") {
		t.Errorf("error should mention 'tetherd enable', got: %v", err)
	}
}

func TestEnableCommand_NoUpstreamConfigured(t *testing.T) {
	cfgFile = writeTempConfig(t)

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"enable"})

	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("expected error when no upstream is given or configured")
	}
	if !strings.Contains(err.Error(), "no upstream interface given") {
		t.Errorf("error should explain the missing upstream, got: %v", err)
	}
}
