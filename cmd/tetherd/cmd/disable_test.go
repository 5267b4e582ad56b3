package cmd

import (
	"bytes"
	"strings"
	"testing"
)

func TestDisableCommand_DaemonNotRunning(t *testing.T) {
	cfgFile = writeTempConfig(t)

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"disable"})

	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("expected error when the daemon is not running")
	}
	if !strings.Contains(err.Error(), "tetherd disable") {
		t.Errorf("error should mention 'tetherd disable', got: %v", err)
	}
}
