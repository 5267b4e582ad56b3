package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/plexsphere/tetherd/internal/ctlapi"
	"github.com/plexsphere/tetherd/internal/daemon"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show tethering daemon status",
	Long:  "Connect to the local daemon via its control socket and display its current state.",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg, err := daemon.ParseConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("tetherd status: %w", err)
	}

	client := ctlapi.NewClient(cfg.CtlAPI.SocketPath)
	status, err := client.Status()
	if err != nil {
		return fmt.Errorf("tetherd status: %w", err)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Mode:             %s\n", status.Mode)
	fmt.Fprintf(w, "Enable count:     %d\n", status.EnableCount)
	fmt.Fprintf(w, "Private networks: %d\n", status.PrivateNetworks)
	return nil
}
