package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/plexsphere/tetherd/internal/ctlapi"
	"github.com/plexsphere/tetherd/internal/daemon"
)

var disableMode string

var disableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Disable tethering on a running daemon",
	Long:  "Connect to the local daemon via its control socket and disable tethering.",
	RunE:  runDisable,
}

func init() {
	disableCmd.Flags().StringVar(&disableMode, "mode", "nat", "tethering mode: nat or bridged-ap")
	rootCmd.AddCommand(disableCmd)
}

func runDisable(cmd *cobra.Command, _ []string) error {
	cfg, err := daemon.ParseConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("tetherd disable: %w", err)
	}

	client := ctlapi.NewClient(cfg.CtlAPI.SocketPath)
	if err := client.Disable(disableMode); err != nil {
		return fmt.Errorf("tetherd disable: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "tethering disabled (mode=%s)\n", disableMode)
	return nil
}
