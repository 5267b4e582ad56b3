package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/plexsphere/tetherd/internal/ctlapi"
	"github.com/plexsphere/tetherd/internal/daemon"
)

var (
	enableMode     string
	enableUpstream string
)

var enableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Enable tethering on a running daemon",
	Long:  "Connect to the local daemon via its control socket and enable NAT or bridged-AP tethering.",
	RunE:  runEnable,
}

func init() {
	enableCmd.Flags().StringVar(&enableMode, "mode", "nat", "tethering mode: nat or bridged-ap")
	enableCmd.Flags().StringVar(&enableUpstream, "upstream", "", "upstream interface name (defaults to the configured upstream)")
	rootCmd.AddCommand(enableCmd)
}

func runEnable(cmd *cobra.Command, _ []string) error {
	cfg, err := daemon.ParseConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("tetherd enable: %w", err)
	}

	upstream := enableUpstream
	if upstream == "" {
		upstream = cfg.Upstream
	}
	if upstream == "" {
		return fmt.Errorf("tetherd enable: no upstream interface given (pass --upstream or set it in config)")
	}

	client := ctlapi.NewClient(cfg.CtlAPI.SocketPath)
	started, err := client.Enable(enableMode, upstream)
	if err != nil {
		return fmt.Errorf("tetherd enable: %w", err)
	}

	w := cmd.OutOrStdout()
	if started {
		fmt.Fprintf(w, "tethering enabled (mode=%s upstream=%s)\n", enableMode, upstream)
	} else {
		fmt.Fprintf(w, "tethering already enabled (mode=%s)\n", enableMode)
	}
	return nil
}
