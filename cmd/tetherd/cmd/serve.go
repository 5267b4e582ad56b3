package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"syscall"
	"time"

	"os/signal"

	"github.com/spf13/cobra"

	"github.com/plexsphere/tetherd/internal/busstub"
	"github.com/plexsphere/tetherd/internal/ctlapi"
	"github.com/plexsphere/tetherd/internal/daemon"
	"github.com/plexsphere/tetherd/internal/dhcpsrv"
	"github.com/plexsphere/tetherd/internal/dnsproxy"
	"github.com/plexsphere/tetherd/internal/ipv6pd"
	"github.com/plexsphere/tetherd/internal/ippool"
	"github.com/plexsphere/tetherd/internal/netctl"
	"github.com/plexsphere/tetherd/internal/netreg"
	"github.com/plexsphere/tetherd/internal/poolwire"
	"github.com/plexsphere/tetherd/internal/privnet"
	"github.com/plexsphere/tetherd/internal/tethering"
)

// drainTimeout is the maximum time for graceful shutdown.
const drainTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the tetherd daemon",
	Long:  "Run the tetherd daemon: builds the bridge, DHCP, DNS, and private-network subsystems and blocks until signaled.",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := daemon.ParseConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("tetherd serve: %w", err)
	}

	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting tetherd", "version", buildVersion)

	bridgeCtl := netctl.NewBridgeController(logger)
	natCtl := netctl.NewNATController(logger)
	addrCtl := netctl.NewAddressConfigurator(logger)
	tunFactory := netctl.NewTunnelFactory(logger)
	linkWatcher := netctl.NewLinkWatcher(logger)

	pool := ippool.NewPool(ippool.NewNetlinkWatcher())
	registry := netreg.NewRegistry()

	dhcpServer := dhcpsrv.NewServer(logger)
	dnsProxy := dnsproxy.NewProxy(logger)
	dnsProxy.SetUpstreams(cfg.Tethering.FallbackNameservers)
	ipv6Delegator := ipv6pd.NewDelegator(logger)

	engine := tethering.New(
		logger, cfg.Tethering,
		bridgeCtl, addrCtl, poolwire.NewTetheringAllocator(pool),
		dhcpServer, natCtl, dnsProxy, ipv6Delegator, registry,
	)

	replySink := busstub.NewReplySink(logger)
	ownerWatcher := busstub.NewOwnerWatcher(logger)
	privManager := privnet.New(
		logger, cfg.PrivNet,
		tunFactory, bridgeCtl, addrCtl, linkWatcher, ownerWatcher,
		natCtl, poolwire.NewPrivNetAllocator(pool), engine, replySink,
	)

	if err := bridgeCtl.Create(cfg.Tethering.BridgeName); err != nil {
		return fmt.Errorf("tetherd serve: create bridge: %w", err)
	}

	ctlCfg := cfg.CtlAPI
	ctlSrv := ctlapi.NewServer(ctlCfg, engine, privManager, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		engine.RunRestartLoop(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := ctlSrv.Start(ctx); err != nil {
			logger.Error("control API stopped", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down", "reason", ctx.Err())

	if engine.ActiveMode() != tethering.ModeNone {
		if err := engine.Disable(engine.ActiveMode()); err != nil {
			logger.Error("shutdown: disable tethering failed", "error", err)
		}
	}
	if err := bridgeCtl.Remove(cfg.Tethering.BridgeName); err != nil {
		logger.Warn("shutdown: remove bridge failed", "error", err)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(drainTimeout):
		logger.Warn("drain timeout exceeded, forcing exit")
	}

	logger.Info("tetherd stopped")
	return nil
}

func setupLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
