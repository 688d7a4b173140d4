// go8021x-supplicant is an IEEE 802.1X EAPOL supplicant daemon.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/go8021x/go8021x/internal/config"
	"github.com/go8021x/go8021x/internal/dot1xmetrics"
	"github.com/go8021x/go8021x/internal/eapmd5"
	"github.com/go8021x/go8021x/internal/eapol"
	"github.com/go8021x/go8021x/internal/hostapd"
	"github.com/go8021x/go8021x/internal/netio"
	appversion "github.com/go8021x/go8021x/internal/version"
)

// shutdownTimeout is the maximum time to wait for the metrics HTTP server
// to drain active connections during graceful shutdown.
const shutdownTimeout = 10 * time.Second

// readFrameBuf bounds the buffer used to read one Ethernet frame.
const readFrameBuf = netio.MaxFrameSize

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to configuration file (YAML)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("failed to load configuration",
			slog.String("error", err.Error()),
		)
		return 1
	}

	logLevel := new(slog.LevelVar)
	logLevel.Set(config.ParseLogLevel(cfg.Log.Level))
	logger := newLoggerWithLevel(cfg.Log, logLevel)

	logger.Info("go8021x-supplicant starting",
		slog.String("version", appversion.Version),
		slog.String("interface", cfg.Port.Interface),
		slog.String("metrics_addr", cfg.Metrics.Addr),
		slog.Duration("held_period", cfg.Port.Duration(cfg.Port.HeldPeriod)),
		slog.Duration("auth_period", cfg.Port.Duration(cfg.Port.AuthPeriod)),
	)

	reg := prometheus.NewRegistry()
	collector := dot1xmetrics.NewCollector(reg)

	paeSock, err := netio.NewPAESocket(cfg.Port.Interface)
	if err != nil {
		logger.Error("failed to open PAE socket", slog.String("error", err.Error()))
		return 1
	}
	defer func() {
		if err := paeSock.Close(); err != nil {
			logger.Warn("failed to close PAE socket", slog.String("error", err.Error()))
		}
	}()

	eng := eapmd5.New(cfg.Port.Identity, []byte(cfg.Port.Password))
	wepDriver := netio.NewLoggingKeyDriver(logger, func(_ bool, _ uint8, _ int) {
		collector.IncKeysInstalled(cfg.Port.Interface)
	})

	sup, err := newSupplicant(cfg, paeSock, wepDriver, eng, logger)
	if err != nil {
		logger.Error("failed to construct supplicant", slog.String("error", err.Error()))
		return 1
	}

	if err := runDaemon(cfg, sup, paeSock, eng, collector, reg, logger, *configPath, logLevel); err != nil {
		logger.Error("go8021x-supplicant exited with error", slog.String("error", err.Error()))
		return 1
	}

	logger.Info("go8021x-supplicant stopped")
	return 0
}

// newSupplicant builds the eapol.Supplicant bound to the configured
// transport, key driver, and EAP engine.
func newSupplicant(
	cfg *config.Config,
	transport eapol.Transport,
	driver eapol.Driver,
	eng eapol.EAPEngine,
	logger *slog.Logger,
) (*eapol.Supplicant, error) {
	eapCfg := eapol.Config{
		HeldPeriod:      cfg.Port.HeldPeriod,
		AuthPeriod:      cfg.Port.AuthPeriod,
		StartPeriod:     cfg.Port.StartPeriod,
		MaxStart:        cfg.Port.MaxStart,
		Accept8021xKeys: cfg.Port.Accept8021xKeys,
		RequiredKeys:    cfg.Port.RequiredKeys,
	}

	sup, err := eapol.NewSupplicant(transport, driver, eng, eapCfg, eapol.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("new supplicant: %w", err)
	}

	return sup, nil
}

// runDaemon runs the supplicant's event loops (receive, tick, interface
// monitor), the metrics HTTP server, the optional D-Bus control bridge,
// and systemd integration using an errgroup with signal-aware context for
// graceful shutdown.
func runDaemon(
	cfg *config.Config,
	sup *eapol.Supplicant,
	paeSock *netio.PAESocket,
	eng *eapmd5.Engine,
	collector *dot1xmetrics.Collector,
	reg *prometheus.Registry,
	logger *slog.Logger,
	configPath string,
	logLevel *slog.LevelVar,
) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	sup.Attach(gCtx)
	sup.NotifyPortControl(gCtx, parsePortControl(cfg.Port.PortControl))
	sup.NotifyPortEnabled(gCtx, true)
	defer sup.Detach()

	bridge, err := startCtrlBridge(gCtx, cfg.Ctrl, sup, logger)
	if err != nil {
		return fmt.Errorf("start control bridge: %w", err)
	}
	defer closeCtrlBridge(bridge, logger)

	metricsSrv := newMetricsServer(cfg.Metrics, reg)

	g.Go(func() error {
		return runReceiveLoop(gCtx, sup, paeSock, eng, collector, cfg.Port.Interface, logger)
	})
	g.Go(func() error {
		return runTicker(gCtx, sup)
	})

	mon := newInterfaceMonitor(cfg.Port.Interface, logger)
	g.Go(func() error {
		return mon.Run(gCtx)
	})
	g.Go(func() error {
		return runInterfaceEvents(gCtx, sup, mon, logger)
	})

	g.Go(func() error {
		logger.Info("metrics server listening", slog.String("addr", cfg.Metrics.Addr))
		return listenAndServe(gCtx, metricsSrv, cfg.Metrics.Addr)
	})

	g.Go(func() error {
		return runWatchdog(gCtx, logger)
	})

	sigHUP := make(chan os.Signal, 1)
	signal.Notify(sigHUP, syscall.SIGHUP)
	g.Go(func() error {
		defer signal.Stop(sigHUP)
		handleSIGHUP(gCtx, sigHUP, configPath, logLevel, sup, logger)
		return nil
	})

	notifyReady(logger)

	g.Go(func() error {
		<-gCtx.Done()
		return gracefulShutdown(gCtx, sup, logger, metricsSrv)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("run daemon: %w", err)
	}
	return nil
}

// -------------------------------------------------------------------------
// Receive Loop — PAE socket -> Supplicant
// -------------------------------------------------------------------------

// runReceiveLoop reads raw EAPOL frames off the link and drives the
// supplicant, polling the EAP engine after every frame for a terminal
// success/failure outcome the core does not detect on its own.
func runReceiveLoop(
	ctx context.Context,
	sup *eapol.Supplicant,
	paeSock *netio.PAESocket,
	eng *eapmd5.Engine,
	collector *dot1xmetrics.Collector,
	iface string,
	logger *slog.Logger,
) error {
	buf := make([]byte, readFrameBuf)

	var notifiedSuccess, notifiedFail bool

	for {
		if ctx.Err() != nil {
			return nil
		}

		src, payload, err := paeSock.ReadFrame(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Warn("read EAPOL frame failed", slog.String("error", err.Error()))
			collector.IncInvalidFrames(iface)
			continue
		}

		before := sup.GetStatus()
		sup.RxEAPOL(ctx, src, payload)
		after := sup.GetStatus()

		if after.PAEState != before.PAEState {
			collector.RecordPAETransition(iface, before.PAEState.String(), after.PAEState.String())
		}
		if after.BackendState != before.BackendState {
			collector.RecordBackendTransition(iface, before.BackendState.String(), after.BackendState.String())
		}
		collector.SetPortAuthorized(iface, after.PortStatus == eapol.PortAuthorized)

		if eng.IsSuccess() && !notifiedSuccess {
			notifiedSuccess, notifiedFail = true, false
			sup.NotifyEAPSuccess(ctx)
		} else if eng.IsFail() && !notifiedFail {
			notifiedFail, notifiedSuccess = true, false
			sup.NotifyEAPFail(ctx)
		} else if !eng.IsSuccess() && !eng.IsFail() {
			notifiedSuccess, notifiedFail = false, false
		}
	}
}

// runTicker drives the 1-Hz timer tick the supplicant core expects its
// caller to register.
func runTicker(ctx context.Context, sup *eapol.Supplicant) error {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			sup.Tick(ctx)
		}
	}
}

// runInterfaceEvents forwards link up/down events to the supplicant's
// portEnabled notifier.
func runInterfaceEvents(ctx context.Context, sup *eapol.Supplicant, mon netio.InterfaceMonitor, logger *slog.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-mon.Events():
			if !ok {
				return nil
			}
			logger.Info("interface event", slog.String("ifname", ev.IfName), slog.Bool("up", ev.Up))
			sup.NotifyPortEnabled(ctx, ev.Up)
		}
	}
}

// -------------------------------------------------------------------------
// Control Bridge — D-Bus
// -------------------------------------------------------------------------

// newInterfaceMonitor opens a real link-state monitor for ifName, falling
// back to a no-op stub (logged, non-fatal) if the netlink socket cannot be
// opened, e.g. insufficient capabilities.
func newInterfaceMonitor(ifName string, logger *slog.Logger) netio.InterfaceMonitor {
	mon, err := netio.NewNetlinkInterfaceMonitor(ifName, logger)
	if err != nil {
		logger.Warn("interface monitor unavailable, portEnabled will not track link state",
			slog.String("error", err.Error()),
		)
		return netio.NewStubInterfaceMonitor(logger)
	}
	return mon
}

func startCtrlBridge(ctx context.Context, cfg config.CtrlConfig, sup *eapol.Supplicant, logger *slog.Logger) (*hostapd.Bridge, error) {
	bridge, err := hostapd.New(ctx, sup, cfg.BusName, cfg.ObjectPath, logger)
	if err != nil {
		logger.Warn("control bridge unavailable, continuing without it",
			slog.String("error", err.Error()),
		)
		return nil, nil
	}
	return bridge, nil
}

func closeCtrlBridge(bridge *hostapd.Bridge, logger *slog.Logger) {
	if bridge == nil {
		return
	}
	if err := bridge.Close(); err != nil {
		logger.Warn("failed to close control bridge", slog.String("error", err.Error()))
	}
}

// -------------------------------------------------------------------------
// Systemd Integration — sd_notify + watchdog
// -------------------------------------------------------------------------

func notifyReady(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		logger.Warn("failed to notify systemd readiness", slog.String("error", err.Error()))
		return
	}
	if sent {
		logger.Info("notified systemd: READY")
	}
}

func notifyStopping(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyStopping)
	if err != nil {
		logger.Warn("failed to notify systemd stopping", slog.String("error", err.Error()))
		return
	}
	if sent {
		logger.Info("notified systemd: STOPPING")
	}
}

// runWatchdog sends periodic watchdog keepalives to systemd at half the
// configured watchdog interval, as recommended by the systemd documentation.
func runWatchdog(ctx context.Context, logger *slog.Logger) error {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		logger.Warn("failed to check systemd watchdog", slog.String("error", err.Error()))
		return nil
	}
	if interval == 0 {
		logger.Debug("systemd watchdog not configured, skipping keepalive")
		return nil
	}

	tickInterval := interval / 2
	logger.Info("systemd watchdog enabled",
		slog.Duration("watchdog_sec", interval),
		slog.Duration("keepalive_interval", tickInterval),
	)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, wdErr := daemon.SdNotify(false, daemon.SdNotifyWatchdog); wdErr != nil {
				logger.Warn("failed to send watchdog keepalive", slog.String("error", wdErr.Error()))
			}
		}
	}
}

// -------------------------------------------------------------------------
// SIGHUP Reload — log level + timer ceilings
// -------------------------------------------------------------------------

// handleSIGHUP blocks until ctx is cancelled, reloading configuration on
// every SIGHUP.
func handleSIGHUP(
	ctx context.Context,
	sigHUP <-chan os.Signal,
	configPath string,
	logLevel *slog.LevelVar,
	sup *eapol.Supplicant,
	logger *slog.Logger,
) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sigHUP:
			logger.Info("received SIGHUP, reloading configuration")
			reloadConfig(configPath, logLevel, sup, logger)
		}
	}
}

// reloadConfig loads a fresh configuration from configPath, updates the
// dynamic log level, and re-applies the timer ceilings and key policy.
// Supplicant.Configure only affects ceilings reloaded on the *next* state
// entry; it never forces an immediate FSM restart. Errors are logged but
// do not stop the daemon.
func reloadConfig(configPath string, logLevel *slog.LevelVar, sup *eapol.Supplicant, logger *slog.Logger) {
	newCfg, err := loadConfig(configPath)
	if err != nil {
		logger.Error("failed to reload configuration, keeping current settings",
			slog.String("error", err.Error()),
		)
		return
	}

	oldLevel := logLevel.Level()
	newLevel := config.ParseLogLevel(newCfg.Log.Level)
	logLevel.Set(newLevel)

	sup.Configure(newCfg.Port.HeldPeriod, newCfg.Port.AuthPeriod, newCfg.Port.StartPeriod, newCfg.Port.MaxStart)
	sup.SetKeyPolicy(newCfg.Port.Accept8021xKeys, newCfg.Port.RequiredKeys)

	logger.Info("configuration reloaded",
		slog.String("old_log_level", oldLevel.String()),
		slog.String("new_log_level", newLevel.String()),
	)
}

// -------------------------------------------------------------------------
// Graceful Shutdown
// -------------------------------------------------------------------------

// gracefulShutdown notifies systemd, signals a user logoff (sending
// EAPOL-Logoff so the authenticator sees an intentional departure, not a
// link failure), then shuts down the metrics HTTP server.
func gracefulShutdown(ctx context.Context, sup *eapol.Supplicant, logger *slog.Logger, servers ...*http.Server) error {
	logger.Info("initiating graceful shutdown")
	notifyStopping(logger)

	sup.NotifyLogoff(ctx, true)

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	var shutdownErr error
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("shutdown server: %w", err))
		}
	}
	return shutdownErr
}

// -------------------------------------------------------------------------
// Server Setup
// -------------------------------------------------------------------------

func listenAndServe(ctx context.Context, srv *http.Server, addr string) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve on %s: %w", addr, err)
	}
	return nil
}

func newMetricsServer(cfg config.MetricsConfig, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func parsePortControl(s string) eapol.PortControl {
	switch s {
	case "force_authorized":
		return eapol.PortControlForceAuthorized
	case "force_unauthorized":
		return eapol.PortControlForceUnauthorized
	default:
		return eapol.PortControlAuto
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
		return cfg, nil
	}
	return config.DefaultConfig(), nil
}

func newLoggerWithLevel(cfg config.LogConfig, level *slog.LevelVar) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
