package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/p2pcam/camgate/internal/audit"
	"github.com/p2pcam/camgate/internal/cache"
	"github.com/p2pcam/camgate/internal/config"
	"github.com/p2pcam/camgate/internal/diagnostics"
	"github.com/p2pcam/camgate/internal/logging"
	"github.com/p2pcam/camgate/internal/proxy"
	"github.com/p2pcam/camgate/internal/session"
)

type runFlags struct {
	username    string
	password    string
	dtype       int
	debug       bool
	configPath  string
	listen      string
	cacheAddr   string
	auditDSN    string
	statusAddr  string
}

func newRunCommand() *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run <serial>",
		Short: "Establish a session against a camera and proxy RTSP to it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGateway(args[0], flags)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&flags.username, "username", "u", "", "directory username (required for -t 1)")
	f.StringVarP(&flags.password, "password", "p", "", "directory password (required for -t 1)")
	f.IntVarP(&flags.dtype, "type", "t", 0, "directory variant: 0=anonymous, 1=authenticated")
	f.BoolVarP(&flags.debug, "debug", "d", false, "enable debug logging")
	f.StringVar(&flags.configPath, "config", "", "path to a YAML config file (defaults to ~/.camgate/config.yaml)")
	f.StringVar(&flags.listen, "listen", "", "local TCP listen address (overrides config)")
	f.StringVar(&flags.cacheAddr, "cache", "", "redis address for the directory-resolution cache (optional)")
	f.StringVar(&flags.auditDSN, "audit-dsn", "", "postgres DSN for the session audit log (optional)")
	f.StringVar(&flags.statusAddr, "status-addr", "", "HTTP address for the diagnostics/status server (optional)")

	return cmd
}

func runGateway(serial string, flags *runFlags) error {
	cfg, err := loadEffectiveConfig(serial, flags)
	if err != nil {
		return err
	}

	log, err := buildLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Close()

	dirCache, err := buildCache(cfg)
	if err != nil {
		return err
	}
	defer dirCache.Close()

	auditStore, err := buildAudit(cfg)
	if err != nil {
		return err
	}
	defer auditStore.Close()

	log.Info("resolving camera", logging.Fields{"serial": serial, "type": cfg.Directory.Type})

	link, err := session.Establish(session.Options{
		Serial:   serial,
		DType:    cfg.Directory.Type,
		Username: cfg.Directory.Username,
		Password: cfg.Directory.Password,
		Cache:    dirCache,
		Log:      componentLogger("session", log.Level()),
	})
	if err != nil {
		log.Error("session establishment failed", logging.Fields{"error": err.Error()})
		return err
	}
	defer link.Close()

	log.Info("session established, starting proxy loop", logging.Fields{"listen": cfg.Listen.Address})

	listener, err := net.Listen("tcp4", cfg.Listen.Address)
	if err != nil {
		return fmt.Errorf("camgate: listen on %s: %w", cfg.Listen.Address, err)
	}
	defer listener.Close()

	loop := proxy.New(listener, link, componentLogger("proxy", log.Level()).WithSerial(serial), serial, auditStore)

	stop := make(chan struct{})
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info("shutdown signal received", nil)
		close(stop)
	}()

	if cfg.Diagnostics.Address != "" {
		diag := diagnostics.New(cfg.Diagnostics.Address, serial, loop.Stats(), componentLogger("diagnostics", log.Level()).WithSerial(serial))
		go func() {
			if err := diag.Start(); err != nil {
				log.Warn("diagnostics server stopped", logging.Fields{"error": err.Error()})
			}
		}()
		defer diag.Stop()
	}

	runErr := loop.Run(stop)
	stats := loop.Stats()
	log.Info("proxy loop ended", logging.Fields{
		"tunnels_opened": stats.TunnelsOpened.Load(),
		"tunnels_closed": stats.TunnelsClosed.Load(),
		"error":          errString(runErr),
	})

	return runErr
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func loadEffectiveConfig(serial string, flags *runFlags) (*config.Config, error) {
	path := flags.configPath
	if path == "" {
		path = config.GetConfigPath()
	}

	cfg, err := config.LoadOrCreateConfig(path)
	if err != nil {
		return nil, fmt.Errorf("camgate: load config: %w", err)
	}

	cfg.Directory.Serial = serial
	if flags.dtype != 0 {
		cfg.Directory.Type = flags.dtype
	}
	if flags.username != "" {
		cfg.Directory.Username = flags.username
	}
	if flags.password != "" {
		cfg.Directory.Password = flags.password
	}
	if flags.listen != "" {
		cfg.Listen.Address = flags.listen
	}
	if flags.cacheAddr != "" {
		cfg.Cache.Address = flags.cacheAddr
	}
	if flags.auditDSN != "" {
		cfg.Audit.DSN = flags.auditDSN
	}
	if flags.statusAddr != "" {
		cfg.Diagnostics.Address = flags.statusAddr
	}
	if flags.debug {
		cfg.Logging.Level = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("camgate: invalid configuration: %w", err)
	}
	return cfg, nil
}

func buildLogger(cfg *config.Config) (*logging.Logger, error) {
	level := logging.ParseLevel(cfg.Logging.Level)
	return logging.NewLogger("camgate", level, cfg.Logging.File)
}

// componentLogger spins up a sibling logger for one internal package at
// the given level, writing to stdout. Per-component log files are not
// exposed on the CLI surface; cfg.Logging.File applies only to the root
// camgate logger. An empty logPath never fails, so the error is safe to
// discard here.
func componentLogger(component string, level logging.LogLevel) *logging.Logger {
	l, _ := logging.NewLogger(component, level, "")
	return l
}

func buildCache(cfg *config.Config) (cache.DirectoryCache, error) {
	if cfg.Cache.Address == "" {
		return cache.NewMemoryCache(), nil
	}
	return cache.NewRedisCache(cfg.Cache.Address, cfg.Cache.TTL)
}

func buildAudit(cfg *config.Config) (audit.Store, error) {
	if cfg.Audit.DSN == "" {
		return audit.NoopStore{}, nil
	}
	return audit.NewPostgresStore(cfg.Audit.DSN)
}
