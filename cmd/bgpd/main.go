// Command bgpd runs one BGP-4 speaker process: it loads its
// configuration, wires up logging and metrics, and starts the agent.
// It reads two command-line options, -config and -log-level, with a small
// hand-written parser (the flag package is not used), and — like
// rib-ingester/cmd/rib-ingester/main.go — lets the config file drive
// everything else instead of building up peers by hand in main.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/transitorykris/bgpd/agent"
	"github.com/transitorykris/bgpd/bgp"
	"github.com/transitorykris/bgpd/config"
	"github.com/transitorykris/bgpd/network"
	"github.com/transitorykris/bgpd/policy"
	"github.com/transitorykris/bgpd/session"
)

func main() {
	configPath, logLevel := parseFlags(os.Args[1:])

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	logger, err := initLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	routerID, err := resolveRouterID(cfg.RouterID)
	if err != nil {
		logger.Fatal("resolving router_id", zap.Error(err))
	}

	a := agent.New(agent.Config{
		RouterID:         routerID,
		LocalAS:          bgp.ASN(cfg.LocalAS),
		ListenAddr:       cfg.ListenAddr,
		DecisionInterval: cfg.DecisionInterval,
		MeshOpenTimeout:  cfg.MeshOpenTimeout,
	}, agent.Hooks{}, logger)

	for _, p := range cfg.Peers {
		spec, err := toPeerSpec(p)
		if err != nil {
			logger.Fatal("invalid peer configuration", zap.String("peer", p.Key), zap.Error(err))
		}
		if _, err := a.AddPeer(spec); err != nil {
			logger.Fatal("adding peer", zap.String("peer", p.Key), zap.Error(err))
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting bgpd", zap.String("router-id", routerID.String()), zap.Uint32("local-as", uint32(cfg.LocalAS)), zap.Int("peers", len(cfg.Peers)))
	if err := a.Start(ctx); err != nil {
		logger.Fatal("starting agent", zap.Error(err))
	}

	for _, p := range cfg.Peers {
		if err := a.StartPeer(ctx, p.Key); err != nil {
			logger.Fatal("starting peer", zap.String("peer", p.Key), zap.Error(err))
		}
	}

	<-ctx.Done()
	logger.Info("shutting down")
	a.Stop()
}

func toPeerSpec(p config.PeerConfig) (agent.PeerSpec, error) {
	spec := agent.PeerSpec{
		Config: session.Config{
			Key:                  p.Key,
			PeerIP:               p.PeerIP,
			Hostname:             p.Hostname,
			Port:                 p.Port,
			PeerAS:               bgp.ASN(p.PeerAS),
			HoldTime:             p.HoldTime,
			ConnectRetryInterval: p.ConnectRetryInterval,
			Passive:              p.Passive,
			AcceptAnySource:      p.AcceptAnySource,
			RouteReflectorClient: p.RouteReflectorClient,
		},
	}
	if p.LocalIP != "" {
		spec.Config.LocalIP = net.ParseIP(p.LocalIP)
		if spec.Config.LocalIP == nil {
			return spec, fmt.Errorf("peer %q: local_ip %q is not an IP address", p.Key, p.LocalIP)
		}
	}
	if len(p.ImportPrefixList) > 0 {
		list, err := policy.NewPrefixList(p.ImportPrefixList)
		if err != nil {
			return spec, err
		}
		spec.Import = list.Filter
	}
	if len(p.ExportPrefixList) > 0 {
		list, err := policy.NewPrefixList(p.ExportPrefixList)
		if err != nil {
			return spec, err
		}
		spec.Export = list.Filter
	}
	return spec, nil
}

func resolveRouterID(s string) (bgp.Identifier, error) {
	if s == "" {
		return network.FindIdentifier()
	}
	ip := net.ParseIP(s)
	if ip == nil {
		return 0, fmt.Errorf("%q is not an IP address", s)
	}
	return bgp.NewIdentifier(ip)
}

func parseFlags(args []string) (configPath, logLevel string) {
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-config", "--config":
			if i+1 < len(args) {
				configPath = args[i+1]
				i++
			}
		case "-log-level", "--log-level":
			if i+1 < len(args) {
				logLevel = args[i+1]
				i++
			}
		}
	}
	return
}

func initLogger(level string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zap.DebugLevel
	case "warn":
		zapLevel = zap.WarnLevel
	case "error":
		zapLevel = zap.ErrorLevel
	default:
		zapLevel = zap.InfoLevel
	}
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(zapLevel)
	zapCfg.EncoderConfig.TimeKey = "ts"
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return zapCfg.Build()
}
