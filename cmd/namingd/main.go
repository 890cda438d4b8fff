package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/marmos91/treedfs/internal/logger"
	"github.com/marmos91/treedfs/pkg/config"
	"github.com/marmos91/treedfs/pkg/metrics"
	"github.com/marmos91/treedfs/pkg/naming"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: $XDG_CONFIG_HOME/treedfs/config.yaml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger.SetLevel(cfg.Logging.Level)
	if out, err := openLogOutput(cfg.Logging.Output); err != nil {
		log.Fatalf("Failed to open log output: %v", err)
	} else if out != nil {
		logger.SetOutput(out)
	}

	fmt.Println("TreeDFS - Naming Server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		metricsServer = metrics.NewServer(cfg.Metrics.Addr)
		metricsServer.Start()
	}

	server := naming.New(naming.Options{
		ServiceAddr:      cfg.Naming.ServiceAddr,
		RegistrationAddr: cfg.Naming.RegistrationAddr,
		Metrics:          metrics.NewNamingMetrics(),
		RPCMetrics:       metrics.NewRPCMetrics("naming"),
		RateLimit:        cfg.Server.RPCRateLimit,
		RateBurst:        cfg.Server.RPCRateBurst,
	})

	if err := server.Start(ctx); err != nil {
		log.Fatalf("Failed to start naming server: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("Received signal %v, shutting down", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("Shutdown: %v", err)
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("Metrics shutdown: %v", err)
		}
	}
	logger.Info("Naming server stopped")
}

// openLogOutput maps the logging.output value to a writer. A nil result
// keeps the default stdout.
func openLogOutput(output string) (*os.File, error) {
	switch output {
	case "", "stdout":
		return nil, nil
	case "stderr":
		return os.Stderr, nil
	default:
		return os.OpenFile(output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	}
}
