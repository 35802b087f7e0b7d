package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/trafficctl/control-plane/internal/config"
	"github.com/trafficctl/control-plane/internal/logging"
	"github.com/trafficctl/control-plane/internal/registry"
)

// Version information (set at build time with -ldflags), matching the
// teacher's cmd/pulse/main.go build-info surface.
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:     "trafficctl",
	Short:   "trafficctl - autonomous urban traffic control plane",
	Long:    `trafficctl is the density-aware, safety-governed autonomous traffic signal control plane.`,
	Version: Version,
	Run: func(cmd *cobra.Command, args []string) {
		runServer()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("trafficctl %s\n", Version)
		if BuildTime != "unknown" {
			fmt.Printf("Built: %s\n", BuildTime)
		}
		if GitCommit != "unknown" {
			fmt.Printf("Commit: %s\n", GitCommit)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to trafficctl YAML config file")
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServer() {
	logging.Init("info", false)

	watcher, err := config.NewWatcher(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	cfg := watcher.Current()

	log.Info().Str("data_dir", cfg.DataDir).Str("metrics_addr", cfg.MetricsAddr).Msg("Starting trafficctl control plane")

	reg, err := registry.Build(cfg, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to construct service registry")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg.Start(ctx)

	reloads := watcher.Subscribe()
	watcher.Start()
	defer watcher.Stop()
	go watchConfigReloads(ctx, reg, reloads)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("Shutting down trafficctl...")
	cancel()
	reg.Stop()

	log.Info().Msg("trafficctl stopped")
}

// watchConfigReloads logs every hot-reloaded config and publishes a
// system:event, matching the teacher's SIGHUP handler's "Could reload
// other configs here" acknowledgement — intervals/thresholds that are
// safe to change live (watchdog, agent loop) take effect on the next
// restart in this version; the event exists so operators can see a
// reload happened even before that wiring lands.
func watchConfigReloads(ctx context.Context, reg *registry.Registry, reloads <-chan *config.Config) {
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-reloads:
			if !ok {
				return
			}
			reg.Bus.Emit("system:event", map[string]any{
				"event_type": "config_reloaded",
				"severity":   "INFO",
				"message":    "configuration file reloaded",
			})
			log.Info().Int("detection_buffer_size", cfg.Detection.BufferSize).Msg("configuration reloaded")
		}
	}
}
