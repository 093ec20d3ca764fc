package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/brianly1003/gitdeck/internal/app"
	"github.com/brianly1003/gitdeck/internal/config"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	projectDir string
	host       string
	port       int
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the gitdeck server",
	Long: `Start the gitdeck server. HTTP endpoints and the websocket channel (/ws)
share one listener.

Example:
  gitdeck start                        # serve the current directory
  gitdeck start --dir /path/to/project
  gitdeck start --host 0.0.0.0 --port 9000`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().StringVar(&projectDir, "dir", "", "project directory to activate (default: current directory)")
	startCmd.Flags().StringVar(&host, "host", "", "bind address (default: 127.0.0.1)")
	startCmd.Flags().IntVar(&port, "port", 0, "listen port (default: 7878)")
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := applyStartFlags(cfg); err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	closer, err := setupLogging(cfg.Logging, verbose)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer closer.Close()

	log.Info().
		Str("version", version).
		Str("project", cfg.Project.Path).
		Str("addr", cfg.Server.Addr()).
		Msg("starting gitdeck")

	application, err := app.New(cfg, version)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("application error: %w", err)
	}

	log.Info().Msg("gitdeck stopped")
	return nil
}

// applyStartFlags overlays explicitly set flags on cfg.
func applyStartFlags(cfg *config.Config) error {
	if projectDir != "" {
		abs, err := filepath.Abs(projectDir)
		if err != nil {
			return fmt.Errorf("invalid --dir: %w", err)
		}
		cfg.Project.Path = abs
	}
	if host != "" {
		cfg.Server.Host = host
	}
	if port != 0 {
		cfg.Server.Port = port
	}
	return nil
}

func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}
