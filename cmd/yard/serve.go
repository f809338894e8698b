package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/zulandar/modelyard/internal/config"
	"github.com/zulandar/modelyard/internal/db"
	"github.com/zulandar/modelyard/internal/devserver"
	"github.com/zulandar/modelyard/internal/logging"
)

func newServeCmd() *cobra.Command {
	var (
		configPath   string
		port         int
		artifactsDir string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the local dev backend",
		Long: "Runs a reference backend for local development. It stores datasets and models in the " +
			"configured database and simulates training runs.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, port, artifactsDir)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to modelyard config file")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (overrides devserver.port)")
	cmd.Flags().StringVar(&artifactsDir, "artifacts", "", "directory for trained models (overrides devserver.artifacts_dir)")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string, port int, artifactsDir string) error {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return err
	}
	if port > 0 {
		cfg.DevServer.Port = port
	}
	if artifactsDir != "" {
		cfg.DevServer.ArtifactsDir = artifactsDir
	}
	log, err := logging.New(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	defer log.Sync()

	gormDB, err := db.Prepare(cfg.DevServer.Database)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Database ready (%s)\n", cfg.DevServer.Database.Driver)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			fmt.Fprintf(out, "\nReceived %s, shutting down...\n", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return devserver.Start(ctx, devserver.StartOpts{
		DB:           gormDB,
		Port:         cfg.DevServer.Port,
		ArtifactsDir: cfg.DevServer.ArtifactsDir,
		Out:          out,
		Logger:       log,
	})
}
