package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/modelyard/internal/api"
	"github.com/zulandar/modelyard/internal/config"
	"github.com/zulandar/modelyard/internal/console"
	"github.com/zulandar/modelyard/internal/logging"
	"github.com/zulandar/modelyard/internal/models"
	"github.com/zulandar/modelyard/internal/notify"
	"github.com/zulandar/modelyard/internal/prompt"
	"go.uber.org/zap"
)

// clientFlags are the flags shared by every command that talks to the backend.
type clientFlags struct {
	configPath string
	backend    string
	verbose    bool
}

func (f *clientFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.configPath, "config", "c", config.DefaultPath, "path to modelyard config file")
	cmd.Flags().StringVar(&f.backend, "backend", "", "backend base URL (overrides backend.base_url)")
	cmd.Flags().BoolVar(&f.verbose, "verbose", false, "log at the configured level instead of warn")
}

// env is what a client command needs: config, logger and API client.
type env struct {
	cfg    *config.Config
	log    *zap.Logger
	client *api.Client
}

// load reads the config and builds the logger and API client. Unless
// --verbose is set or log.file is configured, terminal logging is limited to
// warnings so controller progress lines do not mix with command output.
func (f *clientFlags) load(cmd *cobra.Command) (*env, error) {
	cfg, err := config.LoadOrDefault(f.configPath)
	if err != nil {
		return nil, err
	}
	if f.backend != "" {
		cfg.Backend.BaseURL = f.backend
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	if !f.verbose && cfg.Log.File == "" && quieterThanWarn(cfg.Log.Level) {
		cfg.Log.Level = "warn"
	}
	log, err := logging.New(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}
	return &env{cfg: cfg, log: log, client: api.FromConfig(cfg, log)}, nil
}

func quieterThanWarn(level string) bool {
	return level == "debug" || level == "info"
}

// confirmer returns the prompt used for destructive actions. With --yes
// every question is approved.
func confirmer(cmd *cobra.Command, yes bool) console.Confirmer {
	if yes {
		return console.AlwaysConfirm
	}
	return prompt.New(cmd.InOrStdin(), cmd.OutOrStdout())
}

// session builds an operator session for kind.
func (e *env) session(kind models.TaskKind, confirm console.Confirmer) (*console.Session, error) {
	n, err := notify.FromConfig(e.cfg.Notify, e.log)
	if err != nil {
		return nil, err
	}
	return console.NewSession(e.client, console.SessionOptions{
		Kind:             kind,
		Confirm:          confirm,
		Notifier:         n,
		UploadExtensions: e.cfg.Upload.Extensions,
		Logger:           e.log,
	}), nil
}
