package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"userbus/internal/config"
	"userbus/internal/constants"
	"userbus/internal/logger"
	"userbus/pkg/logging"
)

// Service is the lifecycle every binary's App implements. Run blocks until ctx
// is cancelled and shuts the service down before returning.
type Service interface {
	Initialize(ctx context.Context) error
	Run(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

type CommandSpec struct {
	Name  string
	Short string
	Long  string
	New   func(cfg *config.Config, log logger.Logger) Service
}

var errConfigRequired = errors.New("config file is required")

// NewRootCommand builds the cobra tree shared by all binaries: the root and
// "serve" start the service, "validate" only loads and checks the config.
// The config path comes from --config or CONFIG_FILE.
func NewRootCommand(spec CommandSpec) *cobra.Command {
	var configFile string
	early := logging.NewEarlyLog()

	loadConfig := func() (*config.Config, error) {
		if configFile == "" {
			configFile = os.Getenv("CONFIG_FILE")
		}
		if configFile == "" {
			early.Error("Config file is required. Use --config flag or CONFIG_FILE environment variable")
			return nil, errConfigRequired
		}
		cfg, err := config.Load(configFile)
		if err != nil {
			early.Error("Failed to load config: %v", err)
			return nil, err
		}
		return cfg, nil
	}

	serve := func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return runService(cmd.Context(), spec, cfg)
	}

	root := &cobra.Command{
		Use:           spec.Name,
		Short:         spec.Short,
		Long:          spec.Long,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file (required)")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the " + spec.Name,
		RunE:  serve,
	})
	root.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Load and validate the configuration, then exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := loadConfig(); err != nil {
				return err
			}
			early.Info("Configuration %s is valid", configFile)
			return nil
		},
	})
	return root
}

func runService(parent context.Context, spec CommandSpec, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}

	log, err := logger.New(cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	defer log.Sync()

	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ctx = logging.WithServiceName(ctx, spec.Name)

	log.InfowCtx(ctx, "Starting service")

	app := spec.New(cfg, log)
	if err := app.Initialize(ctx); err != nil {
		log.ErrorwCtx(ctx, "Failed to initialize application", "error", err)
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
		defer cancelShutdown()
		if shutdownErr := app.Shutdown(shutdownCtx); shutdownErr != nil {
			log.WarnwCtx(ctx, "Cleanup after failed initialization", "error", shutdownErr)
		}
		return err
	}

	if err := app.Run(ctx); err != nil {
		log.ErrorwCtx(ctx, "Application error", "error", err)
		return err
	}
	return nil
}
