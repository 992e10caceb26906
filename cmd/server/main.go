package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gorm.io/gorm"

	"github.com/diewo77/go-quotes/internal/config"
	"github.com/diewo77/go-quotes/internal/db"
	"github.com/diewo77/go-quotes/internal/logging"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// newRootCmd builds the quotes command. Running it without a subcommand
// starts the server.
func newRootCmd() *cobra.Command {
	v := config.New()

	root := &cobra.Command{
		Use:          "quotes",
		Short:        "Quotes is a small B2B quoting service",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "Configuration file to read. Defaults to config.toml in ./config or the working directory")
	root.PersistentFlags().StringP("log-level", "L", "info", "Log level. One of 'debug', 'info', 'warn' or 'error'")
	_ = v.BindPFlag("log.level", root.PersistentFlags().Lookup("log-level"))

	serve := newServeCmd(v)
	root.AddCommand(serve, newMigrateCmd(v))
	root.RunE = serve.RunE
	return root
}

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup(cmd, v)
			if err != nil {
				return err
			}
			defer env.close()
			if err := db.Migrate(env.db, env.cfg, env.log); err != nil {
				env.log.Error("migration failed", "error", err)
				return err
			}
			return serve(cmd.Context(), env)
		},
	}
	cmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	_ = v.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	return cmd
}

func newMigrateCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup(cmd, v)
			if err != nil {
				return err
			}
			defer env.close()
			if err := db.Migrate(env.db, env.cfg, env.log); err != nil {
				env.log.Error("migration failed", "error", err)
				return err
			}
			env.log.Info("migrations completed")
			return nil
		},
	}
}

type environment struct {
	cfg *config.Config
	log logging.Logger
	db  *gorm.DB
}

// setup loads the configuration, the logger and the database connection
// shared by every subcommand.
func setup(cmd *cobra.Command, v *viper.Viper) (*environment, error) {
	var configFile string
	if f := cmd.Flag("config"); f != nil {
		configFile = f.Value.String()
	}
	cfg, err := config.Load(v, configFile)
	if err != nil {
		return nil, err
	}
	log, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(cfg.Database, log)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		_ = log.Sync()
		return nil, err
	}
	return &environment{cfg: cfg, log: log, db: conn}, nil
}

func (e *environment) close() {
	if sqlDB, err := e.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	_ = e.log.Sync()
}

// serve runs the HTTP server until ctx is cancelled or a termination
// signal arrives, then shuts down gracefully.
func serve(ctx context.Context, env *environment) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := env.cfg
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      NewApp(env.db, cfg, env.log),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		env.log.Info("server starting", "port", cfg.Server.Port, "dev", cfg.App.Dev, "driver", cfg.Database.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			env.log.Error("server error", "error", err)
			return errors.Wrap(err, "listen")
		}
		return nil
	case <-ctx.Done():
	}
	env.log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		env.log.Error("error during shutdown", "error", err)
		return errors.Wrap(err, "shutdown")
	}
	env.log.Info("server stopped gracefully")
	return nil
}
