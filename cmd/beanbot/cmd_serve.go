package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/2oast/Bean-Bot/internal/config"
	"github.com/2oast/Bean-Bot/internal/logging"
	"github.com/2oast/Bean-Bot/internal/perception"
	"github.com/2oast/Bean-Bot/internal/server"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// serveCmd runs the HTTP endpoint
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the chat HTTP endpoint",
	Long: `Starts POST /chat and GET /health on server.addr.

The config file is watched while serving; a changed shared_secret takes
effect without a restart. SIGINT or SIGTERM shuts the server down
gracefully.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return serve(ctx)
}

// serve runs until ctx is cancelled or the listener fails.
func serve(ctx context.Context) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Server.SharedSecret == config.DefaultSharedSecret {
		logging.BootWarn("Using the default shared secret; set SHARED_SECRET")
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	gen, err := perception.NewGeneratorFromConfig(ctx, cfg)
	if err != nil {
		return err
	}

	srv := server.New(newOrchestrator(st, gen), cfg.Server.SharedSecret, logger, server.Options{
		MaxConnections:  cfg.Server.MaxConnections,
		ReadTimeout:     cfg.GetReadTimeout(),
		WriteTimeout:    cfg.GetWriteTimeout(),
		ShutdownTimeout: cfg.GetShutdownTimeout(),
		Generator:       gen.Name(),
	})

	logging.Boot("beanbot %s serving on %s (store=%s driver=%s generator=%s)",
		cfg.Version, cfg.Server.Addr, st.Path(), st.Driver(), gen.Name())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx, cfg.Server.Addr)
	})
	g.Go(func() error {
		current := cfg.Server.SharedSecret
		err := config.Watch(gctx, configPath, func(next *config.Config) {
			if next.Server.SharedSecret != current {
				current = next.Server.SharedSecret
				srv.SetSecret(current)
			}
		}, func(err error) {
			logging.BootWarn("Config reload failed: %v", err)
		})
		if err != nil {
			// Serving continues without hot reload.
			logging.BootWarn("Config watcher unavailable: %v", err)
		}
		return nil
	})
	return g.Wait()
}
