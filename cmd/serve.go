package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/vbrik/cta-data-relay/core/loader"
	"github.com/vbrik/cta-data-relay/core/logger"
	"github.com/vbrik/cta-data-relay/core/middleware/auth"
	"github.com/vbrik/cta-data-relay/core/middleware/rayid"
	"github.com/vbrik/cta-data-relay/core/reconcile"
	"github.com/vbrik/cta-data-relay/feature/audit"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the read-only audit server",
	Long: `Starts the HTTP server exposing inventories, diffs and work-set plans of the
three tiers. The server never transfers or deletes anything.`,
	RunE: runServe,
}

func init() {
	RootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	e, err := newEnv(context.Background(), cmd.Flags(), true)
	if err != nil {
		return err
	}
	logg := e.log
	defer logg.Sync()
	zap.ReplaceGlobals(logg)

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	mgr := loader.NewManager()
	cache := reconcile.NewCache(e.cfg.Server.CacheTTL())
	mgr.Register(audit.NewFeature(e.client, e.cfg.Storage.Bucket, e.archive, cache, e.cfg.Relay.ListPolicy(), logg))

	// RayID first so every later log line can carry it.
	app.Use(rayid.New())
	app.Use(func(c *fiber.Ctx) error {
		l := logger.WithRayID(logg, c)
		l.Info("Request started",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.String("ip", c.IP()),
		)
		err := c.Next()
		if err != nil {
			l.Error("Request error", zap.Error(err))
		}
		return err
	})
	app.Use(auth.New(auth.Config{ApiKey: e.cfg.Server.ApiKey}))

	loaded, err := mgr.LoadAll(app)
	if err != nil {
		return err
	}
	logg.Info("Features loaded", zap.Strings("features", loaded))

	errCh := make(chan error, 1)
	go func() {
		logg.Info("Starting server", zap.String("port", e.cfg.Server.Port))
		errCh <- app.Listen(":" + e.cfg.Server.Port)
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-c:
	}
	logg.Info("Shutting down server...")
	return app.Shutdown()
}
