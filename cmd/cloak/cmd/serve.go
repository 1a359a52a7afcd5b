package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/csrf"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/session"
	cloak "github.com/goliatone/go-cloak"
	cloakredis "github.com/goliatone/go-cloak/storage/redis"
	"github.com/goliatone/go-router"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

const (
	csrfCookieName = "cloak_csrf"
	csrfFormField  = "csrf_token"
	// CSRFContextKey holds the token for templates rendering cloak forms.
	CSRFContextKey = "csrf"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the login link and cloak endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app := mustApp(cmd)

			server, closeFn, err := NewServer(ctx, app)
			if err != nil {
				return err
			}
			defer closeFn()

			app.Logger.Info("cloak server listening", "addr", app.Config.ListenAddr, "prefix", app.Config.RoutePrefix)

			errCh := make(chan error, 1)
			go func() {
				errCh <- server.Serve(app.Config.ListenAddr)
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			app.Logger.Info("cloak server shutting down")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	}
}

// Server is the router adapter together with the fiber app behind it.
type Server struct {
	HTTP  router.Server[*fiber.App]
	Fiber *fiber.App
}

func (s *Server) Serve(addr string) error {
	return s.HTTP.Serve(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.Fiber.ShutdownWithContext(ctx)
}

// NewServer builds the HTTP server. With a Redis URL configured, sessions
// and consumed login links are kept in Redis; otherwise both live in
// process memory. The returned func releases the Redis client.
func NewServer(ctx context.Context, app *App) (*Server, func() error, error) {
	sessionCfg := session.Config{}
	closeFn := func() error { return nil }

	svc := app.Service

	if app.Config.RedisURL != "" {
		opts, err := redis.ParseURL(app.Config.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("parse redis url: %w", err)
		}

		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("connect to redis: %w", err)
		}

		sessionCfg.Storage = cloakredis.NewStorage(client)
		if app.Config.SingleUseLinks {
			svc.WithReplayGuard(cloakredis.NewReplayGuard(client))
		}
		closeFn = client.Close
	} else if app.Config.SingleUseLinks {
		svc.WithReplayGuard(cloak.NewMemoryReplayGuard(0, app.Config.LoginLinkMaxAge))
	}

	sessions := cloak.NewSessions(sessionCfg)

	var fiberApp *fiber.App
	srv := router.NewFiberAdapter(func(_ *fiber.App) *fiber.App {
		fiberApp = router.DefaultFiberOptions(fiber.New(fiber.Config{
			AppName:               "cloak",
			DisableStartupMessage: true,
		}))

		fiberApp.Use(recover.New())
		// cloak and uncloak are state changing POSTs issued from the
		// host's pages; they must carry the token from the csrf cookie.
		fiberApp.Use(csrf.New(csrf.Config{
			KeyLookup:      "form:" + csrfFormField,
			CookieName:     csrfCookieName,
			CookieSameSite: "Lax",
			CookieHTTPOnly: true,
			ContextKey:     CSRFContextKey,
			Expiration:     time.Hour,
		}))
		fiberApp.Use(sessions.Middleware())

		return fiberApp
	})

	cloak.Mount(srv.Router(), svc)

	return &Server{HTTP: srv, Fiber: fiberApp}, closeFn, nil
}
