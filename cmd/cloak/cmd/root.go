package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	cloak "github.com/goliatone/go-cloak"
	"github.com/goliatone/go-cloak/activitymap"
	"github.com/goliatone/go-cloak/config"
	"github.com/goliatone/go-cloak/repository"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

type appKey struct{}

// annotationNeedsApp marks commands that run against the database and
// service. Cobra's own commands, such as completion and help, lack it
// and start without configuration.
const annotationNeedsApp = "cloak.needs-app"

func needsApp(cmd *cobra.Command) bool {
	return cmd.Annotations[annotationNeedsApp] == "true"
}

func appCommand(cmd *cobra.Command) *cobra.Command {
	if cmd.Annotations == nil {
		cmd.Annotations = map[string]string{}
	}
	cmd.Annotations[annotationNeedsApp] = "true"
	return cmd
}

var verbose bool

// App holds what every subcommand needs.
type App struct {
	Config  config.AppConfig
	DB      *bun.DB
	Users   *repository.Users
	Service *cloak.Service
	Logger  *slog.Logger
}

var rootCmd = &cobra.Command{
	Use:   "cloak",
	Short: "Login links and user cloaking",
	Long: `cloak issues short lived login links and serves the cloak endpoints
that let privileged users act as another user.

Settings are read from CLOAK_ prefixed environment variables and an
optional .env file.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if !needsApp(cmd) {
			return nil
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

		app, err := NewApp(cfg, logger)
		if err != nil {
			return err
		}

		cmd.SetContext(context.WithValue(cmd.Context(), appKey{}, app))
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if app, ok := appFromContext(cmd.Context()); ok {
			return app.DB.Close()
		}
		return nil
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(appCommand(newLoginCommand()))
	rootCmd.AddCommand(appCommand(newServeCommand()))
	rootCmd.AddCommand(appCommand(newMigrateCommand()))
	rootCmd.AddCommand(appCommand(newUserAddCommand()))
}

// NewApp opens the database and builds the service. Cloak activity is
// written to logger.
func NewApp(cfg config.AppConfig, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	sqldb, err := sql.Open(sqliteshim.ShimName, cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db := bun.NewDB(sqldb, sqlitedialect.New())
	users := repository.NewUsers(db)

	svc, err := cloak.NewService(users, cfg)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	svc.WithLogger(logger).
		WithActivitySink(activitymap.LogSink(logger))

	return &App{
		Config:  cfg,
		DB:      db,
		Users:   users,
		Service: svc,
		Logger:  logger,
	}, nil
}

func appFromContext(ctx context.Context) (*App, bool) {
	if ctx == nil {
		return nil, false
	}
	app, ok := ctx.Value(appKey{}).(*App)
	return app, ok && app != nil
}

func mustApp(cmd *cobra.Command) *App {
	app, ok := appFromContext(cmd.Context())
	if !ok {
		panic("cloak app not initialized")
	}
	return app
}
