package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/audacious-software/Simple-Messaging-Dialog-Engine-Support/internal/profile"
	"github.com/audacious-software/Simple-Messaging-Dialog-Engine-Support/server/router/webhook"
	nudgerunner "github.com/audacious-software/Simple-Messaging-Dialog-Engine-Support/server/runner/nudge"
	"github.com/audacious-software/Simple-Messaging-Dialog-Engine-Support/server/service/dialog"
	"github.com/audacious-software/Simple-Messaging-Dialog-Engine-Support/server/stats"
	"github.com/audacious-software/Simple-Messaging-Dialog-Engine-Support/store"
	"github.com/audacious-software/Simple-Messaging-Dialog-Engine-Support/store/db"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "dialogd",
		Short: "Dialog session engine for two-way messaging",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}

	rootCmd.PersistentFlags().String("mode", "dev", `mode of the server, can be "dev" or "prod"`)
	rootCmd.PersistentFlags().String("addr", "", "address of the webhook server")
	rootCmd.PersistentFlags().Int("port", 8231, "port of the webhook server")
	rootCmd.PersistentFlags().String("data", "", "data directory")
	rootCmd.PersistentFlags().String("driver", "sqlite", `database driver, can be "sqlite" or "postgres"`)
	rootCmd.PersistentFlags().String("dsn", "", "database source name")

	for _, flag := range []string{"mode", "addr", "port", "data", "driver", "dsn"} {
		if err := viper.BindPFlag(flag, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			fmt.Fprintf(os.Stderr, "failed to bind flag %s: %v\n", flag, err)
			os.Exit(1)
		}
	}

	viper.SetEnvPrefix("dialog")
	viper.AutomaticEnv()

	rootCmd.AddCommand(
		newNudgeCmd(),
		newEncryptAddressesCmd(),
		newVersionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}
}

func newNudgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "nudge",
		Short: "Run one nudge sweep over open sessions and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, st, prof, err := wireEngine()
			if err != nil {
				return err
			}
			defer st.Close()

			runner := nudgerunner.NewRunner(st, engine, prof.NudgeInterval)

			return runner.Sweep(cmd.Context())
		},
	}
}

func newEncryptAddressesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "encrypt-addresses",
		Short: "Protect stored identifiers still in cleartext",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, st, _, err := wireEngine()
			if err != nil {
				return err
			}
			defer st.Close()

			return engine.EncryptAddresses(cmd.Context())
		},
	}
}

func loadProfile() (*profile.Profile, error) {
	prof := &profile.Profile{
		Mode:    viper.GetString("mode"),
		Addr:    viper.GetString("addr"),
		Port:    viper.GetInt("port"),
		Data:    viper.GetString("data"),
		Driver:  viper.GetString("driver"),
		DSN:     viper.GetString("dsn"),
		Version: version,
	}

	prof.FromEnv()

	if err := prof.Validate(); err != nil {
		return nil, err
	}

	return prof, nil
}

func newLogger(prof *profile.Profile) *slog.Logger {
	level := slog.LevelInfo
	if prof.IsDev() {
		level = slog.LevelDebug
	}

	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

func wireEngine() (*dialog.Engine, *store.Store, *profile.Profile, error) {
	prof, err := loadProfile()
	if err != nil {
		return nil, nil, nil, err
	}

	driver, err := db.NewDBDriver(prof)
	if err != nil {
		return nil, nil, nil, err
	}

	st := store.New(driver, prof)
	if err := st.Migrate(context.Background()); err != nil {
		_ = st.Close()
		return nil, nil, nil, err
	}

	logger := newLogger(prof)
	slog.SetDefault(logger)

	// Deployments embedding the engine register their interpreter and
	// collaborators here; the bare server runs webhook intake, keyword
	// launches, and sweeps without one.
	engine := dialog.NewEngine(st, prof, nil, logger)

	return engine, st, prof, nil
}

func runServe(ctx context.Context) error {
	engine, st, prof, err := wireEngine()
	if err != nil {
		return err
	}
	defer st.Close()

	serveCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	collector := stats.NewCollector(st)
	collector.Start(serveCtx)
	defer collector.Stop()

	runner := nudgerunner.NewRunner(st, engine, prof.NudgeInterval)
	go runner.Run(serveCtx)

	echoServer := echo.New()
	echoServer.HideBanner = true
	echoServer.HidePort = true
	echoServer.Use(echomiddleware.Recover())

	webhookService := webhook.NewService(prof, st, engine, collector)
	webhookService.Register(echoServer)
	go webhookService.PruneLimiters(serveCtx)

	errCh := make(chan error, 1)

	go func() {
		address := fmt.Sprintf("%s:%d", prof.Addr, prof.Port)
		slog.Info("dialogd started", "address", address, "version", version, "mode", prof.Mode)

		if err := echoServer.Start(address); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-signals:
		slog.Info("shutting down", "signal", sig.String())
	case <-serveCtx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	return echoServer.Shutdown(shutdownCtx)
}
