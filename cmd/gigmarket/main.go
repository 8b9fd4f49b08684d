package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	adapthttp "gigmarket/internal/adapter/http"
	"gigmarket/internal/adapter/memory"
	"gigmarket/internal/adapter/postgres"
	"gigmarket/internal/app"
	"gigmarket/internal/config"
	"gigmarket/internal/domain"
	"gigmarket/internal/logger"
	"gigmarket/internal/scheduler"
)

var (
	configFile string
	cfg        *config.Config
	log        *zap.SugaredLogger
)

var rootCmd = &cobra.Command{
	Use:   "gigmarket",
	Short: "Gig marketplace API server",
	Long: `gigmarket serves the job marketplace API.

Available commands:
  serve             - Start the HTTP server
  create-user       - Create an account from the command line
  cleanup-sessions  - Delete expired sessions once and exit`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfg, err = config.Load(configFile); err != nil {
			return err
		}
		if log, err = logger.New(cfg.LogJSON, cfg.LogLevel); err != nil {
			return errors.Wrap(err, "initialize logger")
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			_ = log.Sync()
		}
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE:  runServe,
}

var (
	newUsername string
	newPassword string
)

var createUserCmd = &cobra.Command{
	Use:   "create-user",
	Short: "Create an account",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.close()

		authSvc := app.NewAuthService(st.users, st.sessions, st.canonical, cfg.SessionTTL, log)
		user, err := authSvc.CreateUser(cmd.Context(), newUsername, newPassword)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created user %q (id %d)\n", user.Username, user.ID)
		return nil
	},
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup-sessions",
	Short: "Delete expired sessions once and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.close()

		authSvc := app.NewAuthService(st.users, st.sessions, st.canonical, cfg.SessionTTL, log)
		n, err := authSvc.PurgeExpiredSessions(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %d expired sessions\n", n)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to a config file (yaml, toml or json)")

	createUserCmd.Flags().StringVarP(&newUsername, "username", "u", "", "Username for the new account")
	createUserCmd.Flags().StringVarP(&newPassword, "password", "p", "", "Password for the new account")
	_ = createUserCmd.MarkFlagRequired("username")
	_ = createUserCmd.MarkFlagRequired("password")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(createUserCmd)
	rootCmd.AddCommand(cleanupCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if hint := errors.FlattenHints(err); hint != "" {
			fmt.Fprintf(os.Stderr, "hint: %s\n", hint)
		}
		os.Exit(1)
	}
}

// store bundles the repositories of whichever backend is configured.
type store struct {
	jobs      domain.JobRepository
	users     domain.UserRepository
	sessions  domain.SessionRepository
	canonical domain.CanonicalSessionRepository
	close     func()
}

func openStore() (*store, error) {
	if cfg.DatabaseURL == "" {
		if cfg.Environment == config.EnvProduction {
			return nil, errors.WithHint(errors.New("database_url is required in production"), "set DATABASE_URL or GIGMARKET_DATABASE_URL")
		}
		log.Warn("no database_url configured; using in-memory storage")
		db := memory.New()
		return &store{jobs: db, users: db, sessions: db.NewSessionRepo(), canonical: db, close: func() {}}, nil
	}

	db, err := postgres.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "db open")
	}
	return &store{
		jobs:      db,
		users:     db,
		sessions:  postgres.NewSessionRepo(db),
		canonical: db,
		close:     func() { _ = db.Close() },
	}, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.close()

	jobSvc := app.NewJobService(st.jobs, log)
	authSvc := app.NewAuthService(st.users, st.sessions, st.canonical, cfg.SessionTTL, log)
	guard := app.NewSessionGuard(st.canonical, log)

	oidcCfg, err := adapthttp.NewOIDC(ctx, cfg.OIDC)
	if err != nil {
		return err
	}

	sched := scheduler.New(log)
	if err := sched.Register(scheduler.SessionCleanupTask(cfg.CleanupSchedule, authSvc, log)); err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	h := adapthttp.New(jobSvc, authSvc, guard, adapthttp.Options{
		WebDir:             cfg.WebDir,
		Cookies:            cfg.Cookies(),
		OIDC:               oidcCfg,
		LoginRatePerMinute: cfg.LoginRatePerMinute,
		Logger:             log,
	}).Handler()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infow("listening", "addr", cfg.Addr, "environment", cfg.Environment, "sso", oidcCfg.Enabled)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
