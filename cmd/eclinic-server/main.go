package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/eclinic/eclinic/internal/config"
	"github.com/eclinic/eclinic/internal/domain/identity"
	"github.com/eclinic/eclinic/internal/domain/scheduling"
	"github.com/eclinic/eclinic/internal/platform/auth"
	"github.com/eclinic/eclinic/internal/platform/db"
	"github.com/eclinic/eclinic/internal/platform/middleware"
	"github.com/eclinic/eclinic/internal/platform/notification"
	"github.com/eclinic/eclinic/internal/platform/payments"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "eclinic-server",
		Short: "Consultation scheduling API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(sweepCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" || os.Getenv("ENV") == "" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return logger
}

// requestValidator satisfies echo's Validator interface so handlers can call
// c.Validate on bound request structs.
type requestValidator struct {
	validate *validator.Validate
}

func (v *requestValidator) Validate(i interface{}) error {
	if err := v.validate.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the scheduling API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func runServer() error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = &requestValidator{validate: validator.New()}

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.RequestTimeout(30 * time.Second))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Secret: []byte(cfg.AuthSecret),
			Issuer: cfg.AuthIssuer,
		}))
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	// Outbound integrations. Both degrade to structured logging when their
	// endpoints are not configured, and neither can fail a booking.
	dispatcher := notification.NewDispatcher(cfg.NotifyWebhookURL, logger)
	defer dispatcher.Close()
	ledger := payments.NewLedgerClient(cfg.PaymentLedgerURL, logger)

	identitySvc := identity.NewService(
		identity.NewUserRepo(pool),
		identity.NewDoctorProfileRepo(pool),
		identity.NewClinicRepo(pool),
	)

	schedulingSvc := scheduling.NewService(
		scheduling.NewWindowRepoPG(pool),
		scheduling.NewSlotRepoPG(pool),
		scheduling.NewConsultationRepoPG(pool),
		scheduling.NewRescheduleRepoPG(pool),
		identity.NewDirectory(identitySvc),
		db.NewRunner(pool),
		scheduling.Options{
			DefaultConsultationMinutes: cfg.DefaultConsultationMinutes,
			LockWait:                   cfg.BookingLockWait(),
			Payments:                   ledger,
			Notifier:                   notification.NewSchedulingNotifier(dispatcher),
			Logger:                     logger,
		},
	)

	apiV1 := e.Group("/api/v1")
	identity.NewHandler(identitySvc).RegisterRoutes(apiV1)
	scheduling.NewHandler(schedulingSvc).RegisterRoutes(apiV1)

	// Background overdue sweep.
	sweeper := cron.New()
	spec := fmt.Sprintf("@every %s", cfg.SweepInterval())
	if _, err := sweeper.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if _, err := schedulingSvc.SweepOverdue(ctx, cfg.SweepHoursOverdue, cfg.SweepStatuses); err != nil {
			logger.Error().Err(err).Msg("scheduled overdue sweep failed")
		}
	}); err != nil {
		logger.Fatal().Err(err).Str("spec", spec).Msg("failed to schedule overdue sweep")
	}
	sweeper.Start()
	defer sweeper.Stop()

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	var dir string
	cmd.PersistentFlags().StringVar(&dir, "dir", "migrations", "migrations directory")

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}
			defer pool.Close()

			applied, err := db.NewMigrator(pool, dir).Up(ctx)
			if err != nil {
				return fmt.Errorf("apply migrations: %w", err)
			}
			logger.Info().Int("applied", applied).Msg("migrations complete")
			return nil
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, dir).Status(ctx)
			if err != nil {
				return fmt.Errorf("migration status: %w", err)
			}
			for _, s := range statuses {
				state := "pending"
				if s.Applied {
					state = "applied"
				}
				fmt.Printf("%04d  %-40s  %s\n", s.Version, s.Name, state)
			}
			return nil
		},
	}

	cmd.AddCommand(upCmd, statusCmd)
	return cmd
}

func sweepCmd() *cobra.Command {
	var (
		hoursOverdue int
		statusSet    string
		dryRun       bool
	)

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Complete overdue consultations",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}
			defer pool.Close()

			identitySvc := identity.NewService(
				identity.NewUserRepo(pool),
				identity.NewDoctorProfileRepo(pool),
				identity.NewClinicRepo(pool),
			)
			svc := scheduling.NewService(
				scheduling.NewWindowRepoPG(pool),
				scheduling.NewSlotRepoPG(pool),
				scheduling.NewConsultationRepoPG(pool),
				scheduling.NewRescheduleRepoPG(pool),
				identity.NewDirectory(identitySvc),
				db.NewRunner(pool),
				scheduling.Options{Logger: logger},
			)

			if dryRun {
				overdue, err := svc.ListOverdue(ctx, hoursOverdue, statusSet)
				if err != nil {
					return fmt.Errorf("list overdue: %w", err)
				}
				for _, c := range overdue {
					fmt.Printf("%s  %s  %s-%s  %s\n", c.ID, c.ScheduledDate.Format("2006-01-02"),
						c.StartTime.Format("15:04"), c.EndTime.Format("15:04"), c.Status)
				}
				fmt.Printf("%d overdue consultation(s)\n", len(overdue))
				return nil
			}

			result, err := svc.SweepOverdue(ctx, hoursOverdue, statusSet)
			if err != nil {
				return fmt.Errorf("sweep overdue: %w", err)
			}
			fmt.Printf("checked %d, completed %d, skipped %d\n", result.Checked, result.Updated, result.Skipped)
			return nil
		},
	}

	cmd.Flags().IntVar(&hoursOverdue, "hours-overdue", 1, "grace period in hours past scheduled start")
	cmd.Flags().StringVar(&statusSet, "status", "both", "statuses to sweep: scheduled, in_progress, or both")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list overdue consultations without completing them")
	return cmd
}
