package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/clinic/clinic/internal/config"
	"github.com/clinic/clinic/internal/domain/appointment"
	"github.com/clinic/clinic/internal/domain/billing"
	"github.com/clinic/clinic/internal/domain/clinical"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/events"
	"github.com/clinic/clinic/internal/platform/middleware"
	"github.com/clinic/clinic/internal/platform/reporting"
	"github.com/clinic/clinic/internal/platform/response"
	"github.com/clinic/clinic/internal/platform/telemetry"
	"github.com/clinic/clinic/internal/platform/validate"
	"github.com/clinic/clinic/internal/platform/websocket"
	"github.com/clinic/clinic/migrations"
)

var version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "clinic-server",
		Short: "Clinic appointment, prescription and billing API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the clinic API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

// migrationFiles returns the embedded migrations, or dir when set.
func migrationFiles(dir string) fs.FS {
	if dir == "" {
		return migrations.FS
	}
	return os.DirFS(dir)
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, migrationFiles(dir)).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "", "Path to a migrations directory (defaults to the embedded set)")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, migrationFiles(dir)).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			printStatus(cmd.OutOrStdout(), statuses)
			return nil
		},
	}
	statusCmd.Flags().String("dir", "", "Path to a migrations directory (defaults to the embedded set)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func printStatus(w io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

func newLogger(env string, out io.Writer) zerolog.Logger {
	if env == "development" {
		out = zerolog.ConsoleWriter{Out: out}
	}
	return zerolog.New(out).With().Timestamp().Logger()
}

// newPublisher builds the event fan-out: the WebSocket hub always, plus the
// configured broker. The returned close func releases the broker client.
func newPublisher(ctx context.Context, cfg *config.Config, hub *websocket.Hub) (events.Publisher, func() error, error) {
	pubs := events.Multi{hub}
	closer := func() error { return nil }

	switch cfg.EventsBackend {
	case config.EventsRedis:
		p, err := events.NewRedisPublisher(ctx, cfg.RedisURL, cfg.RedisChannel)
		if err != nil {
			return nil, nil, err
		}
		pubs = append(pubs, p)
		closer = p.Close
	case config.EventsKafka:
		p := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		pubs = append(pubs, p)
		closer = p.Close
	}
	return pubs, closer, nil
}

type deps struct {
	cfg    *config.Config
	logger zerolog.Logger
	pool   *pgxpool.Pool
	pub    events.Publisher
	hub    *websocket.Hub
}

// newServer wires middleware and routes. It does not touch the database;
// the pool is only used per request.
func newServer(d deps) *echo.Echo {
	cfg := d.cfg

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = validate.New()
	e.HTTPErrorHandler = response.ErrorHandler(d.logger, cfg.ExposeErrorDetails)

	// Global middleware
	e.Use(middleware.Recovery(d.logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(d.logger))
	e.Use(telemetry.Middleware(telemetry.Global()))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Content-Type", middleware.RequestIDHeader},
	}))
	e.Use(echomw.BodyLimit("1M"))

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}

	api := e.Group("/api",
		middleware.RateLimit(rateLimitCfg),
		middleware.RequestTimeout(cfg.RequestTimeout),
		db.ConnMiddleware(d.pool),
	)

	tx := db.NewTransactor(d.pool)

	apptSvc := appointment.NewService(appointment.NewRepoPG(d.pool), tx, d.pub,
		appointment.Options{StrictTransitions: cfg.StrictTransitions()})
	appointment.NewHandler(apptSvc).RegisterRoutes(api)

	clinicalSvc := clinical.NewService(
		clinical.NewRecordRepoPG(d.pool),
		clinical.NewPrescriptionRepoPG(d.pool),
		clinical.NewStockRepoPG(d.pool),
		tx, d.pub,
		clinical.Options{AllowNegativeStock: cfg.AllowNegativeStock},
	)
	clinical.NewHandler(clinicalSvc).RegisterRoutes(api)

	billingSvc := billing.NewService(billing.NewRepoPG(d.pool), tx, d.pub)
	billing.NewHandler(billingSvc).RegisterRoutes(api)

	var console *reporting.ConsoleConfig
	if cfg.EnableSQLConsole {
		console = reporting.DefaultConsoleConfig()
	}
	reporting.NewHandler(d.pool, tx, console).RegisterRoutes(api)

	websocket.NewHandler(d.hub, cfg.CORSOrigins).RegisterRoutes(e)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(d.pool, cfg.ExposeErrorDetails))

	return e
}

func runServer() error {
	// Logger
	logger := newLogger(os.Getenv("ENV"), os.Stdout)
	zerolog.DefaultContextLogger = &logger

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx := context.Background()

	// Telemetry
	tp, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: version,
		Environment:    cfg.Env,
		OTLPEndpoint:   cfg.OTLPEndpoint,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to set up telemetry")
	}

	// Database
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Events
	hub := websocket.NewHub(logger)
	pub, closePub, err := newPublisher(ctx, cfg, hub)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.EventsBackend).Msg("failed to connect event backend")
	}
	defer func() {
		if err := closePub(); err != nil {
			logger.Warn().Err(err).Msg("event publisher close failed")
		}
	}()

	e := newServer(deps{cfg: cfg, logger: logger, pool: pool, pub: pub, hub: hub})
	if cfg.EnableSQLConsole {
		logger.Warn().Msg("SQL console enabled at POST /api/query")
	}

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("telemetry shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
