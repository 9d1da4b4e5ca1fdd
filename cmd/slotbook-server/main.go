package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/slotbook/slotbook/internal/config"
	"github.com/slotbook/slotbook/internal/domain/appointment"
	"github.com/slotbook/slotbook/internal/domain/organization"
	"github.com/slotbook/slotbook/internal/platform/auth"
	"github.com/slotbook/slotbook/internal/platform/cache"
	"github.com/slotbook/slotbook/internal/platform/db"
	"github.com/slotbook/slotbook/internal/platform/events"
	"github.com/slotbook/slotbook/internal/platform/logging"
	"github.com/slotbook/slotbook/internal/platform/middleware"
	"github.com/slotbook/slotbook/internal/platform/notification"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "slotbook-server",
		Short: "Multi-tenant appointment booking API",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(orgCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	return db.NewPool(ctx, cfg.DatabaseURL, db.PoolOptions{MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns})
}

// withMigrator loads config, connects, and hands a migrator to fn.
func withMigrator(cmd *cobra.Command, fn func(ctx context.Context, m *db.Migrator, schema string) error) error {
	schema, _ := cmd.Flags().GetString("schema")
	dir, _ := cmd.Flags().GetString("dir")

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := openPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	return fn(ctx, db.NewMigrator(pool, dir), schema)
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
			return withMigrator(cmd, func(ctx context.Context, m *db.Migrator, schema string) error {
				fmt.Printf("Running migrations on schema: %s\n", schema)
				count, err := m.Up(ctx, schema)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Printf("Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *db.Migrator, schema string) error {
				statuses, err := m.Status(ctx, schema)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				fmt.Printf("Migration status for schema: %s\n", schema)
				fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
				fmt.Println("---------- ---------------------------------------- ---------- --------------------")
				for _, s := range statuses {
					status, appliedAt := "pending", ""
					if s.Applied {
						status = "applied"
						if s.AppliedAt != nil {
							appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
						}
					}
					fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
				}
				return nil
			})
		},
	}

	for _, c := range []*cobra.Command{upCmd, statusCmd} {
		c.Flags().String("schema", db.DefaultSchema, "Target schema for migrations")
		c.Flags().String("dir", "./migrations", "Path to migrations directory")
		cmd.AddCommand(c)
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Rollback last migration (not supported)",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("WARNING: the built-in runner is forward-only.")
			fmt.Println("Write a new migration that reverts the change and run: slotbook-server migrate up")
			return nil
		},
	})

	return cmd
}

func orgCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "org",
		Short: "Manage organization profiles",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create an organization profile for an owner account",
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, _ := cmd.Flags().GetString("owner")
			name, _ := cmd.Flags().GetString("name")
			orgType, _ := cmd.Flags().GetString("type")
			street, _ := cmd.Flags().GetString("street")
			city, _ := cmd.Flags().GetString("city")
			depts, _ := cmd.Flags().GetStringSlice("department")
			if owner == "" || name == "" {
				return fmt.Errorf("--owner and --name are required")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := context.Background()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			org := seedOrganization(owner, name, orgType, street, city, depts)
			svc := organization.NewService(organization.NewRepo(pool), nil, nil, zerolog.Nop())
			if err := svc.Create(ctx, org); err != nil {
				return fmt.Errorf("create organization: %w", err)
			}
			fmt.Printf("Organization %s created (id %s) with %d department(s).\n", org.OrganizationName, org.ID, len(org.Departments))
			for _, d := range org.Departments {
				fmt.Printf("  %s  %s\n", d.ID, d.Name)
			}
			return nil
		},
	}
	createCmd.Flags().String("owner", "", "Owner account id (token subject)")
	createCmd.Flags().String("name", "", "Organization name")
	createCmd.Flags().String("type", string(organization.TypeClinic), "Organization type")
	createCmd.Flags().String("street", "Unknown street", "Street address")
	createCmd.Flags().String("city", "Dhaka", "City")
	createCmd.Flags().StringSlice("department", []string{"General"}, "Department name (repeatable)")

	cmd.AddCommand(createCmd)
	return cmd
}

func seedOrganization(owner, name, orgType, street, city string, depts []string) *organization.Organization {
	org := &organization.Organization{
		UserID:           owner,
		OrganizationName: name,
		OrganizationType: organization.Type(strings.ToLower(orgType)),
		Street:           street,
		City:             city,
	}
	for _, d := range depts {
		if d = strings.TrimSpace(d); d != "" {
			org.Departments = append(org.Departments, organization.Department{Name: d})
		}
	}
	return org
}

// signingKey decodes AUTH_SIGNING_KEY. A "hex:" prefix selects hex decoding;
// otherwise the raw bytes are used. Keys shorter than 32 bytes are refused.
func signingKey(raw string) ([]byte, error) {
	if raw == "" {
		return nil, nil
	}
	key := []byte(raw)
	if rest, ok := strings.CutPrefix(raw, "hex:"); ok {
		decoded, err := hex.DecodeString(rest)
		if err != nil {
			return nil, fmt.Errorf("invalid AUTH_SIGNING_KEY hex value: %w", err)
		}
		key = decoded
	}
	if len(key) < 32 {
		return nil, fmt.Errorf("AUTH_SIGNING_KEY must be at least 32 bytes, got %d", len(key))
	}
	return key, nil
}

// authMiddleware picks header-based dev auth or JWT verification.
func authMiddleware(cfg *config.Config) (echo.MiddlewareFunc, error) {
	if cfg.IsDev() {
		return auth.DevAuthMiddleware(), nil
	}
	key, err := signingKey(cfg.AuthSigningKey)
	if err != nil {
		return nil, err
	}
	return auth.JWTMiddleware(auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		JWKSURL:    cfg.AuthJWKSURL,
		SigningKey: key,
	}), nil
}

func rateLimitConfig(cfg *config.Config) middleware.RateLimitConfig {
	rl := middleware.DefaultRateLimitConfig()
	if cfg.RateLimitRPS > 0 {
		rl.RequestsPerSecond = cfg.RateLimitRPS
	}
	if cfg.RateLimitBurst > 0 {
		rl.BurstSize = cfg.RateLimitBurst
	}
	return rl
}

func dispatcherConfig(cfg *config.Config) notification.DispatcherConfig {
	dc := notification.DefaultDispatcherConfig()
	if cfg.NotifyWorkers > 0 {
		dc.Workers = cfg.NotifyWorkers
	}
	if cfg.NotifyQueueSize > 0 {
		dc.QueueSize = cfg.NotifyQueueSize
	}
	if cfg.NotifyMaxAttempts > 0 {
		dc.MaxAttempts = cfg.NotifyMaxAttempts
	}
	if cfg.SMTPTimeoutSeconds > 0 {
		dc.SendTimeout = time.Duration(cfg.SMTPTimeoutSeconds)*time.Second + 5*time.Second
	}
	return dc
}

func newSender(cfg *config.Config, logger zerolog.Logger) (notification.Sender, error) {
	if !cfg.SMTPEnabled() {
		logger.Warn().Msg("SMTP_HOST not set, emails are written to the log")
		return notification.NewLogSender(logger), nil
	}
	return notification.NewSMTPSender(notification.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		Timeout:  time.Duration(cfg.SMTPTimeoutSeconds) * time.Second,
	})
}

func newPublisher(cfg *config.Config, logger zerolog.Logger) (events.Publisher, error) {
	brokers := events.SplitBrokers(cfg.KafkaBrokers)
	if len(brokers) == 0 {
		logger.Info().Msg("KAFKA_BROKERS not set, lifecycle events are discarded")
		return events.NopPublisher{}, nil
	}
	p, err := events.NewKafkaPublisher(brokers, cfg.KafkaTopic)
	if err != nil {
		return nil, err
	}
	logger.Info().Strs("brokers", brokers).Str("topic", cfg.KafkaTopic).Msg("publishing lifecycle events to kafka")
	return p, nil
}

// router carries what buildRouter mounts.
type router struct {
	organizations *organization.Handler
	appointments  *appointment.Handler
	dbHealth      echo.HandlerFunc
	authn         echo.MiddlewareFunc
}

func buildRouter(cfg *config.Config, logger zerolog.Logger, r router) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", auth.DevUserHeader, auth.DevRoleHeader},
	}))
	e.Use(middleware.RequestTimeout(30 * time.Second))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "version": version})
	})
	if r.dbHealth != nil {
		e.GET("/health/db", r.dbHealth)
	}

	apiV1 := e.Group("/api/v1", r.authn, middleware.RateLimit(rateLimitConfig(cfg)))
	r.organizations.RegisterRoutes(apiV1)
	r.appointments.RegisterRoutes(apiV1)
	return e
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, logCloser := logging.New(logging.Options{
		Level:       cfg.LogLevel,
		Development: cfg.IsDev(),
		File:        cfg.LogFile,
		MaxSizeMB:   cfg.LogMaxSizeMB,
		MaxBackups:  cfg.LogMaxBackups,
		MaxAgeDays:  cfg.LogMaxAgeDays,
		Compress:    cfg.LogCompress,
	})
	defer logCloser.Close()

	ctx := context.Background()
	pool, err := openPool(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("failed to connect to database")
		return err
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	orgRepo := organization.NewRepo(pool)
	var (
		directory   organization.Directory = orgRepo
		invalidator organization.Invalidator
		rdb         *redis.Client
	)
	if cfg.RedisURL != "" {
		rdb, err = cache.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error().Err(err).Msg("failed to connect to redis")
			return err
		}
		defer rdb.Close()
		cached := organization.NewCachedDirectory(orgRepo, rdb, cfg.OrgCacheTTL, logger)
		directory, invalidator = cached, cached
		logger.Info().Dur("ttl", cfg.OrgCacheTTL).Msg("organization cache enabled")
	}

	sender, err := newSender(cfg, logger)
	if err != nil {
		return err
	}
	dispatcher := notification.NewDispatcher(sender, dispatcherConfig(cfg), logger)

	publisher, err := newPublisher(cfg, logger)
	if err != nil {
		return err
	}
	defer publisher.Close()

	authn, err := authMiddleware(cfg)
	if err != nil {
		return err
	}

	lifecycle := appointment.NewLifecycle(appointment.NewStore(pool), directory, dispatcher, publisher,
		appointment.Config{
			ClientURL:      cfg.ClientURL,
			PhoneRegion:    cfg.PhoneDefaultRegion,
			PublishTimeout: cfg.KafkaPublishTimeout,
		}, logger)

	e := buildRouter(cfg, logger, router{
		organizations: organization.NewHandler(organization.NewService(orgRepo, directory, invalidator, logger)),
		appointments:  appointment.NewHandler(lifecycle),
		dbHealth:      db.HealthHandler(pool),
		authn:         authn,
	})

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
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	if err := dispatcher.Close(shutdownCtx); err != nil {
		logger.Warn().Err(err).Interface("stats", dispatcher.Stats()).Msg("notification queue not drained")
	}
	logger.Info().Interface("notifications", dispatcher.Stats()).Msg("server stopped")
	return nil
}
