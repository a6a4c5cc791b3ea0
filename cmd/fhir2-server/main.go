package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/ehr/fhir2/internal/config"
	"github.com/ehr/fhir2/internal/domain/mapping"
	"github.com/ehr/fhir2/internal/modules"
	"github.com/ehr/fhir2/internal/platform/container"
	"github.com/ehr/fhir2/internal/platform/db"
	"github.com/ehr/fhir2/internal/platform/fhir"
	"github.com/ehr/fhir2/internal/platform/middleware"
	"github.com/ehr/fhir2/internal/platform/plugin"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "fhir2-server",
		Short: "FHIR API server for the host EHR platform",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(modulesCmd())
	rootCmd.AddCommand(tenantCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the FHIR API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run module database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations of every module",
		RunE: func(cmd *cobra.Command, args []string) error {
			schemaFlag, _ := cmd.Flags().GetString("schema")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := context.Background()
			pool, orm, err := openStores(ctx, cfg, zerolog.Nop())
			if err != nil {
				return err
			}
			defer pool.Close()

			schema := targetSchema(schemaFlag, cfg)
			fmt.Fprintf(cmd.OutOrStdout(), "Running migrations on schema: %s\n", schema)
			if err := mapping.Migrate(orm.WithContext(ctx)); err != nil {
				return fmt.Errorf("migrate mapping tables: %w", err)
			}
			count, err := modules.MigrateSchema(ctx, pool, schema, modules.Migrations())
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("schema", "", "Target schema (default: schema of DEFAULT_TENANT)")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status of every module",
		RunE: func(cmd *cobra.Command, args []string) error {
			schemaFlag, _ := cmd.Flags().GetString("schema")

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

			schema := targetSchema(schemaFlag, cfg)
			var statuses []db.MigrationStatus
			for _, set := range modules.Migrations() {
				s, err := db.NewMigrator(pool, set.Name, set.FS).Status(ctx, schema)
				if err != nil {
					return fmt.Errorf("failed to get migration status of %s: %w", set.Name, err)
				}
				statuses = append(statuses, s...)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Migration status for schema: %s\n", schema)
			printStatus(cmd.OutOrStdout(), statuses)
			return nil
		},
	}
	statusCmd.Flags().String("schema", "", "Target schema (default: schema of DEFAULT_TENANT)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func printStatus(w io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "%-20s %-8s %-32s %-8s %s\n", "MODULE", "VERSION", "NAME", "STATUS", "APPLIED AT")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-20s %-8d %-32s %-8s %s\n", s.Module, s.Version, s.Name, status, appliedAt)
	}
}

func modulesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "modules",
		Short: "List the installable modules and the FHIR components they contribute",
		RunE: func(cmd *cobra.Command, args []string) error {
			printModules(cmd.OutOrStdout(), modules.Declared(modules.Deps{}, nil))
			return nil
		},
	}
}

func printModules(w io.Writer, mods []*plugin.Module) {
	for _, m := range mods {
		info := modules.Describe(m, false)
		fmt.Fprintf(w, "%s %s\n", info.Name, info.Version)
		for name, version := range info.RequiredModules {
			fmt.Fprintf(w, "  requires %s %s\n", name, version)
		}
		for _, s := range info.Services {
			fmt.Fprintf(w, "  %-18s %s\n", s.Kind, s.Name)
		}
	}
}

func tenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage tenants",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "create <id>",
		Short: "Create a tenant schema and apply every module migration to it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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

			schema, err := db.CreateTenantSchema(ctx, pool, args[0])
			if err != nil {
				return err
			}
			count, err := modules.MigrateSchema(ctx, pool, schema, modules.Migrations())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Tenant schema %s created, %d migration(s) applied.\n", schema, count)
			return nil
		},
	})
	return cmd
}

func targetSchema(flag string, cfg *config.Config) string {
	if flag != "" {
		return flag
	}
	return db.TenantSchema(cfg.DefaultTenant)
}

func newLogger(cfg *config.Config, out io.Writer) zerolog.Logger {
	var logger zerolog.Logger
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: out})
	} else {
		logger = zerolog.New(out)
	}
	level, err := cfg.Level()
	if err != nil {
		level = zerolog.InfoLevel
	}
	return logger.Level(level).With().Timestamp().Logger()
}

func openStores(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*pgxpool.Pool, *gorm.DB, error) {
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, nil, err
	}
	orm, err := db.OpenORM(pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return pool, orm, nil
}

// app is the wired server: module host, FHIR activator and HTTP router.
type app struct {
	host      *plugin.Host
	activator *plugin.FHIRActivator
	server    *fhir.Server
	echo      *echo.Echo
}

func newApp(cfg *config.Config, pool *pgxpool.Pool, orm *gorm.DB, terminology *fhir.Terminology, logger zerolog.Logger) (*app, error) {
	server := fhir.NewServer("/fhir", cfg.FHIRBaseURL, modules.Version, logger)
	host := plugin.NewHost(logger)
	activator := plugin.NewFHIRActivator(host, server, logger)
	activator.SetParent(container.Values{
		container.ParentPool:        pool,
		container.ParentORM:         orm,
		container.ParentLogger:      logger,
		container.ParentTerminology: terminology,
		container.ParentFHIRBaseURL: strings.TrimSuffix(cfg.FHIRBaseURL, "/"),
	})
	host.AddListener(activator)

	deps := modules.Deps{Pool: pool, ORM: orm, Logger: logger, Schema: db.TenantSchema(cfg.DefaultTenant)}
	for _, m := range modules.Declared(deps, activator) {
		if err := host.Install(m); err != nil {
			return nil, err
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Content-Type", middleware.RequestIDHeader, "X-Tenant-ID"},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "version": modules.Version})
	})
	e.GET("/health/ready", db.HealthHandler(pool, readinessChecks(pool, activator)))

	tenant := db.TenantMiddleware(pool, cfg.DefaultTenant)
	e.Any("/fhir/*", server.Handler(), tenant)

	api := e.Group("/api/v1", tenant)
	modules.NewHandler(host, server).RegisterRoutes(api)
	host.RegisterRoutes(api)

	return &app{host: host, activator: activator, server: server, echo: e}, nil
}

func readinessChecks(pool *pgxpool.Pool, activator *plugin.FHIRActivator) map[string]db.Check {
	checks := map[string]db.Check{
		"fhir": func(ctx context.Context) error {
			_, err := activator.ApplicationContext()
			return err
		},
	}
	if pool != nil {
		checks["database"] = db.PoolCheck(pool)
	}
	return checks
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := newLogger(cfg, os.Stdout)

	ctx := context.Background()
	pool, orm, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to connect to database")
		return err
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	terminology, err := fhir.LoadTerminology()
	if err != nil {
		return fmt.Errorf("load terminology: %w", err)
	}

	a, err := newApp(cfg, pool, orm, terminology, logger)
	if err != nil {
		return err
	}
	if err := a.host.StartAll(ctx, cfg.LoadedModules); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("fhir_base_url", cfg.FHIRBaseURL).Msg("starting server")
		if err := a.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		logger.Error().Err(err).Msg("server failed")
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.echo.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	return a.host.StopAll(shutdownCtx)
}
