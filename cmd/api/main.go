package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cmlabs-hris/payroll-engine/internal/config"
	"github.com/cmlabs-hris/payroll-engine/internal/domain/payroll"
	appHTTP "github.com/cmlabs-hris/payroll-engine/internal/handler/http"
	"github.com/cmlabs-hris/payroll-engine/internal/integration/hrbackend"
	"github.com/cmlabs-hris/payroll-engine/internal/pkg/database"
	"github.com/cmlabs-hris/payroll-engine/internal/pkg/jwt"
	"github.com/cmlabs-hris/payroll-engine/internal/pkg/lock"
	"github.com/cmlabs-hris/payroll-engine/internal/repository/memory"
	"github.com/cmlabs-hris/payroll-engine/internal/repository/postgresql"
	payrollService "github.com/cmlabs-hris/payroll-engine/internal/service/payroll"
	"github.com/cmlabs-hris/payroll-engine/migrations"
	"github.com/go-chi/httplog/v3"
)

const version = "v1.0.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "payroll engine:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	logFormat := httplog.SchemaECS.Concise(false)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:       cfg.SlogLevel(),
		ReplaceAttr: logFormat.ReplaceAttr,
	})).With(
		slog.String("app", "payroll-engine"),
		slog.String("version", version),
		slog.String("env", cfg.App.Env),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		repo    payroll.PayrollRepository
		tx      payroll.Transactor
		roster  payroll.RosterProvider
		catalog payroll.ConceptCatalog
	)

	switch cfg.Storage.Driver {
	case config.StorageDriverPostgres:
		dsn := cfg.DatabaseURL()
		if cfg.Storage.MigrationsAutoRun {
			if err := database.RunMigrations(dsn, migrations.FS, logger); err != nil {
				return err
			}
		}

		db, err := database.NewPostgreSQLDB(ctx, dsn, database.PoolConfig{
			MaxConns: cfg.Database.MaxConns,
			MinConns: cfg.Database.MinConns,
		})
		if err != nil {
			return fmt.Errorf("error connecting to database: %w", err)
		}
		defer db.Close()

		repo = postgresql.NewPayrollRepository(db)
		tx = postgresql.NewTxManager(db)
		if cfg.Storage.RosterSource == config.RosterSourcePostgres {
			roster = postgresql.NewRosterRepository(db)
			catalog = postgresql.NewConceptRepository(db)
		}
	case config.StorageDriverMemory:
		store := memory.NewStore()
		repo, tx = store, store
		logger.Warn("using in-memory payroll storage, runs are lost on restart")
	}

	if cfg.Storage.RosterSource == config.RosterSourceHTTP {
		client, err := hrbackend.NewClient(hrbackend.Config{
			BaseURL: cfg.HRBackend.URL,
			Token:   cfg.HRBackend.Token,
			Timeout: cfg.HRBackend.Timeout,
		})
		if err != nil {
			return fmt.Errorf("error creating hr backend client: %w", err)
		}
		roster, catalog = client, client
	}

	var locker lock.Locker
	if cfg.Redis.Address != "" {
		rdb, err := lock.NewRedisClient(ctx, cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		defer rdb.Close()
		locker = lock.NewRedisLocker(rdb, cfg.Lock.TTL, cfg.Lock.WaitTimeout)
	} else {
		locker = lock.NewMemoryLocker(cfg.Lock.WaitTimeout)
	}

	engine := payrollService.NewEngine(payrollService.EngineConfig{
		StandardDaysInPeriod:  cfg.Payroll.StandardDays,
		StandardHoursPerMonth: cfg.Payroll.StandardHoursPerMonth,
		AmountScale:           cfg.Payroll.AmountScale,
	})
	payrollSvc := payrollService.NewPayrollService(repo, tx, roster, catalog, locker, engine, logger)

	JWTService := jwt.NewJWTService(cfg.JWT.Secret, cfg.JWT.AccessExpiration)
	payrollHandler := appHTTP.NewPayrollHandler(payrollSvc)

	router := appHTTP.NewRouter(appHTTP.RouterConfig{
		AllowedOrigins: cfg.App.CORSAllowedOrigins,
		LogLevel:       cfg.SlogLevel(),
	}, logger, JWTService, payrollHandler)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server running", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
	}
	return nil
}
