// Command heron runs the HERON access portal: the JSON API, the health
// and metrics endpoint, and the scheduled expiration and reminder jobs.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/kumc-bmi/heron-portal/pkg/access"
	"github.com/kumc-bmi/heron-portal/pkg/api"
	"github.com/kumc-bmi/heron-portal/pkg/audit"
	"github.com/kumc-bmi/heron-portal/pkg/config"
	"github.com/kumc-bmi/heron-portal/pkg/enterprise"
	"github.com/kumc-bmi/heron-portal/pkg/identity"
	"github.com/kumc-bmi/heron-portal/pkg/jobs"
	"github.com/kumc-bmi/heron-portal/pkg/middleware"
	"github.com/kumc-bmi/heron-portal/pkg/notify"
	"github.com/kumc-bmi/heron-portal/pkg/observability"
	"github.com/kumc-bmi/heron-portal/pkg/records"
	"github.com/kumc-bmi/heron-portal/pkg/sponsorship"
	"github.com/kumc-bmi/heron-portal/pkg/training"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(observability.ParseLogLevel(cfg.Observability.LogLevel), os.Stdout)
	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("portal exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *observability.Logger) error {
	ctx := context.Background()

	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(nil)
	}
	var otelMetrics *observability.OTelMetrics
	if cfg.Observability.OTelEnabled {
		if otelMetrics, err = observability.NewOTelMetrics(); err != nil {
			return fmt.Errorf("failed to create OTel metrics: %w", err)
		}
	}

	// Record store
	db, err := sql.Open(cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxConns)
	db.SetMaxIdleConns(cfg.Database.MinConns)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Database.Timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("failed to reach database: %w", err)
	}
	if err := records.Migrate(db); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	store := records.NewSQLStore(db, logger, metrics)

	// Training registry, on its own database when configured
	var registry training.Registry
	if cfg.Database.TrainingURL != "" {
		trainingDB, err := sql.Open(cfg.Database.Driver, cfg.Database.TrainingURL)
		if err != nil {
			return fmt.Errorf("failed to open training database: %w", err)
		}
		defer trainingDB.Close()
		registry = training.NewSQLRegistry(trainingDB, logger)
	} else {
		registry = training.NewSQLRegistry(db, logger)
	}

	// Enterprise directory
	var directory enterprise.Directory
	var browser enterprise.Browser
	if cfg.Directory.URL != "" {
		ld := enterprise.NewLDAPDirectory(enterprise.LDAPConfig{
			URL:      cfg.Directory.URL,
			BindDN:   cfg.Directory.BindDN,
			BindPass: cfg.Directory.BindPass,
			BaseDN:   cfg.Directory.BaseDN,
			Timeout:  cfg.Directory.Timeout,
		})
		directory, browser = ld, ld
	} else {
		logger.Warn("no LDAP endpoint configured; using empty in-memory directory")
		md := enterprise.NewMockDirectory()
		directory, browser = md, md
	}

	policy := config.NewQualificationPolicy(cfg.Policy.ExcludedJobCodes)
	if cfg.Policy.ExclusionFile != "" {
		if err := policy.LoadExclusionFile(cfg.Policy.ExclusionFile); err != nil {
			return fmt.Errorf("failed to load exclusion file: %w", err)
		}
		if err := policy.Watch(ctx, cfg.Policy.ExclusionFile, logger); err != nil {
			return fmt.Errorf("failed to watch exclusion file: %w", err)
		}
	}
	ent := enterprise.New(directory, policy)

	engine := access.NewEngine(ent, registry, store, logger, metrics, otelMetrics)

	// Mail
	var notifier notify.Notifier = notify.Discard{}
	if cfg.Mail.DisableSend || cfg.Mail.Host == "" {
		logger.Warn("mail delivery disabled; notifications will only be logged")
	} else {
		notifier, err = notify.NewSMTPNotifier(notify.SMTPConfig{
			Host:     cfg.Mail.Host,
			Port:     cfg.Mail.Port,
			Username: cfg.Mail.Username,
			Password: cfg.Mail.Password,
			From:     cfg.Mail.From,
			Timeout:  cfg.Mail.Timeout,
		})
		if err != nil {
			return fmt.Errorf("failed to create mail notifier: %w", err)
		}
	}
	deliveryLog := logrus.New()
	deliveryLog.SetFormatter(&logrus.JSONFormatter{})
	dispatcher := notify.NewDispatcher(notifier, deliveryLog, metrics, otelMetrics,
		notify.WithRetry(cfg.Mail.MaxRetries, cfg.Mail.RetryDelay))

	svc := sponsorship.NewService(store, ent, dispatcher, logger, metrics, otelMetrics)

	trail, err := audit.NewTrail(db, logger)
	if err != nil {
		return fmt.Errorf("failed to create audit trail: %w", err)
	}

	provider, err := buildProvider(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to build identity provider: %w", err)
	}

	secure := strings.HasPrefix(cfg.Identity.ServiceURL, "https://")
	sessions := identity.NewSessions(0, 0, secure)

	// Rate limiter, shared across instances through Redis
	var redisClient *redis.Client
	opts := []api.ServerOption{api.WithBrowser(browser)}
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		limiter := middleware.NewRateLimiter(redisClient, middleware.LoginRateLimitConfig(), "login", logger)
		opts = append(opts, api.WithLoginRateLimiter(limiter))
	}
	if metrics != nil {
		opts = append(opts, api.WithMetrics(metrics))
	}

	var archive records.Archive = records.NoopArchive{}
	if cfg.Archive.Enabled {
		archive, err = records.NewS3Archive(ctx, records.ArchiveConfig{
			Bucket:       cfg.Archive.Bucket,
			Region:       cfg.Archive.Region,
			Endpoint:     cfg.Archive.Endpoint,
			AccessKey:    cfg.Archive.AccessKey,
			SecretKey:    cfg.Archive.SecretKey,
			UsePathStyle: cfg.Archive.PathStyle,
		})
		if err != nil {
			return fmt.Errorf("failed to create agreement archive: %w", err)
		}
	}

	server := api.NewServer(provider, sessions, engine, svc, store, archive, trail, logger, opts...)

	apiServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      otelhttp.NewHandler(server.Router(), "heron-portal"),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	health := observability.NewHealthChecker(db, redisClient)
	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/healthz", health.Liveness)
	healthMux.HandleFunc("/readyz", health.Readiness)
	if metrics != nil {
		healthMux.Handle("/metrics", metrics.Handler())
	}
	healthServer := &http.Server{
		Addr:    net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler: healthMux,
	}

	shutdown := observability.NewShutdownManager(logger, apiServer, cfg.Server.ShutdownTimeout)
	shutdown.Register(func(ctx context.Context) error {
		return healthServer.Shutdown(ctx)
	})
	shutdown.Register(func(context.Context) error {
		dispatcher.Wait()
		return nil
	})

	if cfg.Jobs.Enabled {
		scheduler := jobs.NewScheduler(store, directory, dispatcher, logger, jobs.Config{
			ExpirationSchedule: cfg.Jobs.ExpirationSchedule,
			ReminderSchedule:   cfg.Jobs.ReminderSchedule,
			ReminderAge:        time.Duration(cfg.Jobs.ReminderAfterDays) * 24 * time.Hour,
		})
		if err := scheduler.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduled jobs: %w", err)
		}
		shutdown.Register(func(context.Context) error {
			scheduler.Stop()
			return nil
		})
	}

	if providers != nil {
		shutdown.Register(func(ctx context.Context) error {
			return observability.ShutdownOTel(ctx, providers, logger)
		})
	}

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithField("addr", apiServer.Addr).Info("portal API listening")
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("API server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.WithField("addr", healthServer.Addr).Info("health endpoint listening")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("health server failed: %w", err)
		}
		return nil
	})
	g.Go(shutdown.WaitForShutdown)

	return g.Wait()
}

// buildProvider selects the identity provider from config
func buildProvider(ctx context.Context, cfg *config.Config) (identity.Provider, error) {
	id := cfg.Identity
	switch id.Provider {
	case "cas":
		return identity.NewCASProvider(identity.CASConfig{
			BaseURL:         id.CASBaseURL,
			ServiceURL:      id.ServiceURL,
			TicketCacheSize: id.TicketCacheSize,
			TicketCacheTTL:  id.TicketCacheTTL,
		}), nil
	case "oidc":
		return identity.NewOIDCProvider(ctx, identity.OIDCConfig{
			IssuerURL:    id.OIDCIssuer,
			ClientID:     id.OIDCClientID,
			ClientSecret: id.OIDCClientSecret,
			RedirectURL:  id.OIDCRedirectURL,
		})
	case "saml":
		return identity.NewSAMLProvider(identity.SAMLConfig{
			EntityID:    id.SAMLIDPIssuer,
			SSOURL:      id.SAMLIDPSSOURL,
			Certificate: id.SAMLIDPCertPEM,
			MetadataURL: id.SAMLSPIssuer,
			CallbackURL: id.SAMLACSURL,
		})
	default:
		return nil, fmt.Errorf("unknown identity provider %q", id.Provider)
	}
}
