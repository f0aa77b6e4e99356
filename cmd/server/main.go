package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	id "authrelay/pkg/domain"
	auditpkg "authrelay/pkg/platform/audit"
	auditconsumer "authrelay/pkg/platform/audit/consumer"
	auditpublisher "authrelay/pkg/platform/audit/publisher"
	auditmem "authrelay/pkg/platform/audit/store/memory"
	auditpg "authrelay/pkg/platform/audit/store/postgres"
	auditworker "authrelay/pkg/platform/audit/worker"
	adminmw "authrelay/pkg/platform/middleware/admin"
	"authrelay/pkg/platform/middleware/metadata"
	request "authrelay/pkg/platform/middleware/request"
	requesttime "authrelay/pkg/platform/middleware/requesttime"

	"authrelay/internal/delegation/alerting"
	delconfig "authrelay/internal/delegation/config"
	"authrelay/internal/delegation/handler"
	"authrelay/internal/delegation/metrics"
	mw "authrelay/internal/delegation/middleware"
	"authrelay/internal/delegation/models"
	"authrelay/internal/delegation/ports"
	delresolver "authrelay/internal/delegation/resolver"
	"authrelay/internal/delegation/secrets"
	"authrelay/internal/delegation/service"
	credstore "authrelay/internal/delegation/store/credential"
	failstore "authrelay/internal/delegation/store/failure"
	userstore "authrelay/internal/delegation/store/user"
	"authrelay/internal/granttoken"
	"authrelay/internal/platform/config"
	"authrelay/internal/platform/httpserver"
	"authrelay/internal/platform/kafka"
	"authrelay/internal/platform/logger"
	"authrelay/internal/platform/postgres"
	platformredis "authrelay/internal/platform/redis"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Server, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Stores: Postgres and Redis when configured, in-memory otherwise.
	var (
		credentials  ports.CredentialStore
		resolver     ports.IdentityResolver
		failures     ports.FailureStore
		auditStore   auditpkg.Store
		relay        *auditworker.Relay
		materializer *kafka.Consumer
	)

	if cfg.PostgresURL != "" {
		db, err := postgres.Open(ctx, cfg.PostgresURL)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			return err
		}
		credentials = credstore.NewPostgres(db)
		resolver = delresolver.NewGuarded(userstore.NewPostgres(db), log)
		pgAudit := auditpg.New(db)
		auditStore = pgAudit

		if cfg.KafkaBrokers != "" {
			producer, err := kafka.NewProducer(ctx, cfg.KafkaBrokers)
			if err != nil {
				return err
			}
			defer producer.Close()
			relay = auditworker.NewRelay(db, producer, log)

			// Read side: consume the audit topics back into audit_events
			// so the admin trail endpoint has something to query.
			materializer, err = kafka.NewConsumer(cfg.KafkaBrokers, "authrelay-audit-materializer",
				kafka.AuditTopics, auditconsumer.NewMaterializer(pgAudit, log), log)
			if err != nil {
				return err
			}
			defer materializer.Close()
		}
	} else {
		memCreds := credstore.New()
		memUsers := userstore.New()
		seedDevData(ctx, log, memCreds, memUsers)
		credentials = memCreds
		resolver = memUsers
		auditStore = auditmem.NewInMemoryStore()
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		failures = failstore.NewRedisStore(redisClient.Client)
	} else {
		failures = failstore.NewInMemoryStore()
	}

	publisher := auditpublisher.NewPublisher(auditStore,
		auditpublisher.WithAsyncBuffer(1024),
		auditpublisher.WithLogger(log),
	)
	defer publisher.Close()

	tunables, err := delconfig.New(delconfig.Tunables{
		FailureThreshold: cfg.FailureThreshold,
		FailureWindow:    cfg.FailureWindow,
	})
	if err != nil {
		return err
	}

	m := metrics.New()
	orchestrator, err := service.New(resolver, failures,
		service.WithLogger(log),
		service.WithAuditPublisher(publisher),
		service.WithAlertSink(alerting.NewComposite(alerting.NewLogSink(log))),
		service.WithMetrics(m),
		service.WithConfig(tunables),
	)
	if err != nil {
		return err
	}

	tokens := granttoken.NewService(cfg.GrantTokenKey, cfg.GrantTokenIssuer, cfg.GrantTokenTTL)
	h := handler.New(tokens, tunables, failures, log, publisher, publisher)

	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(request.Middleware)
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)

	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(credentials, log))
		r.Use(mw.Delegate(orchestrator, log))
		h.Register(r)
	})

	if cfg.AdminToken != "" {
		r.Group(func(r chi.Router) {
			r.Use(adminmw.RequireAdminToken(cfg.AdminToken, log))
			h.RegisterAdmin(r)
		})
	} else {
		log.Warn("admin token not set, admin endpoints disabled")
	}

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", healthz(redisClient))

	srv := httpserver.New(cfg.Addr, r)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if relay != nil {
		g.Go(func() error {
			return relay.Run(gctx)
		})
	}
	if materializer != nil {
		g.Go(func() error {
			return materializer.Run(gctx)
		})
	}

	return g.Wait()
}

func healthz(redisClient *platformredis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if redisClient != nil {
			if err := redisClient.Health(r.Context()); err != nil {
				http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}

// seedDevData loads a demo credential and users into the in-memory stores so
// the service is usable without Postgres. The generated API key is logged
// once at startup.
func seedDevData(ctx context.Context, log *slog.Logger, creds *credstore.InMemoryStore, users *userstore.InMemoryStore) {
	secret, err := secrets.Generate()
	if err != nil {
		log.Error("failed to generate dev api key", "error", err)
		return
	}
	hash, err := secrets.Hash(secret)
	if err != nil {
		log.Error("failed to hash dev api key", "error", err)
		return
	}

	cred, err := models.NewCredential(
		id.CredentialID(uuid.New()), "dev-service",
		[]models.Permission{
			models.PermRequirementsRead,
			models.PermRequirementsWrite,
			models.PermAssessmentsRead,
		},
		true, []string{"@example.com"},
	)
	if err != nil {
		log.Error("failed to build dev credential", "error", err)
		return
	}
	cred.SecretHash = hash

	legacy, err := models.NewCredential(
		id.CredentialID(uuid.New()), "legacy-service",
		[]models.Permission{models.PermStandardsRead},
		false, nil,
	)
	if err != nil {
		log.Error("failed to build legacy credential", "error", err)
		return
	}
	legacy.SecretHash = hash

	_ = creds.Save(ctx, cred)
	_ = creds.Save(ctx, legacy)
	_ = users.Save(ctx, &models.Identity{
		ID:     id.UserID(uuid.New()),
		Email:  "admin@example.com",
		Roles:  []models.Role{models.RoleAdmin},
		Active: true,
	})
	_ = users.Save(ctx, &models.Identity{
		ID:     id.UserID(uuid.New()),
		Email:  "user@example.com",
		Roles:  []models.Role{models.RoleUser},
		Active: true,
	})

	log.Info("seeded in-memory dev data",
		"dev_api_key", cred.ID.String()+"."+secret,
		"legacy_api_key", legacy.ID.String()+"."+secret,
	)
}
