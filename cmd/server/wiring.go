package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	consenthandler "piiguard/internal/consent/handler"
	consentmetrics "piiguard/internal/consent/metrics"
	consentservice "piiguard/internal/consent/service"
	consentstore "piiguard/internal/consent/store"
	"piiguard/internal/detector"
	"piiguard/internal/pipeline"
	pipelinehandler "piiguard/internal/pipeline/handler"
	pipelinemetrics "piiguard/internal/pipeline/metrics"
	"piiguard/internal/platform/config"
	"piiguard/internal/platform/postgres"
	platformredis "piiguard/internal/platform/redis"
	"piiguard/internal/sealer"
	httptransport "piiguard/internal/transport/http"
	vaultmetrics "piiguard/internal/vault/metrics"
	vaultservice "piiguard/internal/vault/service"
	vaultstore "piiguard/internal/vault/store"
	audit "piiguard/pkg/platform/audit"
	"piiguard/pkg/platform/audit/publisher"
	auditkafka "piiguard/pkg/platform/audit/store/kafka"
	"piiguard/pkg/platform/audit/store/logsink"
	auditmemory "piiguard/pkg/platform/audit/store/memory"
	auditpostgres "piiguard/pkg/platform/audit/store/postgres"
	"piiguard/pkg/platform/privacy"
)

// infra holds connections to optional backing services. Nil fields mean the
// in-memory implementation is used instead.
type infra struct {
	redis *platformredis.Client
	db    *sql.DB
	kafka *auditkafka.Producer
}

func connectInfra(ctx context.Context, cfg config.Config, logger *slog.Logger) (*infra, error) {
	in := &infra{}
	var err error

	if in.redis, err = platformredis.New(ctx, cfg.Redis); err != nil {
		return nil, err
	}
	if in.redis != nil {
		logger.Info("secure store backed by redis")
	}

	if in.db, err = postgres.Open(ctx, cfg.Database); err != nil {
		in.close()
		return nil, err
	}
	if in.db != nil {
		if err := consentstore.EnsureSchema(ctx, in.db); err != nil {
			in.close()
			return nil, fmt.Errorf("consent schema: %w", err)
		}
		logger.Info("consent and audit backed by postgres")
	}

	if len(cfg.Kafka.Brokers) > 0 {
		in.kafka, err = auditkafka.New(cfg.Kafka.Brokers,
			auditkafka.WithTopic(cfg.Kafka.AuditTopic),
			auditkafka.WithLogger(logger),
		)
		if err != nil {
			in.close()
			return nil, fmt.Errorf("kafka producer: %w", err)
		}
		if err := in.kafka.EnsureTopic(ctx, 1); err != nil {
			logger.Warn("could not ensure audit topic", "topic", cfg.Kafka.AuditTopic, "error", err)
		}
		logger.Info("audit events forwarded to kafka", "topic", cfg.Kafka.AuditTopic)
	}
	return in, nil
}

func (in *infra) close() {
	if in.kafka != nil {
		in.kafka.Close()
	}
	if in.db != nil {
		_ = in.db.Close()
	}
	if in.redis != nil {
		_ = in.redis.Close()
	}
}

func (in *infra) healthChecks() []httptransport.HealthCheck {
	var checks []httptransport.HealthCheck
	if in.redis != nil {
		checks = append(checks, httptransport.HealthCheck{Name: "redis", Check: in.redis.Health})
	}
	if in.db != nil {
		checks = append(checks, httptransport.HealthCheck{Name: "postgres", Check: in.db.PingContext})
	}
	if in.kafka != nil {
		checks = append(checks, httptransport.HealthCheck{Name: "kafka", Check: in.kafka.Ping})
	}
	return checks
}

// In-memory audit retention limits, used when no database is configured.
const (
	auditMemorySessions      = 10_000
	auditMemoryEventsPerSess = 256
)

// buildAuditPublisher persists events to Postgres when available and always
// mirrors them to the structured log. Kafka is an additional sink.
func buildAuditPublisher(ctx context.Context, in *infra, logger *slog.Logger) (*publisher.Publisher, error) {
	var store audit.Store = auditmemory.NewInMemoryStore(
		auditmemory.WithMaxSessions(auditMemorySessions),
		auditmemory.WithMaxEventsPerSession(auditMemoryEventsPerSess),
	)
	if in.db != nil {
		pg := auditpostgres.New(in.db)
		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("audit schema: %w", err)
		}
		store = pg
	}

	external := map[string]audit.Sink{}
	if in.kafka != nil {
		external["kafka"] = in.kafka
	}
	return newAuditPublisher(store, logger, external), nil
}

// newAuditPublisher wires the log sink and every external sink. Events for an
// external sink whose breaker is open are written to the log at warn level.
func newAuditPublisher(store audit.Store, logger *slog.Logger, external map[string]audit.Sink) *publisher.Publisher {
	opts := []publisher.Option{
		publisher.WithLogger(logger),
		publisher.WithAsyncBuffer(1024),
		publisher.WithSink("log", logsink.New(logger, slog.LevelInfo)),
		publisher.WithFallback(logsink.New(logger.With("sink", "fallback"), slog.LevelWarn)),
	}
	for name, sink := range external {
		opts = append(opts, publisher.WithSink(name, sink))
	}
	return publisher.NewPublisher(store, opts...)
}

// services are the wired domain services.
type services struct {
	vault    *vaultservice.Service
	consent  *consentservice.Service
	pipeline *pipeline.Service
}

func buildServices(cfg config.Config, in *infra, emitter audit.Emitter, reg prometheus.Registerer, logger *slog.Logger) (*services, error) {
	hasher, err := privacy.NewHasher([]byte(cfg.Vault.ContextHashKey))
	if err != nil {
		return nil, err
	}
	if cfg.Vault.ContextHashKey == "" {
		logger.Warn("CONTEXT_HASH_KEY not set; context fingerprints are stable only for this process")
	}

	var vs vaultstore.Store = vaultstore.NewInMemoryStore()
	if in.redis != nil {
		vs = vaultstore.NewRedisStore(in.redis.Client)
	}
	vault, err := vaultservice.New(vs,
		sealer.New(sealer.WithIterations(cfg.Vault.KDFIterations), sealer.WithLogger(logger)),
		vaultservice.WithAuditor(emitter),
		vaultservice.WithHasher(hasher),
		vaultservice.WithMetrics(vaultmetrics.New(reg)),
		vaultservice.WithLogger(logger),
		vaultservice.WithSessionTTL(cfg.Vault.SessionOnlyTTL),
		vaultservice.WithMaxFailedRetrievals(cfg.Vault.MaxFailedRetrievals),
	)
	if err != nil {
		return nil, fmt.Errorf("vault service: %w", err)
	}

	var tx consentservice.ConsentStoreTx
	if in.db != nil {
		tx = newConsentPostgresTx(in.db)
	} else {
		tx = consentservice.NewInMemoryTx(consentstore.NewInMemoryStore())
	}
	consent, err := consentservice.New(tx, vault,
		consentservice.WithAuditor(emitter),
		consentservice.WithHasher(hasher),
		consentservice.WithMetrics(consentmetrics.New(reg)),
		consentservice.WithLogger(logger),
		consentservice.WithPolicyVersion(cfg.Consent.PolicyVersion),
	)
	if err != nil {
		return nil, fmt.Errorf("consent service: %w", err)
	}

	det := detector.New(
		detector.WithMaxBytes(cfg.Detector.MaxDocumentBytes),
		detector.WithLogger(logger),
	)
	pipe, err := pipeline.New(det, vault,
		pipeline.WithConsent(consent),
		pipeline.WithAuditor(emitter),
		pipeline.WithMetrics(pipelinemetrics.New(reg)),
		pipeline.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("pipeline service: %w", err)
	}

	return &services{vault: vault, consent: consent, pipeline: pipe}, nil
}

func (s *services) features(logger *slog.Logger) []httptransport.Registrar {
	return []httptransport.Registrar{
		pipelinehandler.New(s.pipeline, logger),
		consenthandler.New(s.consent, logger),
	}
}
