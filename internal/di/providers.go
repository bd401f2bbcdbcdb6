package di

import (
	"context"
	"fmt"
	"os"
	"time"

	"SOCPulse/internal/domain/models"
	"SOCPulse/internal/domain/repository"
	domsvc "SOCPulse/internal/domain/service"
	"SOCPulse/internal/handler/api"
	mid "SOCPulse/internal/middleware"
	internalrepo "SOCPulse/internal/repository"
	"SOCPulse/internal/service/broadcast"
	svccache "SOCPulse/internal/service/cache"
	"SOCPulse/internal/service/hostmetrics"
	"SOCPulse/internal/service/ratelimit"
	"SOCPulse/internal/services/anomaly"
	"SOCPulse/internal/services/classifier"
	"SOCPulse/internal/services/features"
	"SOCPulse/internal/services/integrations"
	"SOCPulse/internal/services/playbook"
	"SOCPulse/internal/services/risk"
	"SOCPulse/internal/usecase"
	pkgcache "SOCPulse/pkg/cache"
	pkgch "SOCPulse/pkg/clickhouse"
	"SOCPulse/pkg/config"
	xhttp "SOCPulse/pkg/http"
	pkgkafka "SOCPulse/pkg/kafka"
	applogger "SOCPulse/pkg/logger"
	"SOCPulse/pkg/metrics"
	pkgpg "SOCPulse/pkg/postgres"
	"SOCPulse/pkg/queue"
	"SOCPulse/pkg/server"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
)

// ProvideLogger creates the application logger from config.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideClickHouseClient creates a ClickHouse client and the telemetry schema.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, func(), error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cc := cfg.ClickHouse
	client, err := pkgch.NewClient(ctx, pkgch.Config{
		Host:         cc.Host,
		Port:         cc.Port,
		Database:     cc.Database,
		User:         cc.User,
		Password:     cc.Password,
		UseHTTP:      cc.UseHTTP,
		DialTimeout:  cc.DialTimeout,
		ReadTimeout:  cc.ReadTimeout,
		MaxExecTime:  cc.MaxExecutionTime,
		AsyncInsert:  cc.AsyncInsert,
		WaitForAsync: cc.WaitForAsync,
		Compression:  cc.Compression,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}
	if err := client.InitSchema(ctx, internalrepo.ClickHouseSchema); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	return client, func() { _ = client.Close() }, nil
}

// ProvidePostgresClient creates the incident/audit database client and schema.
func ProvidePostgresClient(cfg *config.Config) (*pkgpg.Client, func(), error) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	client, err := pkgpg.NewClient(ctx, pkgpg.Config{
		DSN:             cfg.Postgres.DSN,
		MaxConns:        cfg.Postgres.MaxConns,
		MinConns:        cfg.Postgres.MinConns,
		ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
		PingTimeout:     cfg.Postgres.PingTimeout,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("postgres client: %w", err)
	}
	if err := client.InitSchema(ctx, internalrepo.PostgresSchema); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("postgres schema: %w", err)
	}

	return client, func() { _ = client.Close() }, nil
}

// Caches bundles the stores that live in Redis, or in process memory when
// Redis is disabled.
type Caches struct {
	Locker usecase.Locker
	Intel  pkgcache.Store
	Models svccache.BytesCache
	// Redis is nil when Redis is disabled.
	Redis *redis.Client
}

// ProvideCaches builds the lock, enrichment and model caches.
func ProvideCaches(cfg *config.Config, logger *applogger.Logger) (*Caches, func(), error) {
	if !cfg.Redis.Enabled {
		logger.Warn("redis disabled, locks and model artifacts are process local")
		mem := pkgcache.NewMemoryCache(pkgcache.MemoryConfig{})
		return &Caches{Locker: mem, Intel: mem, Models: svccache.NewTTLCache()}, func() { _ = mem.Close() }, nil
	}

	rc, err := pkgcache.NewRedisCache(context.Background(), pkgcache.RedisConfig{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
		Prefix:   cfg.Redis.Prefix,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("redis cache: %w", err)
	}
	layered := pkgcache.NewLayeredCache(rc, pkgcache.LayeredConfig{L1Size: 4096})

	return &Caches{
		Locker: rc,
		Intel:  layered,
		Models: svccache.NewRedisCacheWithClient(rc.Client(), cfg.Redis.Prefix+":model:"),
		Redis:  rc.Client(),
	}, func() { _ = layered.Close() }, nil
}

// ProvideModelStore persists model artifacts in the model cache.
func ProvideModelStore(c *Caches, cfg *config.Config) repository.ModelStore {
	return internalrepo.NewCacheModelStore(c.Models, cfg.Models.TTL)
}

// ProvidePostgresStore creates the incident and audit repository.
func ProvidePostgresStore(pg *pkgpg.Client, logger *applogger.Logger) *internalrepo.PostgresStore {
	return internalrepo.NewPostgresStore(pg, logger)
}

// ProvideTelemetryStore creates the metric and anomaly repository.
func ProvideTelemetryStore(ch *pkgch.Client, logger *applogger.Logger) *internalrepo.CHTelemetryStore {
	return internalrepo.NewCHTelemetryStore(ch, logger)
}

// ProvideKafkaProducer creates a Kafka producer, nil when Kafka is disabled.
// Error logs are aggregated and shipped through it.
func ProvideKafkaProducer(cfg *config.Config, logger *applogger.Logger) (*pkgkafka.Producer, func(), error) {
	if !cfg.Kafka.Enabled {
		return nil, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(pkgkafka.ProducerConfig{
		Brokers:      cfg.Kafka.Brokers,
		RequiredAcks: cfg.Kafka.RequiredAcks,
		Compression:  cfg.Kafka.Compression,
		MaxAttempts:  cfg.Kafka.Producer.MaxAttempts,
		BatchSize:    cfg.Kafka.Producer.BatchSize,
		BatchBytes:   int64(cfg.Kafka.Producer.BatchBytes),
		Linger:       cfg.Kafka.Producer.Linger,
		WriteTimeout: cfg.Kafka.Producer.WriteTimeout,
		ReadTimeout:  cfg.Kafka.Producer.ReadTimeout,
		Async:        cfg.Kafka.Producer.Async,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}

	if cfg.Kafka.Topics.Logs != "" {
		logger.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   cfg.Log.CollectInterval,
			CountThreshold: cfg.Log.CollectMax,
			Topic:          cfg.Kafka.Topics.Logs,
			Publisher:      producer,
		})
	}

	return producer, func() {
		logger.RemoveCollector()
		_ = producer.Close()
	}, nil
}

// ProvideNATS connects to NATS, nil when no URL is configured.
func ProvideNATS(cfg *config.Config) (*nats.Conn, func(), error) {
	if cfg.NATS.URL == "" {
		return nil, func() {}, nil
	}
	nc, err := broadcast.ConnectNATS(cfg.NATS.URL, "socpulse")
	if err != nil {
		return nil, nil, err
	}
	return nc, func() { _ = nc.Drain() }, nil
}

// ProvideHub creates the websocket hub.
func ProvideHub(cfg *config.Config, logger *applogger.Logger) *broadcast.Hub {
	return broadcast.NewHub(cfg.Stream.Hub, broadcast.StaticTokens(cfg.Stream.Tokens), logger.Component("ws_hub"))
}

// ProvideBroadcaster fans events out to websocket clients, Kafka and NATS.
func ProvideBroadcaster(
	cfg *config.Config,
	hub *broadcast.Hub,
	producer *pkgkafka.Producer,
	nc *nats.Conn,
	logger *applogger.Logger,
) repository.Broadcaster {
	sinks := []repository.Broadcaster{hub}
	if producer != nil && cfg.Kafka.Topics.Events != "" {
		sinks = append(sinks, broadcast.NewKafkaSink(producer, cfg.Kafka.Topics.Events))
	}
	if nc != nil {
		sinks = append(sinks, broadcast.NewNATSSink(nc, cfg.NATS.SubjectPrefix))
	}
	return broadcast.NewFanout(logger, sinks...)
}

// ProvideExtractor creates the feature extractor with the stock rules.
func ProvideExtractor() *features.Extractor {
	return features.NewExtractor(features.DefaultRules())
}

func ProvideAssessor(cfg *config.Config) *risk.Assessor {
	return risk.NewAssessor(cfg.Risk)
}

func ProvideClassifier(ext *features.Extractor, assessor *risk.Assessor, cfg *config.Config, logger *applogger.Logger) *classifier.Classifier {
	return classifier.New(ext, assessor, cfg.Classifier, logger.Component("classifier"))
}

func ProvideScorer(cfg *config.Config, logger *applogger.Logger) *anomaly.Scorer {
	return anomaly.NewScorer(
		anomaly.DefaultSpecs(),
		anomaly.NewRegistry(models.AllCategories),
		anomaly.Config{Forest: cfg.Anomaly.Forest, MinSamples: cfg.Anomaly.MinSamples},
		logger.Component("anomaly_scorer"),
	)
}

// ProvideAnomalyService creates the anomaly training and scoring usecase.
func ProvideAnomalyService(
	cfg *config.Config,
	scorer *anomaly.Scorer,
	telemetry repository.TelemetryStore,
	store repository.ModelStore,
	caches *Caches,
	out repository.Broadcaster,
	m repository.Metrics,
	logger *applogger.Logger,
) *usecase.AnomalyService {
	return usecase.NewAnomalyService(scorer, telemetry, store, caches.Locker, out, m, logger, usecase.AnomalyConfig{
		TrainingWindow: cfg.Anomaly.TrainingWindow,
		LockTTL:        cfg.Anomaly.LockTTL,
		SyntheticSeed:  cfg.Anomaly.Forest.Seed,
	})
}

// ProvideDeployers builds the S3 deployer plus stubs for the other clouds.
func ProvideDeployers(cfg *config.Config, logger *applogger.Logger) ([]domsvc.ModelDeployer, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var out []domsvc.ModelDeployer
	s3d, err := integrations.NewS3Deployer(ctx, cfg.Deploy.AWS)
	if err != nil {
		// AWS stays unavailable; deploys to it answer 400.
		logger.Warn("aws deployer disabled", applogger.Error(err))
	} else {
		out = append(out, s3d)
	}
	for _, p := range cfg.Deploy.Stubs {
		stub, err := integrations.NewStubDeployer(p)
		if err != nil {
			return nil, fmt.Errorf("deploy stubs: %w", err)
		}
		out = append(out, stub)
	}
	return out, nil
}

// ProvideIncidentService creates the incident classification usecase.
func ProvideIncidentService(
	cfg *config.Config,
	ext *features.Extractor,
	clf *classifier.Classifier,
	incidents repository.IncidentStore,
	audits repository.AuditStore,
	telemetry repository.TelemetryStore,
	store repository.ModelStore,
	caches *Caches,
	out repository.Broadcaster,
	m repository.Metrics,
	logger *applogger.Logger,
	deployers []domsvc.ModelDeployer,
	anomalies *usecase.AnomalyService,
) *usecase.IncidentService {
	return usecase.NewIncidentService(usecase.IncidentDeps{
		Extractor:       ext,
		Classifier:      clf,
		Incidents:       incidents,
		Audits:          audits,
		Telemetry:       telemetry,
		Models:          store,
		Locker:          caches.Locker,
		Out:             out,
		Metrics:         m,
		Logger:          logger,
		Deployers:       deployers,
		LoadedAnomalies: anomalies.Loaded,
		LockTTL:         cfg.Models.LockTTL,
	})
}

func ProvideThreatIntel(cfg *config.Config, caches *Caches, logger *applogger.Logger) *integrations.VirusTotal {
	return integrations.NewVirusTotal(cfg.Integrations.VirusTotal, caches.Intel, logger.Component("virustotal"))
}

func ProvideContainment(cfg *config.Config, logger *applogger.Logger) *integrations.FleetDM {
	return integrations.NewFleetDM(cfg.Integrations.FleetDM, logger.Component("fleetdm"))
}

// ProvideOrchestrator creates the playbook orchestrator with every stock action bound.
func ProvideOrchestrator(
	cfg *config.Config,
	incidents repository.IncidentStore,
	audits repository.AuditStore,
	intel *integrations.VirusTotal,
	containment *integrations.FleetDM,
	out repository.Broadcaster,
	m repository.Metrics,
	logger *applogger.Logger,
) *playbook.Orchestrator {
	o := playbook.NewOrchestrator(cfg.Playbook.Tiers, incidents, m, logger.Component("playbook"))
	playbook.RegisterDefaults(o, playbook.Ports{
		Intel:       intel,
		Containment: containment,
		Notifier:    integrations.NewBroadcastNotifier(out, logger),
		Cases:       integrations.NewLocalCaseManager(incidents, audits),
		Audit:       audits,
	})
	return o
}

// ProvideResponseService creates the automated response usecase.
func ProvideResponseService(
	cfg *config.Config,
	incidents repository.IncidentStore,
	audits repository.AuditStore,
	analysis *usecase.IncidentService,
	orch *playbook.Orchestrator,
	intel *integrations.VirusTotal,
	containment *integrations.FleetDM,
	out repository.Broadcaster,
	m repository.Metrics,
	logger *applogger.Logger,
) *usecase.ResponseService {
	return usecase.NewResponseService(usecase.ResponseDeps{
		Incidents:    incidents,
		Audits:       audits,
		Analysis:     analysis,
		Orchestrator: orch,
		Intel:        intel,
		Containment:  containment,
		Out:          out,
		Metrics:      m,
		Logger:       logger,
		Timeout:      cfg.Playbook.Timeout,
	})
}

// ProvidePlaybookQueue creates the Redis queue running playbooks, nil when
// the queue is disabled.
func ProvidePlaybookQueue(cfg *config.Config, caches *Caches, svc *usecase.ResponseService, logger *applogger.Logger) (*queue.RedisQueue, error) {
	if !cfg.Queue.Enabled || caches.Redis == nil {
		return nil, nil
	}
	q, err := queue.NewRedisQueue(caches.Redis, queue.Config{
		Workers:    cfg.Queue.Workers,
		MaxPending: cfg.Queue.QueueSize,
		MaxRetries: cfg.Queue.RetryLimit,
		RetryDelay: cfg.Queue.RetryDelay,
		JobTimeout: cfg.Queue.JobTimeout,
	}, logger, queue.WithKeyPrefix(cfg.Redis.Prefix+":queue"))
	if err != nil {
		return nil, fmt.Errorf("playbook queue: %w", err)
	}
	q.RegisterJob(usecase.NewPlaybookJob(svc))
	return q, nil
}

// ProvideAlertPipeline puts dedupe and throttling in front of the response
// path: the queue when enabled, the inline service otherwise.
func ProvideAlertPipeline(cfg *config.Config, svc *usecase.ResponseService, q *queue.RedisQueue, m repository.Metrics) (*mid.AlertPipeline, error) {
	var proc mid.Proc = svc
	if q != nil {
		proc = usecase.NewQueueDispatcher(q)
	}
	return mid.NewAlertPipeline(proc, m, cfg.Pipeline.DedupSize,
		mid.WithAgentRate(cfg.Pipeline.AgentRate, cfg.Pipeline.AgentBurst),
		mid.WithBufferSize(cfg.Pipeline.BufferSize),
		mid.WithDedupWindow(cfg.Pipeline.DedupWindow),
	)
}

// ProvideKafkaAlertsHandler validates and forwards alerts from the alerts topic.
func ProvideKafkaAlertsHandler(cfg *config.Config, p *mid.AlertPipeline, m repository.Metrics, logger *applogger.Logger) (*usecase.KafkaAlertsHandler, error) {
	return usecase.NewKafkaAlertsHandler(cfg.Kafka.Topics.Alerts, p, m, logger)
}

// ProvideKafkaConsumer creates a Kafka consumer configured from YAML, nil
// when Kafka is disabled.
func ProvideKafkaConsumer(cfg *config.Config, m repository.Metrics, logger *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	kc := cfg.Kafka.Consumer
	consumer, err := pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
		Brokers:    cfg.Kafka.Brokers,
		GroupID:    kc.GroupID,
		Workers:    kc.Workers,
		BufferSize: kc.BufferSize,
		Attempts:   uint(kc.RetryMax + 1),
		BackoffMin: kc.BackoffMin,
		BackoffMax: kc.BackoffMax,
		DLQTopic:   kc.DLQTopic,
		MinBytes:   kc.MinBytes,
		MaxBytes:   kc.MaxBytes,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.Use(mid.AlertConsumerHooks(m, logger))
	return consumer, nil
}

// ProvideSampler creates the host metric sampler, nil when disabled.
func ProvideSampler(
	cfg *config.Config,
	telemetry repository.TelemetryStore,
	audits repository.AuditStore,
	anomalies *usecase.AnomalyService,
	m repository.Metrics,
	logger *applogger.Logger,
) *usecase.Sampler {
	if !cfg.Sampler.Enabled {
		return nil
	}
	host := cfg.Sampler.Host
	if host == "" {
		host, _ = os.Hostname()
	}
	src := hostmetrics.NewProcSource(host,
		hostmetrics.WithRoot(cfg.Sampler.ProcRoot),
		hostmetrics.WithCPUWindow(cfg.Sampler.CPUWindow),
	)
	return usecase.NewSampler(src, telemetry, audits, anomalies, cfg.Sampler.Interval, host, m, logger)
}

func ProvideRateLimiter(cfg *config.Config) *ratelimit.Limiter {
	if cfg.Server.RatePerSecond <= 0 {
		return nil
	}
	return ratelimit.New(cfg.Server.RatePerSecond, cfg.Server.RateBurst)
}

// ProvideHTTPHandler creates the REST and websocket routes.
func ProvideHTTPHandler(
	logger *applogger.Logger,
	incidents *usecase.IncidentService,
	anomalies *usecase.AnomalyService,
	response *usecase.ResponseService,
	telemetry repository.TelemetryStore,
	hub *broadcast.Hub,
) xhttp.Handler {
	return api.NewSOCEchoHandler(logger, incidents, anomalies, response, telemetry, hub)
}

// ProvideReadinessChecks probes the stores the API cannot serve without.
func ProvideReadinessChecks(pg *pkgpg.Client, ch *pkgch.Client, caches *Caches, nc *nats.Conn, q *queue.RedisQueue) xhttp.Checks {
	checks := xhttp.Checks{
		{Name: "postgres", Probe: pg.Health},
		{Name: "clickhouse", Probe: ch.Health},
	}
	if caches.Redis != nil {
		rc := caches.Redis
		checks = append(checks, xhttp.Check{Name: "redis", Probe: func(ctx context.Context) error {
			return rc.Ping(ctx).Err()
		}})
	}
	if q != nil {
		checks = append(checks, xhttp.Check{Name: "queue", Probe: func(ctx context.Context) error {
			_, err := q.Stats(ctx)
			return err
		}})
	}
	if nc != nil {
		checks = append(checks, xhttp.Check{Name: "nats", Probe: func(context.Context) error {
			if !nc.IsConnected() {
				return fmt.Errorf("nats %s", nc.Status())
			}
			return nil
		}})
	}
	return checks
}

// ProvideApp creates the application server.
func ProvideApp(cfg *config.Config, logger *applogger.Logger, c server.Components) *server.App {
	return server.New(cfg, logger, c)
}
