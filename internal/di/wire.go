//go:build wireinject
// +build wireinject

package di

import (
	"SOCPulse/internal/domain/repository"
	internalrepo "SOCPulse/internal/repository"
	"SOCPulse/pkg/config"
	"SOCPulse/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvidePostgresClient,
		ProvideCaches,
		ProvideKafkaProducer,
		ProvideNATS,

		// Repositories
		ProvidePostgresStore,
		wire.Bind(new(repository.IncidentStore), new(*internalrepo.PostgresStore)),
		wire.Bind(new(repository.AuditStore), new(*internalrepo.PostgresStore)),
		ProvideTelemetryStore,
		wire.Bind(new(repository.TelemetryStore), new(*internalrepo.CHTelemetryStore)),
		ProvideModelStore,

		// Event fan-out
		ProvideHub,
		ProvideBroadcaster,

		// Engines
		ProvideExtractor,
		ProvideAssessor,
		ProvideClassifier,
		ProvideScorer,

		// Integrations
		ProvideThreatIntel,
		ProvideContainment,
		ProvideDeployers,

		// Use cases
		ProvideAnomalyService,
		ProvideIncidentService,
		ProvideOrchestrator,
		ProvideResponseService,
		ProvidePlaybookQueue,
		ProvideAlertPipeline,
		ProvideKafkaAlertsHandler,
		ProvideKafkaConsumer,
		ProvideSampler,

		// Transport
		ProvideRateLimiter,
		ProvideHTTPHandler,
		ProvideReadinessChecks,

		// Application server
		wire.Struct(new(server.Components), "*"),
		ProvideApp,
	)
	return nil, nil, nil
}
