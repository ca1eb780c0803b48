package config

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/aegis-gate/aegis/internal/adapter/outbound/evaluator"
	"github.com/aegis-gate/aegis/internal/adapter/outbound/ledger"
	"github.com/aegis-gate/aegis/internal/domain/approval"
	evaldomain "github.com/aegis-gate/aegis/internal/domain/evaluator"
	policydoc "github.com/aegis-gate/aegis/internal/domain/policy"
	"github.com/aegis-gate/aegis/internal/domain/registry"
	"github.com/aegis-gate/aegis/internal/domain/sandbox"
	"github.com/aegis-gate/aegis/internal/domain/threat"
	"github.com/aegis-gate/aegis/internal/service"
	"github.com/aegis-gate/aegis/internal/telemetry"
)

// AppState is the fully wired set of collaborators a running Aegis
// process needs: loaded policy, audit ledger, tool registry, approval
// verifier, sandbox runner, evaluator client, and the two top-level
// service objects (Gateway, Coordinator) built from them.
type AppState struct {
	Settings *Settings
	Policy   *policydoc.Loaded
	Logger   *slog.Logger

	Ledger    *ledger.FileLedger
	Registry  *registry.Registry
	Verifier  *approval.Verifier
	Sandbox   *sandbox.Runner
	Threats   *threat.Recorder
	Evaluator evaldomain.Client

	Gateway     *service.Gateway
	Coordinator *service.Coordinator
	Bundler     *service.Bundler

	// MetricsRegistry is the Prometheus registry the Gateway and
	// Coordinator's instruments are registered against. Exposing it over
	// HTTP (AEGIS_METRICS_ADDR) is the caller's concern — the registry
	// itself is wired here so every collaborator shares one instrument
	// set rather than each registering against the global default.
	MetricsRegistry *prometheus.Registry
}

// Build assembles an AppState from Settings, loading the Policy document
// and wiring every collaborator exactly once at startup.
func Build(settings *Settings) (*AppState, error) {
	logger := telemetry.NewLogger(settings.LogLevel)

	loaded, err := policydoc.Load(settings.PolicyPath)
	if err != nil {
		return nil, fmt.Errorf("state: load policy: %w", err)
	}

	if settings.Upstream != "" {
		loaded.Policy.UpstreamBaseURL = settings.Upstream
	}

	led, err := ledger.Open(settings.AuditPath, logger)
	if err != nil {
		return nil, fmt.Errorf("state: open ledger: %w", err)
	}

	reg, err := registry.New(loaded.Policy)
	if err != nil {
		return nil, fmt.Errorf("state: build registry: %w", err)
	}

	verifier := &approval.Verifier{
		OperatorSKB64:    settings.OperatorSKB64,
		DevSignerEnabled: settings.DevSigner,
	}

	sandboxRunner := &sandbox.Runner{
		ArtifactsDir: settings.ArtifactsDir,
		SandboxPATH:  settings.SandboxPath,
		TimeoutMS:    settings.SandboxTimeoutMs,
	}

	threats := threat.NewRecorder()

	var evalClient evaldomain.Client
	if settings.OpaURL != "" {
		evalClient = evaluator.NewHTTPClient(settings.OpaURL, settings.OpaPath)
	}

	metricsRegistry := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(metricsRegistry)

	gateway := service.NewGateway()
	gateway.Policy = loaded.Policy
	gateway.Ledger = led
	gateway.Threats = threats
	gateway.Evaluator = evalClient
	gateway.Logger = logger
	gateway.Metrics = metrics

	coordinator := service.NewCoordinator()
	coordinator.Policy = loaded.Policy
	coordinator.PolicyPath = settings.PolicyPath
	coordinator.Ledger = led
	coordinator.Registry = reg
	coordinator.Verifier = verifier
	coordinator.Sandbox = sandboxRunner
	coordinator.Logger = logger
	coordinator.Evaluator = evalClient
	coordinator.Metrics = metrics

	bundler := service.NewBundler()
	bundler.Policy = loaded.Policy
	bundler.Ledger = led
	bundler.Threats = threats
	bundler.StartedAt = time.Now()
	bundler.Logger = logger

	if settings.EvidenceS3Bucket != "" {
		cfg, err := config.LoadDefaultConfig(context.Background())
		if err != nil {
			logger.Warn("state: aws config load failed, evidence archival disabled", "error", err)
		} else {
			if settings.EvidenceS3Region != "" {
				cfg.Region = settings.EvidenceS3Region
			}
			bundler.S3 = s3.NewFromConfig(cfg)
			bundler.Bucket = settings.EvidenceS3Bucket
		}
	}

	return &AppState{
		Settings:        settings,
		Policy:          loaded,
		Logger:          logger,
		Ledger:          led,
		Registry:        reg,
		Verifier:        verifier,
		Sandbox:         sandboxRunner,
		Threats:         threats,
		Evaluator:       evalClient,
		Gateway:         gateway,
		Coordinator:     coordinator,
		Bundler:         bundler,
		MetricsRegistry: metricsRegistry,
	}, nil
}
