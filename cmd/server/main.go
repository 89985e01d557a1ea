// Command server is the composition root: it wires the Job Catalog,
// Vocabulary Service, Deterministic ID Service, AI Mapping Engine, Transform
// Core, OMOP Engine and Ingestion Engine together and runs the Ingestion
// Engine's supervisor loop until an OS signal asks it to drain and stop.
// The only HTTP surface it exposes is a Prometheus /metrics endpoint and a
// /healthz probe; operators drive jobs through the Job Catalog directly (see
// DESIGN.md for the out-of-scope operator API layer note).
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/neurondb/NeuronIP/api/internal/catalog"
	"github.com/neurondb/NeuronIP/api/internal/config"
	"github.com/neurondb/NeuronIP/api/internal/db"
	"github.com/neurondb/NeuronIP/api/internal/idservice"
	"github.com/neurondb/NeuronIP/api/internal/ingestion"
	"github.com/neurondb/NeuronIP/api/internal/ingestion/etl"
	"github.com/neurondb/NeuronIP/api/internal/llm"
	"github.com/neurondb/NeuronIP/api/internal/logging"
	"github.com/neurondb/NeuronIP/api/internal/mapping"
	"github.com/neurondb/NeuronIP/api/internal/metrics"
	"github.com/neurondb/NeuronIP/api/internal/omop"
	"github.com/neurondb/NeuronIP/api/internal/store"
	"github.com/neurondb/NeuronIP/api/internal/transform"
	"github.com/neurondb/NeuronIP/api/internal/vocabulary"
)

var (
	version   = "dev"
	buildDate = "unknown"
	gitCommit = "unknown"
)

func main() {
	var (
		showVersion = flag.Bool("version", false, "Show version information")
		showHelp    = flag.Bool("help", false, "Show help message")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "NeuronIP Ingestion Engine supervisor\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVersion {
		fmt.Printf("neuronip-server version %s\n", version)
		fmt.Printf("Build date: %s\n", buildDate)
		fmt.Printf("Git commit: %s\n", gitCommit)
		os.Exit(0)
	}
	if *showHelp {
		flag.Usage()
		os.Exit(0)
	}

	cfg := config.Load()
	logging.InitLogger(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	logging.Info("starting neuronip server", "version", version, "build_date", buildDate, "git_commit", gitCommit)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	relPool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		logging.Error("failed to create relational connection pool", "error", err)
		os.Exit(1)
	}
	defer relPool.Close()

	docStore, err := store.Connect(ctx, cfg.Mongo)
	if err != nil {
		logging.Error("failed to connect record store", "error", err)
		os.Exit(1)
	}
	defer docStore.Close(ctx)

	jobCatalog := catalog.New(relPool.Pool)
	vocabService := vocabulary.New(relPool.Pool)
	idService := idservice.New(relPool.Pool)
	llmClient := buildLLMClient(cfg)

	mappingEngine := mapping.NewEngine(llmClient)
	mappingPredictor := mapping.NewPredictor()
	// Constructed so its dependencies share this process's lifetime; jobs
	// move through DRAFT -> ... -> APPROVED via the out-of-scope API layer,
	// which calls Analyze/Approve against this same Workflow value.
	_ = mapping.NewWorkflow(jobCatalog, mappingEngine, mappingPredictor)

	transformRegistry := transform.NewRegistry()
	registerBuiltinCustomScripts(transformRegistry)
	transformCore := transform.New(transformRegistry)

	conceptMatcher := omop.NewConceptMatcher(vocabService, llmClient)
	omopEngine := omop.NewEngine(docStore, idService, conceptMatcher)

	ingestionEngine := ingestion.NewEngine(
		jobCatalog,
		docStore,
		ingestion.NewDLQ(docStore),
		transformCore,
		omopEngine,
		ingestion.NewDefaultConnectorFactory(),
		ingestion.Config{
			MaxConcurrentJobs: cfg.Ingestion.MaxConcurrentJobs,
			StatusFlushEvery:  cfg.Ingestion.StatusFlushEvery,
			StatusFlushRows:   int64(cfg.Ingestion.StatusFlushRows),
			DrainTimeout:      cfg.Ingestion.DrainTimeout,
			TestFailureMode:   cfg.Ingestion.TestFailureMode,
		},
	)
	ingestionEngine.SetCollector(metrics.NewMetricsCollector(relPool.Pool))

	idleJobs, err := ingestionEngine.RehydrateIdle(ctx)
	if err != nil {
		logging.Error("failed to rehydrate ingestion jobs", "error", err)
	} else {
		logging.Info("rehydrated ingestion jobs", "count", len(idleJobs))
	}

	poolMonitor := db.NewPoolMonitor(relPool.Pool)
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				poolMonitor.UpdateMetrics()
				if m := poolMonitor.GetMetrics(); m != nil {
					metrics.UpdateDBPoolMetrics(m.MaxConns, m.AcquiredConns, m.IdleConns)
				}
			}
		}
	}()

	healthChecker := db.NewHealthChecker(relPool.Pool)

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", healthzHandler(healthChecker))

	metricsAddr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	metricsServer := &http.Server{Addr: metricsAddr, Handler: mux}
	go func() {
		// The only HTTP surface this process exposes: Prometheus scraping
		// and a liveness/readiness probe, not the (out-of-scope) operator API.
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Warn("metrics server stopped", "error", err)
		}
	}()

	logging.Info("neuronip server ready", "metrics_addr", metricsAddr)
	<-ctx.Done()

	logging.Info("shutdown signal received, draining running ingestion jobs")
	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.Ingestion.DrainTimeout+5*time.Second)
	defer cancel()
	ingestionEngine.StopAll(drainCtx)
	_ = metricsServer.Close()

	logging.Info("neuronip server stopped")
}

// healthzHandler reports the relational store (the pool shared by the Job
// Catalog, Vocabulary Service and ID Service) as a liveness/readiness
// probe, backed by db.HealthChecker's connectivity, read, write, pool and
// latency checks.
func healthzHandler(hc *db.HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		healthy, results := hc.IsHealthy(ctx)
		w.Header().Set("Content-Type", "application/json")
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(results)
	}
}

// registerBuiltinCustomScripts wires the CUSTOM transform type to the
// etl package's batch-pipeline engine: each named script is a one-row
// etl.Pipeline run through etl.ETLEngine and adapted back to the Transform
// Core's per-record (row) -> value|error contract via
// ingestion.RegisterETLScript. A mapping job's FieldMapping references one
// of these by name in TransformOptions["script"].
func registerBuiltinCustomScripts(registry *transform.Registry) {
	etlEngine := etl.NewETLEngine()

	ingestion.RegisterETLScript(registry, etlEngine, "combine_patient_name", etl.Pipeline{
		Steps: []etl.PipelineStep{
			{
				Type: "map",
				Config: map[string]interface{}{
					"mappings": map[string]interface{}{
						"fullName": "{{firstName}} {{lastName}}",
					},
				},
			},
		},
	})

	ingestion.RegisterETLScript(registry, etlEngine, "drop_unconfirmed_conditions", etl.Pipeline{
		Steps: []etl.PipelineStep{
			{
				Type: "filter",
				Config: map[string]interface{}{
					"condition": `verificationStatus == "confirmed"`,
				},
			},
		},
	})
}

func buildLLMClient(cfg *config.Config) llm.Client {
	var primary llm.Client
	if cfg.LLM.URL != "" {
		primary = llm.NewAnthropicClient(cfg.LLM.URL, cfg.LLM.ModelName, cfg.LLM.Timeout)
	} else if cfg.Embedding.URL != "" {
		primary = llm.NewEmbeddingHTTPClient(cfg.Embedding.URL, cfg.Embedding.Timeout)
	}
	return llm.NewFallbackClient(primary, llm.NewNullClient())
}
