package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"reclaim/internal/analyzer"
	"reclaim/internal/analyzer/heuristic"
	"reclaim/internal/analyzer/llm"
	"reclaim/internal/analyzer/rules"
	"reclaim/internal/classifier"
	"reclaim/internal/config"
	"reclaim/internal/extractor"
	"reclaim/internal/handler"
	"reclaim/internal/port"
	"reclaim/internal/reconcile"
	"reclaim/internal/repository/postgres"
	"reclaim/internal/router"
	"reclaim/internal/service"
	s3storage "reclaim/internal/storage/s3"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	db, err := postgres.NewDB(&cfg.DB)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	// Initialize repositories
	docRepo := postgres.NewDocumentRepo(db)
	analysisRepo := postgres.NewAnalysisRepo(db)
	issueRepo := postgres.NewIssueRepo(db)
	progressRepo := postgres.NewProgressRepo(db)

	// Initialize storage
	s3Client, err := s3storage.NewS3Client(&cfg.S3)
	if err != nil {
		return fmt.Errorf("failed to initialize S3 client: %w", err)
	}

	// Initialize the analysis pipeline
	analyzers, err := buildAnalyzers(&cfg.Analyzer)
	if err != nil {
		return fmt.Errorf("failed to build analyzer backends: %w", err)
	}

	analysisSvc := service.NewAnalysisService(
		docRepo,
		analysisRepo,
		issueRepo,
		progressRepo,
		s3Client,
		classifier.NewKeywordClassifier(),
		extractor.NewDefaultRegistry(),
		analyzers,
		reconcile.NewEngine(cfg.Reconcile),
		analyzer.NewMerger(cfg.Merge),
		cfg.Queue,
	)
	documentSvc := service.NewDocumentService(docRepo, s3Client, &cfg.S3)

	// Initialize handlers
	documentH := handler.NewDocumentHandler(documentSvc)
	analysisH := handler.NewAnalysisHandler(analysisSvc)
	issueH := handler.NewIssueHandler(analysisSvc)
	sources := make([]string, 0, len(analyzers))
	for _, b := range analyzers {
		sources = append(sources, b.Source())
	}
	healthH := handler.NewHealthHandler(db, sources)

	r := router.Setup(cfg, documentH, analysisH, issueH, healthH)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Queue worker picks up rate-limited re-queues and orphaned runs.
	worker := service.NewAnalysisQueueWorker(analysisRepo, analysisSvc, cfg.Queue)
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		worker.Start(ctx)
	}()

	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Printf("server starting on %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		stop()
		<-workerDone
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	log.Printf("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown: %v", err)
	}
	<-workerDone

	return nil
}

// buildAnalyzers assembles the backend set: local rules and heuristic
// backends plus the configured remote providers. Multiple remotes are
// combined into a voting ensemble.
func buildAnalyzers(cfg *config.AnalyzerConfig) ([]port.Analyzer, error) {
	analyzer.RegisterProvider("anthropic", func(c *config.AnalyzerProviderConfig) (port.Analyzer, error) {
		return llm.NewAnthropicAnalyzer(c), nil
	})
	analyzer.RegisterProvider("openai", func(c *config.AnalyzerProviderConfig) (port.Analyzer, error) {
		return llm.NewOpenAIAnalyzer(c), nil
	})

	var backends []port.Analyzer
	if cfg.RulesEnabled {
		backends = append(backends, rules.NewDefaultEngine())
	}
	if cfg.HeuristicEnabled {
		backends = append(backends, heuristic.NewScorer())
	}

	var remotes []port.Analyzer
	for _, pc := range cfg.RemoteConfigs() {
		remote, err := analyzer.NewRemote(pc)
		if err != nil {
			return nil, err
		}
		backoff := time.Duration(pc.BackoffMS) * time.Millisecond
		remotes = append(remotes, analyzer.NewRetrying(remote, pc.MaxRetries, backoff))
	}

	switch len(remotes) {
	case 0:
	case 1:
		backends = append(backends, remotes[0])
	default:
		backends = append(backends, analyzer.NewEnsemble(remotes))
	}

	return backends, nil
}
