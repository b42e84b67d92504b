package service

import (
	"context"
	"log"
	"sync"
	"time"

	"reclaim/internal/config"
	"reclaim/internal/port"
)

// AnalysisQueueWorker polls for queued analyses past their retry-after and
// dispatches them for processing. It picks up rate-limited re-queues and
// runs orphaned by a crashed process.
type AnalysisQueueWorker struct {
	analysisRepo port.AnalysisRepository
	svc          AnalysisService
	cfg          config.QueueConfig
	wg           sync.WaitGroup
}

// NewAnalysisQueueWorker creates a new AnalysisQueueWorker.
func NewAnalysisQueueWorker(analysisRepo port.AnalysisRepository, svc AnalysisService, cfg config.QueueConfig) *AnalysisQueueWorker {
	if cfg.PollIntervalSecs <= 0 {
		cfg.PollIntervalSecs = 15
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}
	return &AnalysisQueueWorker{analysisRepo: analysisRepo, svc: svc, cfg: cfg}
}

// Start runs the polling loop until ctx is canceled. It blocks until all
// in-flight runs have finished.
func (w *AnalysisQueueWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(w.cfg.PollIntervalSecs) * time.Second)
	defer ticker.Stop()

	sem := make(chan struct{}, w.cfg.Concurrency)

	log.Printf("analysisQueueWorker: started (poll=%ds, concurrency=%d, maxRetries=%d)",
		w.cfg.PollIntervalSecs, w.cfg.Concurrency, w.cfg.MaxRetries)

	for {
		select {
		case <-ctx.Done():
			log.Printf("analysisQueueWorker: shutting down, waiting for in-flight analyses...")
			w.wg.Wait()
			log.Printf("analysisQueueWorker: shutdown complete")
			return
		case <-ticker.C:
			available := w.cfg.Concurrency - len(sem)
			if available <= 0 {
				continue
			}

			claimed, err := w.analysisRepo.ClaimQueued(ctx, available, time.Now().UTC())
			if err != nil {
				if ctx.Err() != nil {
					continue
				}
				log.Printf("analysisQueueWorker: ClaimQueued error: %v", err)
				continue
			}

			for i := range claimed {
				a := claimed[i] // copy for goroutine

				sem <- struct{}{} // acquire
				w.wg.Add(1)
				go func() {
					defer w.wg.Done()
					defer func() { <-sem }() // release

					// Fresh context independent of the poll context so
					// in-flight runs complete even during shutdown.
					runCtx, cancel := context.WithTimeout(context.Background(), analysisRunTimeout)
					defer cancel()

					log.Printf("analysisQueueWorker: dispatching analysis %s (attempt %d)", a.ID, a.Attempts)
					w.svc.ProcessAnalysis(runCtx, &a, w.cfg.MaxRetries)
				}()
			}
		}
	}
}
