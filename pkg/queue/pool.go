package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gofrolist/calorie-track-ai-bot/pkg/config"
)

// WorkerPool manages a pool of estimate workers competing on one queue.
type WorkerPool struct {
	podID    string
	cfg      *config.QueueConfig
	deps     WorkerDeps
	workers  []*Worker
	fatalCh  chan error
	stopOnce sync.Once
	mu       sync.Mutex
	started  bool
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(podID string, cfg *config.QueueConfig, deps WorkerDeps) *WorkerPool {
	return &WorkerPool{
		podID:   podID,
		cfg:     cfg,
		deps:    deps,
		workers: make([]*Worker, 0, cfg.WorkerCount),
		fatalCh: make(chan error, 1),
	}
}

// Start spawns worker goroutines. Safe to call multiple times; subsequent
// calls are no-ops.
func (p *WorkerPool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		slog.Warn("Worker pool already started, ignoring duplicate Start call", "pod_id", p.podID)
		return nil
	}
	p.started = true

	slog.Info("Starting worker pool", "pod_id", p.podID, "worker_count", p.cfg.WorkerCount)

	for i := 0; i < p.cfg.WorkerCount; i++ {
		workerID := fmt.Sprintf("%s-worker-%d", p.podID, i)
		worker := NewWorker(workerID, p.podID, p.cfg, p.deps, p.fatalCh)
		p.workers = append(p.workers, worker)
		worker.Start(ctx)
	}

	slog.Info("Worker pool started")
	return nil
}

// Stop signals all workers to stop and waits for them to finish.
// Workers finish their current jobs before exiting (graceful shutdown).
func (p *WorkerPool) Stop() {
	p.stopOnce.Do(func() {
		slog.Info("Stopping worker pool gracefully")
		for _, worker := range p.workers {
			worker.Stop()
		}
		slog.Info("Worker pool stopped gracefully")
	})
}

// Fatal reports unrecoverable worker errors (dequeue retry budget exhausted).
// The main loop maps this to exit code 2.
func (p *WorkerPool) Fatal() <-chan error {
	return p.fatalCh
}

// Health returns the current health status of the pool.
func (p *WorkerPool) Health() *PoolHealth {
	p.mu.Lock()
	defer p.mu.Unlock()

	workerStats := make([]WorkerHealth, len(p.workers))
	activeWorkers := 0
	for i, worker := range p.workers {
		stats := worker.Health()
		workerStats[i] = stats
		if stats.Status == WorkerStatusWorking {
			activeWorkers++
		}
	}

	return &PoolHealth{
		IsHealthy:     len(p.workers) > 0,
		PodID:         p.podID,
		ActiveWorkers: activeWorkers,
		TotalWorkers:  len(p.workers),
		WorkerStats:   workerStats,
	}
}
