package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// FlushProcessorConfig holds configuration for the flush processor
type FlushProcessorConfig struct {
	// PollInterval is how often to check for unsaved tables (default: 30s)
	PollInterval time.Duration
}

func DefaultFlushProcessorConfig() FlushProcessorConfig {
	return FlushProcessorConfig{PollInterval: 30 * time.Second}
}

// FlushProcessor retries saving the ledger in the background after a
// persistence failure, so a transient outage does not wait for an
// explicit flush.
type FlushProcessor struct {
	service *PaymentService
	config  FlushProcessorConfig

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewFlushProcessor(service *PaymentService, config FlushProcessorConfig) *FlushProcessor {
	if config.PollInterval <= 0 {
		config = DefaultFlushProcessorConfig()
	}
	return &FlushProcessor{service: service, config: config}
}

// Start begins the processing loop. Returns an error if already running.
func (p *FlushProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return fmt.Errorf("flush processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})

	go p.runLoop(ctx, p.stopCh, p.doneCh)

	slog.InfoContext(ctx, "Flush processor started", "poll_interval", p.config.PollInterval)
	return nil
}

// Stop signals the loop and waits for it to finish.
func (p *FlushProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	stopCh, doneCh := p.stopCh, p.doneCh
	p.running = false
	p.mu.Unlock()

	close(stopCh)
	select {
	case <-doneCh:
		slog.InfoContext(ctx, "Flush processor stopped gracefully")
		return nil
	case <-ctx.Done():
		slog.WarnContext(ctx, "Flush processor stop timed out")
		return ctx.Err()
	}
}

func (p *FlushProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *FlushProcessor) runLoop(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.flushIfDirty(ctx)
		}
	}
}

func (p *FlushProcessor) flushIfDirty(ctx context.Context) {
	if !p.service.Ledger().Dirty() {
		return
	}
	if err := p.service.Flush(ctx); err != nil {
		slog.WarnContext(ctx, "Background flush failed, will retry", "error", err, "retry_in", p.config.PollInterval)
		return
	}
	slog.InfoContext(ctx, "Background flush saved pending changes")
}
