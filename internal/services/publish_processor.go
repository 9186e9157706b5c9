package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// PendingHandler publishes the pending publications of one batch.
type PendingHandler interface {
	ProcessPending(ctx context.Context) (int, error)
}

// PublishProcessorConfig holds configuration for the publish processor
type PublishProcessorConfig struct {
	// PollInterval is how often pending publications are retried (default: 30s)
	PollInterval time.Duration
}

// DefaultPublishProcessorConfig returns sensible defaults
func DefaultPublishProcessorConfig() PublishProcessorConfig {
	return PublishProcessorConfig{
		PollInterval: 30 * time.Second,
	}
}

// PublishProcessor periodically retries publications left pending, as a
// backup for lost or failed queue messages.
type PublishProcessor struct {
	handler PendingHandler
	config  PublishProcessorConfig

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewPublishProcessor creates a new publish processor
func NewPublishProcessor(handler PendingHandler, config PublishProcessorConfig) *PublishProcessor {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPublishProcessorConfig().PollInterval
	}
	return &PublishProcessor{
		handler: handler,
		config:  config,
	}
}

// Start begins the processing loop. Returns an error if already running.
func (p *PublishProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("publish processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	slog.InfoContext(ctx, "Publish processor started",
		"poll_interval", p.config.PollInterval)

	return nil
}

// Stop gracefully stops the processor and waits for completion.
func (p *PublishProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	stopCh, doneCh := p.stopCh, p.doneCh
	p.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		slog.InfoContext(ctx, "Publish processor stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Publish processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	return nil
}

// IsRunning returns whether the processor is currently running
func (p *PublishProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *PublishProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.processBatch(ctx)
		}
	}
}

func (p *PublishProcessor) processBatch(ctx context.Context) {
	n, err := p.handler.ProcessPending(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to process pending publications", "error", err)
		return
	}
	if n > 0 {
		slog.DebugContext(ctx, "Processed pending publications", "count", n)
	}
}
