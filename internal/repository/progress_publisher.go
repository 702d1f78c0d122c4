package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/season-scheduler/internal/models"
	appErrors "github.com/noah-isme/season-scheduler/pkg/errors"
)

const (
	defaultProgressPrefix = "season:progress"
	publishTimeout        = 2 * time.Second
)

// ProgressPublisher mirrors job progress into Redis: every event is published on a per-job
// channel and the latest one is kept under a key so other instances can answer status calls.
type ProgressPublisher struct {
	client   *redis.Client
	logger   *zap.Logger
	prefix   string
	ttl      time.Duration
	observer cacheObserver
}

type cacheObserver interface {
	RecordCacheOperation(hit bool, duration time.Duration)
}

// NewProgressPublisher constructs a publisher. A nil client turns every call into a no-op.
func NewProgressPublisher(client *redis.Client, prefix string, ttl time.Duration, logger *zap.Logger) *ProgressPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if prefix == "" {
		prefix = defaultProgressPrefix
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &ProgressPublisher{client: client, logger: logger, prefix: prefix, ttl: ttl}
}

// WithObserver records snapshot lookups as cache hits and misses.
func (p *ProgressPublisher) WithObserver(observer cacheObserver) *ProgressPublisher {
	p.observer = observer
	return p
}

func (p *ProgressPublisher) channel(jobID string) string {
	return fmt.Sprintf("%s:%s:events", p.prefix, jobID)
}

func (p *ProgressPublisher) key(jobID string) string {
	return fmt.Sprintf("%s:%s:latest", p.prefix, jobID)
}

// Report implements the service progress reporter. Failures are logged, never returned.
func (p *ProgressPublisher) Report(ctx context.Context, event models.ProgressEvent) {
	if err := p.Publish(ctx, event); err != nil {
		p.logger.Sugar().Warnw("failed to publish season progress", "job_id", event.JobID, "stage", event.Stage, "error", err)
	}
}

// Publish stores the event as the latest snapshot and broadcasts it.
func (p *ProgressPublisher) Publish(ctx context.Context, event models.ProgressEvent) error {
	if p.client == nil {
		return nil
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal progress event: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	_, err = p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, p.key(event.JobID), payload, p.ttl)
		pipe.Publish(ctx, p.channel(event.JobID), payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis publish %s: %w", p.channel(event.JobID), err)
	}
	return nil
}

// Latest returns the most recent event stored for jobID.
func (p *ProgressPublisher) Latest(ctx context.Context, jobID string) (*models.ProgressEvent, error) {
	if p.client == nil {
		return nil, appErrors.ErrCacheMiss
	}
	started := time.Now()
	raw, err := p.client.Get(ctx, p.key(jobID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			p.observe(false, started)
			return nil, appErrors.ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get %s: %w", p.key(jobID), err)
	}
	p.observe(true, started)
	return decodeProgress(raw)
}

func (p *ProgressPublisher) observe(hit bool, started time.Time) {
	if p.observer != nil {
		p.observer.RecordCacheOperation(hit, time.Since(started))
	}
}

// Listen subscribes to jobID's channel. The returned channel closes when ctx ends, after a
// terminal stage is received, or when the subscription fails.
func (p *ProgressPublisher) Listen(ctx context.Context, jobID string) (<-chan models.ProgressEvent, error) {
	if p.client == nil {
		return nil, appErrors.Clone(appErrors.ErrCacheMiss, "progress pub/sub disabled")
	}
	sub := p.client.Subscribe(ctx, p.channel(jobID))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("redis subscribe %s: %w", p.channel(jobID), err)
	}
	out := make(chan models.ProgressEvent, 8)
	go func() {
		defer close(out)
		defer sub.Close() //nolint:errcheck
		messages := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				event, err := decodeProgress([]byte(msg.Payload))
				if err != nil {
					p.logger.Sugar().Warnw("dropping malformed progress message", "job_id", jobID, "error", err)
					continue
				}
				select {
				case out <- *event:
				case <-ctx.Done():
					return
				}
				if terminalStage(event.Stage) {
					return
				}
			}
		}
	}()
	return out, nil
}

// Close releases the underlying Redis connection if present.
func (p *ProgressPublisher) Close() error {
	if p.client == nil {
		return nil
	}
	return p.client.Close()
}

func decodeProgress(raw []byte) (*models.ProgressEvent, error) {
	var event models.ProgressEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		return nil, fmt.Errorf("unmarshal progress event: %w", err)
	}
	return &event, nil
}

func terminalStage(stage string) bool {
	switch stage {
	case models.StageCompleted, models.StageFailed, models.StageCancelled:
		return true
	}
	return false
}
