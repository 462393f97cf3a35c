// Package refresh runs fit cycles: it loads a fresh corpus snapshot from
// storage, normalizes it, fits the engine and publishes the matching display
// catalog. Triggers are startup, a periodic ticker, the HTTP API and Kafka
// corpus-refresh messages.
package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/summarysearch/summarysearch/internal/corpus"
	"github.com/summarysearch/summarysearch/internal/engine"
	"github.com/summarysearch/summarysearch/internal/normalizer"
	apperrors "github.com/summarysearch/summarysearch/pkg/errors"
	"github.com/summarysearch/summarysearch/pkg/kafka"
	"github.com/summarysearch/summarysearch/pkg/logger"
	"github.com/summarysearch/summarysearch/pkg/metrics"
	"github.com/summarysearch/summarysearch/pkg/resilience"
	"github.com/summarysearch/summarysearch/pkg/tracing"
)

// Publisher receives an IndexFitted event after every successful fit.
type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// CacheInvalidator drops cached query results after a refit.
type CacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

type Config struct {
	Store      corpus.Store
	Normalizer normalizer.Normalizer
	Engine     *engine.Engine

	// Optional collaborators; nil disables each one.
	Publisher Publisher
	Cache     CacheInvalidator
	Metrics   *metrics.Metrics

	Retry            resilience.RetryConfig
	Interval         time.Duration
	AllowEmptyCorpus bool
}

// IndexFittedEvent is published to Kafka after a fit.
type IndexFittedEvent struct {
	Version        uint64    `json:"version"`
	Documents      int       `json:"documents"`
	VocabularySize int       `json:"vocabulary_size"`
	Trigger        string    `json:"trigger"`
	FittedAt       time.Time `json:"fitted_at"`
}

// RefreshRequest is the optional JSON body of a corpus-refresh message.
type RefreshRequest struct {
	Reason string `json:"reason"`
}

type Result struct {
	Version        uint64        `json:"version"`
	Documents      int           `json:"documents"`
	VocabularySize int           `json:"vocabulary_size"`
	Duration       time.Duration `json:"duration_ns"`
}

type Refresher struct {
	cfg     Config
	catalog atomic.Pointer[corpus.Catalog]
	group   singleflight.Group
	logger  *slog.Logger
}

func New(cfg Config) *Refresher {
	return &Refresher{
		cfg:    cfg,
		logger: logger.WithComponent("refresher"),
	}
}

// Catalog returns the display catalog of the last successful refresh, or nil.
func (r *Refresher) Catalog() *corpus.Catalog {
	return r.catalog.Load()
}

// Refresh performs one fit cycle. Calls that overlap an in-flight refresh
// wait for it and share its result. The cycle runs detached from ctx so that
// one caller going away does not fail the others that joined it.
func (r *Refresher) Refresh(ctx context.Context, trigger string) (*Result, error) {
	val, err, shared := r.group.Do("refresh", func() (interface{}, error) {
		return r.refresh(context.WithoutCancel(ctx), trigger)
	})
	if shared {
		r.logger.Debug("joined in-flight refresh", "trigger", trigger)
	}
	if err != nil {
		return nil, err
	}
	return val.(*Result), nil
}

func (r *Refresher) refresh(ctx context.Context, trigger string) (*Result, error) {
	start := time.Now()
	ctx, span := tracing.StartSpan(ctx, "refresh", uuid.NewString())
	span.SetAttr("trigger", trigger)
	log := r.logger.With("trigger", trigger, "trace_id", span.TraceID)
	defer func() {
		span.End()
		span.Log(r.logger)
	}()

	var records []corpus.Record
	_, loadSpan := tracing.StartChildSpan(ctx, "load_corpus")
	err := resilience.Retry(ctx, "load corpus", r.cfg.Retry, func() error {
		var loadErr error
		records, loadErr = r.cfg.Store.LoadAll(ctx)
		return loadErr
	})
	loadSpan.SetAttr("records", len(records))
	loadSpan.End()
	if err != nil {
		r.countFit("error")
		return nil, fmt.Errorf("loading corpus: %w", err)
	}
	if len(records) == 0 && !r.cfg.AllowEmptyCorpus {
		r.countFit("rejected")
		log.Warn("corpus store returned no documents, keeping current index",
			"state", r.cfg.Engine.State().String())
		return nil, apperrors.New(apperrors.ErrEmptyCorpus, http.StatusServiceUnavailable,
			"corpus store returned no documents, index unchanged")
	}

	_, normSpan := tracing.StartChildSpan(ctx, "normalize")
	docs := make([]engine.Document, len(records))
	for i, rec := range records {
		docs[i] = engine.Document{
			ID:     rec.ID,
			Tokens: r.cfg.Normalizer.Normalize(rec.Text),
		}
	}
	normSpan.End()

	_, fitSpan := tracing.StartChildSpan(ctx, "fit")
	err = r.cfg.Engine.Fit(ctx, docs)
	fitSpan.End()
	if err != nil {
		r.countFit("error")
		return nil, fmt.Errorf("fitting engine: %w", err)
	}
	snap, err := r.cfg.Engine.Snapshot()
	if err != nil {
		r.countFit("error")
		return nil, fmt.Errorf("reading fitted snapshot: %w", err)
	}
	r.catalog.Store(corpus.NewCatalog(snap.Version, records))

	if r.cfg.Cache != nil {
		_, invSpan := tracing.StartChildSpan(ctx, "invalidate_cache")
		if err := r.cfg.Cache.Invalidate(ctx); err != nil {
			log.Error("cache invalidation after refit failed", "error", err)
		}
		invSpan.End()
	}

	result := &Result{
		Version:        snap.Version,
		Documents:      snap.DocumentCount(),
		VocabularySize: snap.Vocabulary.Len(),
		Duration:       time.Since(start),
	}
	if r.cfg.Publisher != nil {
		event := kafka.Event{
			Key:  "index-fitted",
			Type: "index_fitted",
			Value: IndexFittedEvent{
				Version:        result.Version,
				Documents:      result.Documents,
				VocabularySize: result.VocabularySize,
				Trigger:        trigger,
				FittedAt:       snap.FittedAt,
			},
		}
		_, pubSpan := tracing.StartChildSpan(ctx, "publish_event")
		if err := r.cfg.Publisher.Publish(ctx, event); err != nil {
			log.Error("failed to publish index-fitted event", "version", result.Version, "error", err)
		}
		pubSpan.End()
	}
	if m := r.cfg.Metrics; m != nil {
		m.FitsTotal.WithLabelValues("success").Inc()
		m.FitDuration.Observe(result.Duration.Seconds())
		m.VocabularySize.Set(float64(result.VocabularySize))
		m.IndexedDocuments.Set(float64(result.Documents))
		m.SnapshotVersion.Set(float64(result.Version))
	}

	log.Info("refresh complete",
		"version", result.Version,
		"documents", result.Documents,
		"vocabulary_size", result.VocabularySize,
		"latency_ms", result.Duration.Milliseconds(),
	)
	return result, nil
}

// Run refreshes on every Interval tick until ctx is cancelled. It returns
// immediately when Interval is zero.
func (r *Refresher) Run(ctx context.Context) {
	if r.cfg.Interval <= 0 {
		return
	}
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()
	r.logger.Info("periodic refresh started", "interval", r.cfg.Interval)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("periodic refresh stopping")
			return
		case <-ticker.C:
			if _, err := r.Refresh(ctx, "interval"); err != nil && ctx.Err() == nil {
				r.logger.Error("periodic refresh failed", "error", err)
			}
		}
	}
}

// HandleRefreshMessage returns a Kafka MessageHandler that refits the engine
// for every corpus-refresh message. An empty or undecodable body still
// triggers a refresh.
func (r *Refresher) HandleRefreshMessage() kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		reason := "unspecified"
		if len(value) > 0 {
			req, err := kafka.DecodeJSON[RefreshRequest](value)
			if err != nil {
				r.logger.Warn("ignoring malformed refresh request body", "key", string(key), "error", err)
			} else if req.Reason != "" {
				reason = req.Reason
			}
		}
		r.logger.Info("refresh requested via kafka", "reason", reason)
		_, err := r.Refresh(ctx, "kafka")
		if apperrors.Is(err, apperrors.ErrEmptyCorpus) {
			// retrying the same message cannot help until the store changes
			return nil
		}
		return err
	}
}

func (r *Refresher) countFit(status string) {
	if r.cfg.Metrics != nil {
		r.cfg.Metrics.FitsTotal.WithLabelValues(status).Inc()
	}
}
