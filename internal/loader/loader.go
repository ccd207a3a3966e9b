// Package loader drives a run: generate a batch, write it to DynamoDB, write
// it to the cache, log the outcome, repeat. Batches are processed one at a
// time and per-batch failures never stop the run.
package loader

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/randyridgley/cdk-athena-federated/internal/cache"
	"github.com/randyridgley/cdk-athena-federated/internal/generator"
)

// KeyValueSink writes one batch with one bulk request.
type KeyValueSink interface {
	WriteBatch(ctx context.Context, batch generator.Batch) error
}

// CacheSink writes one batch with one pipeline and owns the connection.
type CacheSink interface {
	WriteBatch(ctx context.Context, batch generator.Batch) error
	Close() error
}

// DialFunc acquires the run's cache connection.
type DialFunc func(ctx context.Context) (CacheSink, error)

// DialCache adapts a cache.Dialer.
func DialCache(d cache.Dialer) DialFunc {
	return func(ctx context.Context) (CacheSink, error) {
		conn, err := d.Dial(ctx)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}

// Observer is told about every finished batch.
type Observer interface {
	ObserveBatch(result BatchResult)
}

type Options struct {
	TotalRecords int
	BatchSize    int
	Seed         uint64
	// ProgressEvery logs throughput every n batches. Zero disables it.
	ProgressEvery int
}

type Loader struct {
	opts      Options
	kv        KeyValueSink
	dial      DialFunc
	logger    *zap.Logger
	observers []Observer
	now       func() time.Time
}

type Option func(*Loader)

func WithObserver(o Observer) Option {
	return func(l *Loader) {
		l.observers = append(l.observers, o)
	}
}

func New(opts Options, kv KeyValueSink, dial DialFunc, logger *zap.Logger, options ...Option) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Loader{
		opts:   opts,
		kv:     kv,
		dial:   dial,
		logger: logger,
		now:    time.Now,
	}
	for _, o := range options {
		o(l)
	}
	return l
}

// Run loads TotalRecords records. Only planning and connection failures are
// returned as errors; batch write failures are logged and counted in the
// summary. If ctx ends between batches the partial summary is returned with
// the context error.
func (l *Loader) Run(ctx context.Context) (summary *Summary, err error) {
	summary = &Summary{
		RunID:     uuid.NewString(),
		StartedAt: l.now(),
		Outcomes:  map[Outcome]int{},
	}
	defer func() {
		summary.Duration = l.now().Sub(summary.StartedAt)
	}()
	logger := l.logger.With(zap.String("run_id", summary.RunID))

	planner, err := generator.NewPlanner(generator.New(generator.WithSeed(l.opts.Seed)), l.opts.TotalRecords, l.opts.BatchSize)
	if err != nil {
		return summary, &GenerationError{Err: err}
	}
	summary.PlannedBatches = planner.Batches()

	conn, err := l.dial(ctx)
	if err != nil {
		logger.Error("Failed to acquire cache connection", zap.Error(err))
		return summary, err
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			logger.Warn("Failed to close cache connection", zap.Error(cerr))
		}
	}()

	logger.Info("Starting load",
		zap.Int("total_records", l.opts.TotalRecords),
		zap.Int("batch_size", l.opts.BatchSize),
		zap.Int("batches", summary.PlannedBatches),
	)

	for index := 1; ; index++ {
		if err := ctx.Err(); err != nil {
			logger.Warn("Load interrupted", zap.Int("completed_batches", summary.Batches), zap.Error(err))
			return summary, err
		}

		batch, ok := planner.Next()
		if !ok {
			break
		}

		result := l.writeBatch(ctx, index, batch, conn)
		summary.add(result)
		l.logResult(logger, result)
		for _, o := range l.observers {
			o.ObserveBatch(result)
		}

		if l.opts.ProgressEvery > 0 && index%l.opts.ProgressEvery == 0 {
			elapsed := l.now().Sub(summary.StartedAt).Seconds()
			rate := 0.0
			if elapsed > 0 {
				rate = float64(summary.Records) / elapsed
			}
			logger.Info("Load progress",
				zap.Int("batches", summary.Batches),
				zap.Int("records", summary.Records),
				zap.Float64("records_per_second", rate),
			)
		}
	}

	logger.Info("Load finished",
		zap.Int("batches", summary.Batches),
		zap.Int("records", summary.Records),
		zap.Int("succeeded", summary.Outcomes[OutcomeSuccess]),
		zap.Int("kv_failed", summary.Outcomes[OutcomeKVFailed]),
		zap.Int("cache_failed", summary.Outcomes[OutcomeCacheFailed]),
		zap.Int("both_failed", summary.Outcomes[OutcomeBothFailed]),
	)
	return summary, nil
}

// writeBatch attempts both sinks. The cache write does not depend on the
// outcome of the DynamoDB write.
func (l *Loader) writeBatch(ctx context.Context, index int, batch generator.Batch, conn CacheSink) BatchResult {
	start := l.now()
	result := BatchResult{Index: index, Size: len(batch)}
	result.KVErr = l.kv.WriteBatch(ctx, batch)
	result.CacheErr = conn.WriteBatch(ctx, batch)
	result.Outcome = classify(result.KVErr, result.CacheErr)
	result.Duration = l.now().Sub(start)
	return result
}

func (l *Loader) logResult(logger *zap.Logger, r BatchResult) {
	fields := []zap.Field{
		zap.Int("batch", r.Index),
		zap.String("outcome", string(r.Outcome)),
		zap.Duration("duration", r.Duration),
	}
	switch r.Outcome {
	case OutcomeSuccess:
		logger.Debug("DynamoDB and cache batches inserted", fields...)
	case OutcomeKVFailed:
		logger.Error("DynamoDB batch failed", append(fields, zap.Error(r.KVErr))...)
	case OutcomeCacheFailed:
		logger.Error("Cache batch failed", append(fields, zap.Error(r.CacheErr))...)
	case OutcomeBothFailed:
		logger.Error("DynamoDB and cache batches failed",
			append(fields, zap.NamedError("kv_error", r.KVErr), zap.NamedError("cache_error", r.CacheErr))...)
	}
}
