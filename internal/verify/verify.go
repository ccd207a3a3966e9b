// Package verify compares what a load left in DynamoDB with what it left in
// the cache. The loader itself never reconciles the two stores; this is an
// after-the-fact check.
package verify

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/randyridgley/cdk-athena-federated/internal/cache"
	"github.com/randyridgley/cdk-athena-federated/internal/generator"
)

type TableScanner interface {
	ScanPages(ctx context.Context, fn func([]generator.Record) error) error
}

// RowReader looks up a page of ids in one round trip.
type RowReader interface {
	ReadRows(ctx context.Context, ids []string) (map[string]cache.Row, error)
	Size(ctx context.Context) (int64, error)
}

var _ RowReader = (*cache.Conn)(nil)

// Mismatch is an id whose cache row differs from its table item.
type Mismatch struct {
	Table generator.Record `json:"table"`
	Cache cache.Row        `json:"cache"`
}

// Report counts every problem; the id lists hold at most the verifier's
// sample limit.
type Report struct {
	TableItems      int   `json:"tableItems"`
	CacheRows       int64 `json:"cacheRows"`
	Matched         int   `json:"matched"`
	MissingCount    int   `json:"missingCount"`
	UnindexedCount  int   `json:"unindexedCount"`
	MismatchedCount int   `json:"mismatchedCount"`

	Missing    []string   `json:"missing,omitempty"`
	Unindexed  []string   `json:"unindexed,omitempty"`
	Mismatched []Mismatch `json:"mismatched,omitempty"`
}

// Consistent is true when every table item has an identical, indexed cache row.
func (r *Report) Consistent() bool {
	return r.MissingCount == 0 && r.UnindexedCount == 0 && r.MismatchedCount == 0
}

type Verifier struct {
	table  TableScanner
	cache  RowReader
	logger *zap.Logger
	limit  int
}

// New returns a verifier that keeps at most limit ids per problem list.
// A limit of zero keeps all of them.
func New(table TableScanner, rows RowReader, logger *zap.Logger, limit int) *Verifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Verifier{table: table, cache: rows, logger: logger, limit: limit}
}

func (v *Verifier) Run(ctx context.Context) (*Report, error) {
	report := &Report{}

	err := v.table.ScanPages(ctx, func(page []generator.Record) error {
		ids := make([]string, len(page))
		for i, rec := range page {
			ids[i] = rec.ID
		}
		rows, err := v.cache.ReadRows(ctx, ids)
		if err != nil {
			return err
		}
		for _, rec := range page {
			v.compare(report, rec, rows)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("verification aborted after %d items: %w", report.TableItems, err)
	}

	size, err := v.cache.Size(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count cache rows: %w", err)
	}
	report.CacheRows = size

	v.logger.Info("Verification finished",
		zap.Int("table_items", report.TableItems),
		zap.Int64("cache_rows", report.CacheRows),
		zap.Int("matched", report.Matched),
		zap.Int("missing", report.MissingCount),
		zap.Int("unindexed", report.UnindexedCount),
		zap.Int("mismatched", report.MismatchedCount),
	)
	return report, nil
}

func (v *Verifier) compare(report *Report, rec generator.Record, rows map[string]cache.Row) {
	report.TableItems++
	row, ok := rows[rec.ID]
	switch {
	case !ok:
		report.MissingCount++
		if v.sample(len(report.Missing)) {
			report.Missing = append(report.Missing, rec.ID)
		}
	case row.Label != rec.Label || row.Value != rec.Value:
		report.MismatchedCount++
		if v.sample(len(report.Mismatched)) {
			report.Mismatched = append(report.Mismatched, Mismatch{Table: rec, Cache: row})
		}
	case !row.Member:
		report.UnindexedCount++
		if v.sample(len(report.Unindexed)) {
			report.Unindexed = append(report.Unindexed, rec.ID)
		}
	default:
		report.Matched++
	}
}

func (v *Verifier) sample(n int) bool {
	return v.limit == 0 || n < v.limit
}
