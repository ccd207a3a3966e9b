package generator

import (
	"errors"
	"fmt"
)

// MaxBatchSize is the DynamoDB BatchWriteItem item limit.
const MaxBatchSize = 25

var (
	ErrPartialBatch     = errors.New("total records is not a multiple of the batch size")
	ErrInvalidBatchSize = fmt.Errorf("batch size must be between 1 and %d", MaxBatchSize)
	ErrNegativeTotal    = errors.New("total records must not be negative")
)

// Batch is a fully materialized group of records handed to both sinks.
type Batch []Record

// Planner cuts the generator's stream into batches of exactly size records.
type Planner struct {
	gen     *Generator
	size    int
	total   int
	emitted int
}

// NewPlanner rejects a total that would leave a short final batch.
func NewPlanner(gen *Generator, total, size int) (*Planner, error) {
	if size < 1 || size > MaxBatchSize {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidBatchSize, size)
	}
	if total < 0 {
		return nil, fmt.Errorf("%w: got %d", ErrNegativeTotal, total)
	}
	if total%size != 0 {
		return nil, fmt.Errorf("%w: %d %% %d = %d", ErrPartialBatch, total, size, total%size)
	}
	return &Planner{gen: gen, size: size, total: total}, nil
}

// Batches returns the number of batches the planner will yield.
func (p *Planner) Batches() int {
	return p.total / p.size
}

// Next returns the next batch, or false once total records have been emitted.
func (p *Planner) Next() (Batch, bool) {
	if p.emitted >= p.total {
		return nil, false
	}
	batch := make(Batch, 0, p.size)
	for j := 0; j < p.size; j++ {
		batch = append(batch, p.gen.Record())
	}
	p.emitted += len(batch)
	return batch, true
}
