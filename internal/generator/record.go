package generator

import (
	"strconv"

	"github.com/brianvoe/gofakeit/v7"
)

const (
	maxID    = 1000000
	minValue = 10.0
	maxValue = 1000.0
)

// Record is one synthetic row. Both sinks are written from the same value.
type Record struct {
	ID    string `dynamodbav:"id"`
	Label string `dynamodbav:"ticker"`
	Value string `dynamodbav:"value"`
}

// Generator draws independent records. It keeps no memory of earlier draws,
// so ids may repeat within a run and across runs.
type Generator struct {
	faker *gofakeit.Faker
}

type Option func(*options)

type options struct {
	seed uint64
}

// WithSeed makes the record stream reproducible. Zero keeps a random seed.
func WithSeed(seed uint64) Option {
	return func(o *options) {
		o.seed = seed
	}
}

func New(opts ...Option) *Generator {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	return &Generator{faker: gofakeit.New(o.seed)}
}

func (g *Generator) Record() Record {
	return Record{
		ID:    strconv.Itoa(g.faker.Number(0, maxID-1)),
		Label: g.faker.Company(),
		Value: strconv.FormatFloat(g.faker.Float64Range(minValue, maxValue), 'f', 2, 64),
	}
}
