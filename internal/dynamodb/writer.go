package dynamodb

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/randyridgley/cdk-athena-federated/internal/generator"
)

// BatchWriteAPI is the part of *dynamodb.Client the writer needs.
type BatchWriteAPI interface {
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

var _ BatchWriteAPI = (*dynamodb.Client)(nil)

// BatchWriteError reports a batch whose bulk write failed as a whole or in
// part. Unprocessed is the number of put requests DynamoDB handed back.
type BatchWriteError struct {
	Table       string
	Size        int
	Unprocessed int
	Err         error
}

func (e *BatchWriteError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("batch write to %s failed (%d items): %v", e.Table, e.Size, e.Err)
	}
	return fmt.Sprintf("batch write to %s left %d of %d items unprocessed", e.Table, e.Unprocessed, e.Size)
}

func (e *BatchWriteError) Unwrap() error {
	return e.Err
}

// Writer upserts batches into one table, one BatchWriteItem call per batch.
type Writer struct {
	api   BatchWriteAPI
	table string
}

func NewWriter(api BatchWriteAPI, table string) *Writer {
	return &Writer{api: api, table: table}
}

func (w *Writer) Table() string {
	return w.table
}

// WriteBatch sends the batch in a single request. Failed or unprocessed items
// are not retried.
func (w *Writer) WriteBatch(ctx context.Context, batch generator.Batch) error {
	if len(batch) > generator.MaxBatchSize {
		return &BatchWriteError{
			Table: w.table,
			Size:  len(batch),
			Err:   fmt.Errorf("batch exceeds the %d item limit", generator.MaxBatchSize),
		}
	}
	if len(batch) == 0 {
		return nil
	}

	requests := make([]types.WriteRequest, 0, len(batch))
	for _, record := range batch {
		item, err := attributevalue.MarshalMap(record)
		if err != nil {
			return &BatchWriteError{
				Table: w.table,
				Size:  len(batch),
				Err:   fmt.Errorf("failed to marshal record %s: %w", record.ID, err),
			}
		}
		requests = append(requests, types.WriteRequest{
			PutRequest: &types.PutRequest{
				Item: item,
			},
		})
	}

	input := &dynamodb.BatchWriteItemInput{
		RequestItems: map[string][]types.WriteRequest{
			w.table: requests,
		},
	}

	response, err := w.api.BatchWriteItem(ctx, input)
	if err != nil {
		return &BatchWriteError{Table: w.table, Size: len(batch), Unprocessed: len(batch), Err: err}
	}

	if unprocessed := countUnprocessed(response); unprocessed > 0 {
		return &BatchWriteError{Table: w.table, Size: len(batch), Unprocessed: unprocessed}
	}
	return nil
}

func countUnprocessed(out *dynamodb.BatchWriteItemOutput) int {
	if out == nil {
		return 0
	}
	n := 0
	for _, reqs := range out.UnprocessedItems {
		n += len(reqs)
	}
	return n
}
