package dynamodb

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/randyridgley/cdk-athena-federated/internal/generator"
)

var _ dynamodb.ScanAPIClient = (*dynamodb.Client)(nil)

// Reader walks a loaded table.
type Reader struct {
	api   dynamodb.ScanAPIClient
	table string
}

func NewReader(api dynamodb.ScanAPIClient, table string) *Reader {
	return &Reader{api: api, table: table}
}

// ScanPages calls fn once per scan page with that page's records. It stops at
// the first error returned by fn.
func (r *Reader) ScanPages(ctx context.Context, fn func([]generator.Record) error) error {
	proj := expression.NamesList(expression.Name("id"), expression.Name("ticker"), expression.Name("value"))
	expr, err := expression.NewBuilder().WithProjection(proj).Build()
	if err != nil {
		return fmt.Errorf("failed to build projection: %w", err)
	}

	paginator := dynamodb.NewScanPaginator(r.api, &dynamodb.ScanInput{
		TableName:                aws.String(r.table),
		ProjectionExpression:     expr.Projection(),
		ExpressionAttributeNames: expr.Names(),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to scan %s: %w", r.table, err)
		}
		var records []generator.Record
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &records); err != nil {
			return fmt.Errorf("failed to unmarshal items: %w", err)
		}
		if len(records) == 0 {
			continue
		}
		if err := fn(records); err != nil {
			return err
		}
	}
	return nil
}
