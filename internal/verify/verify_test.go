package verify

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randyridgley/cdk-athena-federated/internal/cache"
	"github.com/randyridgley/cdk-athena-federated/internal/dynamodb"
	"github.com/randyridgley/cdk-athena-federated/internal/dynamodb/dynamodbtest"
	"github.com/randyridgley/cdk-athena-federated/internal/generator"
)

func setup(t *testing.T) (*miniredis.Miniredis, *dynamodbtest.Table, *cache.Conn) {
	t.Helper()
	srv := miniredis.RunT(t)
	conn, err := cache.Dialer{Addr: srv.Addr()}.Dial(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return srv, dynamodbtest.NewTable("demo", "id"), conn
}

func load(t *testing.T, table *dynamodbtest.Table, conn *cache.Conn, batch generator.Batch) {
	t.Helper()
	require.NoError(t, dynamodb.NewWriter(table, "demo").WriteBatch(context.Background(), batch))
	require.NoError(t, conn.WriteBatch(context.Background(), batch))
}

func TestVerifyConsistent(t *testing.T) {
	_, table, conn := setup(t)
	load(t, table, conn, generator.Batch{
		{ID: "1", Label: "Acme", Value: "10.00"},
		{ID: "2", Label: "Globex", Value: "20.00"},
	})

	report, err := New(dynamodb.NewReader(table, "demo"), conn, nil, 0).Run(context.Background())

	require.NoError(t, err)
	assert.True(t, report.Consistent())
	assert.Equal(t, 2, report.TableItems)
	assert.Equal(t, 2, report.Matched)
	assert.EqualValues(t, 2, report.CacheRows)
}

func TestVerifyFindsDivergence(t *testing.T) {
	srv, table, conn := setup(t)
	load(t, table, conn, generator.Batch{
		{ID: "1", Label: "Acme", Value: "10.00"},
		{ID: "2", Label: "Globex", Value: "20.00"},
		{ID: "3", Label: "Initech", Value: "30.00"},
		{ID: "4", Label: "Umbrella", Value: "40.00"},
	})
	srv.Del("companies:1")
	srv.HSet("companies:2", "price", "99.99")
	_, err := srv.ZRem("companies", "companies:3")
	require.NoError(t, err)

	report, err := New(dynamodb.NewReader(table, "demo"), conn, nil, 0).Run(context.Background())

	require.NoError(t, err)
	assert.False(t, report.Consistent())
	assert.Equal(t, []string{"1"}, report.Missing)
	assert.Equal(t, []string{"3"}, report.Unindexed)
	require.Len(t, report.Mismatched, 1)
	assert.Equal(t, "2", report.Mismatched[0].Table.ID)
	assert.Equal(t, "99.99", report.Mismatched[0].Cache.Value)
	assert.Equal(t, 1, report.Matched)
}

func TestVerifySampleLimit(t *testing.T) {
	srv, table, conn := setup(t)
	batch := generator.Batch{
		{ID: "1", Label: "A", Value: "10.00"},
		{ID: "2", Label: "B", Value: "10.00"},
		{ID: "3", Label: "C", Value: "10.00"},
	}
	require.NoError(t, dynamodb.NewWriter(table, "demo").WriteBatch(context.Background(), batch))
	srv.FlushAll()

	report, err := New(dynamodb.NewReader(table, "demo"), conn, nil, 2).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 3, report.MissingCount)
	assert.Len(t, report.Missing, 2)
	assert.Zero(t, report.CacheRows)
}

type countingRows struct {
	*cache.Conn
	calls int
}

func (c *countingRows) ReadRows(ctx context.Context, ids []string) (map[string]cache.Row, error) {
	c.calls++
	return c.Conn.ReadRows(ctx, ids)
}

func TestVerifyReadsCacheOncePerPage(t *testing.T) {
	_, table, conn := setup(t)
	table.PageSize = 2
	load(t, table, conn, generator.Batch{
		{ID: "1", Label: "A", Value: "10.00"},
		{ID: "2", Label: "B", Value: "20.00"},
		{ID: "3", Label: "C", Value: "30.00"},
		{ID: "4", Label: "D", Value: "40.00"},
		{ID: "5", Label: "E", Value: "50.00"},
	})
	rows := &countingRows{Conn: conn}

	report, err := New(dynamodb.NewReader(table, "demo"), rows, nil, 0).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 5, report.Matched)
	assert.Equal(t, 3, rows.calls)
}
