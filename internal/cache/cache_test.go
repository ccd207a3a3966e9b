package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randyridgley/cdk-athena-federated/internal/generator"
)

func dial(t *testing.T, srv *miniredis.Miniredis) *Conn {
	t.Helper()
	conn, err := Dialer{Addr: srv.Addr(), Collection: "companies"}.Dial(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestDialUnreachable(t *testing.T) {
	srv := miniredis.RunT(t)
	addr := srv.Addr()
	srv.Close()

	_, err := Dialer{Addr: addr, DialTimeout: 200 * time.Millisecond}.Dial(context.Background())

	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, addr, connErr.Addr)
}

func TestDialWithoutAddress(t *testing.T) {
	_, err := Dialer{}.Dial(context.Background())
	var connErr *ConnectionError
	assert.ErrorAs(t, err, &connErr)
}

func TestWriteBatchLayout(t *testing.T) {
	srv := miniredis.RunT(t)
	conn := dial(t, srv)
	batch := generator.Batch{
		{ID: "1", Label: "Acme Corp", Value: "10.00"},
		{ID: "2", Label: "Globex", Value: "999.99"},
	}

	require.NoError(t, conn.WriteBatch(context.Background(), batch))

	members, err := srv.ZMembers("companies")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"companies:1", "companies:2"}, members)
	assert.Equal(t, "Acme Corp", srv.HGet("companies:1", "ticker"))
	assert.Equal(t, "999.99", srv.HGet("companies:2", "price"))

	size, err := conn.Size(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, size)
}

func TestWriteBatchPipelineFailure(t *testing.T) {
	srv := miniredis.RunT(t)
	conn := dial(t, srv)
	srv.SetError("ERR simulated outage")

	err := conn.WriteBatch(context.Background(), generator.Batch{{ID: "1", Label: "Acme", Value: "10.00"}})

	var cwErr *CacheWriteError
	require.ErrorAs(t, err, &cwErr)
	assert.Equal(t, "companies", cwErr.Collection)
	assert.Equal(t, 2, cwErr.Size)
	assert.Equal(t, 2, cwErr.Failed)
}

func TestWriteBatchPartialFailureKeepsOtherRows(t *testing.T) {
	srv := miniredis.RunT(t)
	conn := dial(t, srv)
	require.NoError(t, srv.Set("companies:2", "not-a-hash"))

	err := conn.WriteBatch(context.Background(), generator.Batch{
		{ID: "1", Label: "Acme", Value: "10.00"},
		{ID: "2", Label: "Globex", Value: "20.00"},
		{ID: "3", Label: "Initech", Value: "30.00"},
	})

	var cwErr *CacheWriteError
	require.ErrorAs(t, err, &cwErr)
	assert.Equal(t, 6, cwErr.Size)
	assert.Equal(t, 1, cwErr.Failed)
	assert.ErrorContains(t, err, "WRONGTYPE")
	assert.Equal(t, "Acme", srv.HGet("companies:1", "ticker"))
	assert.Equal(t, "Initech", srv.HGet("companies:3", "ticker"))

	members, err := srv.ZMembers("companies")
	require.NoError(t, err)
	assert.Len(t, members, 3)
}

func TestWriteBatchDuplicateIDsLastWins(t *testing.T) {
	srv := miniredis.RunT(t)
	conn := dial(t, srv)

	require.NoError(t, conn.WriteBatch(context.Background(), generator.Batch{
		{ID: "7", Label: "Acme", Value: "10.00"},
		{ID: "7", Label: "Initech", Value: "30.00"},
	}))

	members, err := srv.ZMembers("companies")
	require.NoError(t, err)
	assert.Equal(t, []string{"companies:7"}, members)
	assert.Equal(t, "Initech", srv.HGet("companies:7", "ticker"))
}

func TestReadRows(t *testing.T) {
	srv := miniredis.RunT(t)
	conn := dial(t, srv)
	require.NoError(t, conn.WriteBatch(context.Background(), generator.Batch{{ID: "7", Label: "Initech", Value: "55.10"}}))
	srv.HSet("companies:9", "ticker", "Orphan", "price", "11.00")

	rows, err := conn.ReadRows(context.Background(), []string{"7", "8", "9"})

	require.NoError(t, err)
	assert.Equal(t, map[string]Row{
		"7": {Label: "Initech", Value: "55.10", Member: true},
		"9": {Label: "Orphan", Value: "11.00", Member: false},
	}, rows)
}

func TestReadRowsEmpty(t *testing.T) {
	srv := miniredis.RunT(t)
	conn := dial(t, srv)

	rows, err := conn.ReadRows(context.Background(), nil)

	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestReadRowsFailure(t *testing.T) {
	srv := miniredis.RunT(t)
	conn := dial(t, srv)
	srv.SetError("ERR simulated outage")

	_, err := conn.ReadRows(context.Background(), []string{"1"})

	assert.ErrorContains(t, err, "simulated outage")
}

func TestCloseIsIdempotent(t *testing.T) {
	srv := miniredis.RunT(t)
	conn, err := Dialer{Addr: srv.Addr()}.Dial(context.Background())
	require.NoError(t, err)

	require.NoError(t, conn.Close())
	assert.NoError(t, conn.Close())
	assert.Equal(t, DefaultCollection, conn.Collection())
}
