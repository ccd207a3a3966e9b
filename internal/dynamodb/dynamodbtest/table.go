// Package dynamodbtest provides an in-memory table that answers the
// BatchWriteItem and Scan calls the loader makes.
package dynamodbtest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Table stores items keyed by a string partition key.
type Table struct {
	Name string
	Key  string

	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue
	calls int

	// FailCall makes the n-th BatchWriteItem call (1-based) return an error.
	FailCall int
	// UnprocessedCall makes the n-th call report its last item unprocessed.
	UnprocessedCall int
	// PageSize splits Scan results into pages when positive.
	PageSize int
}

func NewTable(name, key string) *Table {
	return &Table{Name: name, Key: key, items: make(map[string]map[string]types.AttributeValue)}
}

func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.items)
}

func (t *Table) Calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}

// Get returns the item stored under key, or nil.
func (t *Table) Get(key string) map[string]types.AttributeValue {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.items[key]
}

func (t *Table) BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls++

	if t.calls == t.FailCall {
		return nil, fmt.Errorf("simulated failure on call %d", t.calls)
	}

	reqs, ok := params.RequestItems[t.Name]
	if !ok {
		return nil, &types.ResourceNotFoundException{Message: aws.String("requested resource not found")}
	}
	if len(reqs) > 25 {
		return nil, fmt.Errorf("too many items in batch: %d", len(reqs))
	}

	seen := make(map[string]bool, len(reqs))
	for _, req := range reqs {
		if req.PutRequest == nil {
			continue
		}
		if key, ok := req.PutRequest.Item[t.Key].(*types.AttributeValueMemberS); ok {
			if seen[key.Value] {
				return nil, fmt.Errorf("ValidationException: Provided list of item keys contains duplicates")
			}
			seen[key.Value] = true
		}
	}

	out := &dynamodb.BatchWriteItemOutput{UnprocessedItems: map[string][]types.WriteRequest{}}
	for i, req := range reqs {
		if t.calls == t.UnprocessedCall && i == len(reqs)-1 {
			out.UnprocessedItems[t.Name] = append(out.UnprocessedItems[t.Name], req)
			continue
		}
		if req.PutRequest == nil {
			continue
		}
		key, ok := req.PutRequest.Item[t.Key].(*types.AttributeValueMemberS)
		if !ok {
			return nil, fmt.Errorf("item is missing string key %q", t.Key)
		}
		t.items[key.Value] = req.PutRequest.Item
	}
	return out, nil
}

func (t *Table) Scan(ctx context.Context, params *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if aws.ToString(params.TableName) != t.Name {
		return nil, &types.ResourceNotFoundException{Message: aws.String("requested resource not found")}
	}

	keys := make([]string, 0, len(t.items))
	for k := range t.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	start := 0
	if last, ok := params.ExclusiveStartKey[t.Key].(*types.AttributeValueMemberS); ok {
		start = sort.SearchStrings(keys, last.Value) + 1
	}
	if start > len(keys) {
		start = len(keys)
	}
	end := len(keys)
	if t.PageSize > 0 && start+t.PageSize < end {
		end = start + t.PageSize
	}

	out := &dynamodb.ScanOutput{}
	for _, k := range keys[start:end] {
		out.Items = append(out.Items, t.items[k])
	}
	out.Count = int32(len(out.Items))
	if end < len(keys) {
		out.LastEvaluatedKey = map[string]types.AttributeValue{
			t.Key: &types.AttributeValueMemberS{Value: keys[end-1]},
		}
	}
	return out, nil
}
