package s3

import (
	"context"
	"strconv"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecsim/blobstore"
)

// fakeDDB is an in-memory commit table honoring attribute_not_exists.
type fakeDDB struct {
	mu    sync.Mutex
	items map[string]map[uint64]map[string]types.AttributeValue
}

func newFakeDDB() *fakeDDB {
	return &fakeDDB{items: make(map[string]map[uint64]map[string]types.AttributeValue)}
}

func (f *fakeDDB) PutItem(_ context.Context, params *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	uri := params.Item["base_uri"].(*types.AttributeValueMemberS).Value
	version, err := strconv.ParseUint(params.Item["version"].(*types.AttributeValueMemberN).Value, 10, 64)
	if err != nil {
		return nil, err
	}

	if f.items[uri] == nil {
		f.items[uri] = make(map[uint64]map[string]types.AttributeValue)
	}
	if _, exists := f.items[uri][version]; exists && aws.ToString(params.ConditionExpression) == "attribute_not_exists(version)" {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("condition failed")}
	}
	f.items[uri][version] = params.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDDB) Query(_ context.Context, params *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	uri := params.ExpressionAttributeValues[":uri"].(*types.AttributeValueMemberS).Value

	var best uint64
	for v := range f.items[uri] {
		best = max(best, v)
	}
	if best == 0 {
		return &dynamodb.QueryOutput{}, nil
	}
	return &dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{f.items[uri][best]}}, nil
}

func TestDDBCommitStore_CurrentRoundTrip(t *testing.T) {
	ctx := context.Background()
	inner := blobstore.NewMemoryStore()
	store := NewDDBCommitStore(inner, newFakeDDB(), "vecsim-commits", "s3://bucket/db/")

	_, err := blobstore.ReadCurrent(ctx, store)
	require.ErrorIs(t, err, blobstore.ErrNotFound)

	require.NoError(t, blobstore.WriteCurrent(ctx, store, "vectors-000001.db"))
	require.NoError(t, blobstore.WriteCurrent(ctx, store, "vectors-000002.db"))

	got, err := blobstore.ReadCurrent(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, "vectors-000002.db", got)

	v, err := store.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), v)

	// The pointer never lands in the object store.
	names, err := inner.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestDDBCommitStore_PassThrough(t *testing.T) {
	ctx := context.Background()
	inner := blobstore.NewMemoryStore()
	store := NewDDBCommitStore(inner, newFakeDDB(), "t", "s3://b/")

	require.NoError(t, store.Put(ctx, "vectors-000001.db", []byte("data")))
	data, err := blobstore.ReadAll(ctx, store, "vectors-000001.db")
	require.NoError(t, err)
	assert.Equal(t, "data", string(data))

	_, err = store.Create(ctx, blobstore.CurrentName)
	assert.Error(t, err)
}

func TestDDBCommitStore_ConcurrentWriterLoses(t *testing.T) {
	ctx := context.Background()
	ddb := new(MockDDBClient)
	store := NewDDBCommitStore(blobstore.NewMemoryStore(), ddb, "t", "s3://b/")

	ddb.On("Query", mock.Anything, mock.Anything).Return(&dynamodb.QueryOutput{}, nil).Once()
	ddb.On("PutItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.PutItemInput) bool {
		v := in.Item["version"].(*types.AttributeValueMemberN).Value
		return v == "1" && aws.ToString(in.ConditionExpression) == "attribute_not_exists(version)"
	})).Return(nil, &types.ConditionalCheckFailedException{Message: aws.String("taken")}).Once()

	err := blobstore.WriteCurrent(ctx, store, "vectors-000001.db")
	assert.ErrorIs(t, err, ErrConcurrentModification)
	ddb.AssertExpectations(t)
}
