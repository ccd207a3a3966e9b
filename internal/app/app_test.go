package app

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/randyridgley/cdk-athena-federated/internal/config"
	"github.com/randyridgley/cdk-athena-federated/internal/dynamodb/dynamodbtest"
	"github.com/randyridgley/cdk-athena-federated/internal/loader"
)

type mockCloudWatch struct {
	mock.Mock
}

func (m *mockCloudWatch) PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	args := m.Called(params)
	return &cloudwatch.PutMetricDataOutput{}, args.Error(0)
}

type mockSSM struct {
	mock.Mock
}

func (m *mockSSM) GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	args := m.Called(aws.ToString(params.Name))
	return &ssm.GetParameterOutput{Parameter: &ssmtypes.Parameter{Value: aws.String(args.String(0))}}, args.Error(1)
}

func testConfig(srv *miniredis.Miniredis) *config.Config {
	cfg := config.Default()
	cfg.TableName = "demo"
	cfg.Cache.Host = srv.Addr()
	cfg.Load.TotalRecords = 100
	cfg.Load.Seed = 7
	return cfg
}

func TestLoadWritesBothStoresAndPublishesMetrics(t *testing.T) {
	srv := miniredis.RunT(t)
	table := dynamodbtest.NewTable("demo", "id")
	cw := &mockCloudWatch{}
	cw.On("PutMetricData", mock.MatchedBy(func(in *cloudwatch.PutMetricDataInput) bool {
		return aws.ToString(in.Namespace) == "FederatedDemo/Loader"
	})).Return(nil).Once()

	cfg := testConfig(srv)
	cfg.Report.MetricsNamespace = "FederatedDemo/Loader"
	clients := Clients{DynamoDB: table, CloudWatch: cw}
	require.NoError(t, Prepare(context.Background(), cfg, clients))

	summary, err := Load(context.Background(), cfg, clients, zaptest.NewLogger(t))

	require.NoError(t, err)
	assert.Equal(t, 4, summary.Batches)
	assert.Equal(t, 4, summary.Outcomes[loader.OutcomeSuccess])
	cw.AssertExpectations(t)

	members, err := srv.ZMembers("companies")
	require.NoError(t, err)
	assert.Len(t, members, table.Len())

	report, err := Verify(context.Background(), cfg, clients, zaptest.NewLogger(t), 10)
	require.NoError(t, err)
	assert.True(t, report.Consistent())
	assert.Equal(t, table.Len(), report.TableItems)
}

func TestLoadFailsWhenCacheIsUnreachable(t *testing.T) {
	srv := miniredis.RunT(t)
	cfg := testConfig(srv)
	srv.Close()
	table := dynamodbtest.NewTable("demo", "id")

	summary, err := Load(context.Background(), cfg, Clients{DynamoDB: table}, zaptest.NewLogger(t))

	require.Error(t, err)
	if summary != nil {
		assert.Zero(t, summary.Batches)
	}
	assert.Zero(t, table.Len())
}

func TestPrepareResolvesParameters(t *testing.T) {
	srv := miniredis.RunT(t)
	cfg := testConfig(srv)
	cfg.TableName = "ssm:/demo/table"
	params := &mockSSM{}
	params.On("GetParameter", "/demo/table").Return("companies-table", nil).Once()

	require.NoError(t, Prepare(context.Background(), cfg, Clients{SSM: params}))

	assert.Equal(t, "companies-table", cfg.TableName)
	params.AssertExpectations(t)
}

func TestPrepareRejectsInvalidConfig(t *testing.T) {
	srv := miniredis.RunT(t)
	cfg := testConfig(srv)
	cfg.Load.TotalRecords = 30

	assert.ErrorContains(t, Prepare(context.Background(), cfg, Clients{}), "multiple")

	cfg = testConfig(srv)
	cfg.TableName = "ssm:/demo/table"
	assert.ErrorContains(t, Prepare(context.Background(), cfg, Clients{}), "SSM")
}

// cancellingTable cancels the run after its n-th batch write.
type cancellingTable struct {
	*dynamodbtest.Table
	after  int
	cancel context.CancelFunc
}

func (c *cancellingTable) BatchWriteItem(ctx context.Context, params *awsdynamodb.BatchWriteItemInput, optFns ...func(*awsdynamodb.Options)) (*awsdynamodb.BatchWriteItemOutput, error) {
	out, err := c.Table.BatchWriteItem(ctx, params, optFns...)
	if c.Table.Calls() == c.after {
		c.cancel()
	}
	return out, err
}

type recordingCloudWatch struct {
	inputs  []*cloudwatch.PutMetricDataInput
	ctxErrs []error
}

func (r *recordingCloudWatch) PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	r.inputs = append(r.inputs, params)
	r.ctxErrs = append(r.ctxErrs, ctx.Err())
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func TestLoadPublishesInterruptedRun(t *testing.T) {
	srv := miniredis.RunT(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	table := &cancellingTable{Table: dynamodbtest.NewTable("demo", "id"), after: 2, cancel: cancel}
	cw := &recordingCloudWatch{}

	cfg := testConfig(srv)
	cfg.Report.MetricsNamespace = "FederatedDemo/Loader"

	summary, err := Load(ctx, cfg, Clients{DynamoDB: table, CloudWatch: cw}, zaptest.NewLogger(t))

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, summary.Batches)
	assert.Positive(t, summary.Duration)
	require.Len(t, cw.inputs, 1)
	assert.NoError(t, cw.ctxErrs[0])
}

func TestLoadSkipsPublishingWhenNothingRan(t *testing.T) {
	srv := miniredis.RunT(t)
	cfg := testConfig(srv)
	cfg.Report.MetricsNamespace = "FederatedDemo/Loader"
	srv.Close()
	cw := &recordingCloudWatch{}

	_, err := Load(context.Background(), cfg, Clients{DynamoDB: dynamodbtest.NewTable("demo", "id"), CloudWatch: cw}, zaptest.NewLogger(t))

	require.Error(t, err)
	assert.Empty(t, cw.inputs)
}
