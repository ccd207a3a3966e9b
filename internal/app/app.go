// Package app wires configuration and AWS clients into a load run or a
// verification pass. Both entry points share it.
package app

import (
	"context"
	"fmt"

	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"go.uber.org/zap"

	"github.com/randyridgley/cdk-athena-federated/internal/awsclient"
	"github.com/randyridgley/cdk-athena-federated/internal/cache"
	"github.com/randyridgley/cdk-athena-federated/internal/config"
	"github.com/randyridgley/cdk-athena-federated/internal/dynamodb"
	"github.com/randyridgley/cdk-athena-federated/internal/loader"
	"github.com/randyridgley/cdk-athena-federated/internal/metrics"
	"github.com/randyridgley/cdk-athena-federated/internal/report"
	"github.com/randyridgley/cdk-athena-federated/internal/verify"
)

// DynamoDBAPI is the table access a load and a verification need.
type DynamoDBAPI interface {
	dynamodb.BatchWriteAPI
	awsdynamodb.ScanAPIClient
}

type Clients struct {
	DynamoDB   DynamoDBAPI
	SSM        config.ParameterAPI
	S3         report.PutObjectAPI
	SNS        report.PublishAPI
	CloudWatch metrics.PutMetricDataAPI
}

func FromAWS(c *awsclient.Clients) Clients {
	return Clients{
		DynamoDB:   c.DynamoDB,
		SSM:        c.SSM,
		S3:         c.S3,
		SNS:        c.SNS,
		CloudWatch: c.CloudWatch,
	}
}

// Prepare resolves ssm: references and validates cfg.
func Prepare(ctx context.Context, cfg *config.Config, clients Clients) error {
	if cfg.HasParameterRefs() {
		if clients.SSM == nil {
			return fmt.Errorf("configuration references SSM parameters but no SSM client is available")
		}
		if err := cfg.ResolveParameters(ctx, clients.SSM); err != nil {
			return err
		}
	}
	return cfg.Validate()
}

func dialer(cfg *config.Config) cache.Dialer {
	return cache.Dialer{
		Addr:        cfg.Cache.Addr(),
		Password:    cfg.Cache.Password,
		DB:          cfg.Cache.DB,
		DialTimeout: cfg.Cache.DialTimeout,
		Collection:  cfg.Cache.Collection,
	}
}

// Load runs one load and then publishes metrics and the run report. Failures
// to publish are logged; they do not change the run's result. A run that was
// interrupted after writing batches is still published, with a context that
// outlives the cancellation.
func Load(ctx context.Context, cfg *config.Config, clients Clients, logger *zap.Logger) (*loader.Summary, error) {
	var recorder *metrics.Recorder
	var opts []loader.Option
	if cfg.Report.MetricsNamespace != "" && clients.CloudWatch != nil {
		recorder = metrics.NewRecorder(cfg.Report.MetricsNamespace, clients.CloudWatch)
		opts = append(opts, loader.WithObserver(recorder))
	}

	l := loader.New(
		loader.Options{
			TotalRecords:  cfg.Load.TotalRecords,
			BatchSize:     cfg.Load.BatchSize,
			Seed:          cfg.Load.Seed,
			ProgressEvery: cfg.Load.ProgressEvery,
		},
		dynamodb.NewWriter(clients.DynamoDB, cfg.TableName),
		loader.DialCache(dialer(cfg)),
		logger,
		opts...,
	)

	summary, runErr := l.Run(ctx)
	if runErr != nil && (summary == nil || summary.Batches == 0) {
		return summary, runErr
	}
	if runErr != nil {
		ctx = context.WithoutCancel(ctx)
	}

	if recorder != nil {
		if err := recorder.Publish(ctx, summary); err != nil {
			logger.Warn("Failed to publish run metrics", zap.Error(err))
		}
	}

	var reportOpts []report.Option
	if clients.S3 != nil {
		reportOpts = append(reportOpts, report.WithArchive(clients.S3, cfg.Report.Bucket, cfg.Report.Prefix))
	}
	if clients.SNS != nil {
		reportOpts = append(reportOpts, report.WithNotification(clients.SNS, cfg.Report.TopicARN))
	}
	reporter := report.New(reportOpts...)
	doc := report.Document{Table: cfg.TableName, Collection: cfg.Cache.Collection, Summary: summary}
	if err := reporter.Send(ctx, doc); err != nil {
		logger.Warn("Failed to send run report", zap.String("run_id", summary.RunID), zap.Error(err))
	}
	return summary, runErr
}

// Verify checks the table against the cache.
func Verify(ctx context.Context, cfg *config.Config, clients Clients, logger *zap.Logger, sampleLimit int) (*verify.Report, error) {
	conn, err := dialer(cfg).Dial(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := conn.Close(); err != nil {
			logger.Warn("Failed to close cache connection", zap.Error(err))
		}
	}()

	v := verify.New(dynamodb.NewReader(clients.DynamoDB, cfg.TableName), conn, logger, sampleLimit)
	rep, err := v.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("verification of %s failed: %w", cfg.TableName, err)
	}
	return rep, nil
}
