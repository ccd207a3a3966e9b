// Package awsclient builds the SDK clients the loader talks to from one
// shared aws.Config.
package awsclient

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

type Clients struct {
	Config     aws.Config
	DynamoDB   *dynamodb.Client
	SSM        *ssm.Client
	S3         *s3.Client
	SNS        *sns.Client
	CloudWatch *cloudwatch.Client
}

// Load reads the default credential chain. An empty region keeps the
// region from the environment.
func Load(ctx context.Context, region string) (*Clients, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}
	return &Clients{
		Config:     cfg,
		DynamoDB:   dynamodb.NewFromConfig(cfg),
		SSM:        ssm.NewFromConfig(cfg),
		S3:         s3.NewFromConfig(cfg),
		SNS:        sns.NewFromConfig(cfg),
		CloudWatch: cloudwatch.NewFromConfig(cfg),
	}, nil
}
