// Package report archives a run summary to S3 and announces it on SNS.
// Either output is skipped when it has no destination configured.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/randyridgley/cdk-athena-federated/internal/loader"
)

type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type PublishAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

var (
	_ PutObjectAPI = (*s3.Client)(nil)
	_ PublishAPI   = (*sns.Client)(nil)
)

// Document is what gets archived and published for one run.
type Document struct {
	Table      string          `json:"table"`
	Collection string          `json:"collection"`
	Summary    *loader.Summary `json:"summary"`
	Failed     int             `json:"failedBatches"`
}

type Reporter struct {
	s3       PutObjectAPI
	bucket   string
	prefix   string
	sns      PublishAPI
	topicARN string
}

type Option func(*Reporter)

func WithArchive(client PutObjectAPI, bucket, prefix string) Option {
	return func(r *Reporter) {
		r.s3, r.bucket, r.prefix = client, bucket, prefix
	}
}

func WithNotification(client PublishAPI, topicARN string) Option {
	return func(r *Reporter) {
		r.sns, r.topicARN = client, topicARN
	}
}

func New(opts ...Option) *Reporter {
	r := &Reporter{}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Key is the S3 object key a run's document is stored under.
func (r *Reporter) Key(runID string) string {
	return path.Join(r.prefix, runID+".json")
}

// Send archives and publishes doc. Both are attempted; errors are joined.
func (r *Reporter) Send(ctx context.Context, doc Document) error {
	if doc.Summary == nil {
		return errors.New("report has no summary")
	}
	doc.Failed = doc.Summary.Failed()

	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	var errs []error
	if r.s3 != nil && r.bucket != "" {
		_, err := r.s3.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(r.bucket),
			Key:         aws.String(r.Key(doc.Summary.RunID)),
			Body:        bytes.NewReader(body),
			ContentType: aws.String("application/json"),
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to archive report to s3://%s: %w", r.bucket, err))
		}
	}
	if r.sns != nil && r.topicARN != "" {
		_, err := r.sns.Publish(ctx, &sns.PublishInput{
			TopicArn: aws.String(r.topicARN),
			Subject:  aws.String(subject(doc)),
			Message:  aws.String(string(body)),
			MessageAttributes: map[string]types.MessageAttributeValue{
				"failedBatches": {
					DataType:    aws.String("Number"),
					StringValue: aws.String(fmt.Sprint(doc.Failed)),
				},
			},
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to publish report: %w", err))
		}
	}
	return errors.Join(errs...)
}

func subject(doc Document) string {
	if doc.Failed == 0 {
		return fmt.Sprintf("Loader run %s loaded %d records", doc.Summary.RunID, doc.Summary.Records)
	}
	return fmt.Sprintf("Loader run %s finished with %d failed batches", doc.Summary.RunID, doc.Failed)
}
