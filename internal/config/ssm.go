package config

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// ParameterPrefix marks a value to be read from SSM Parameter Store,
// e.g. REDIS_HOST=ssm:/federated/redis/endpoint.
const ParameterPrefix = "ssm:"

type ParameterAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

var _ ParameterAPI = (*ssm.Client)(nil)

// HasParameterRefs reports whether any value needs ResolveParameters.
func (c *Config) HasParameterRefs() bool {
	for _, p := range c.parameterFields() {
		if strings.HasPrefix(*p, ParameterPrefix) {
			return true
		}
	}
	return false
}

// ResolveParameters replaces every ssm: reference with the parameter's
// decrypted value.
func (c *Config) ResolveParameters(ctx context.Context, api ParameterAPI) error {
	for _, p := range c.parameterFields() {
		name, ok := strings.CutPrefix(*p, ParameterPrefix)
		if !ok {
			continue
		}
		out, err := api.GetParameter(ctx, &ssm.GetParameterInput{
			Name:           aws.String(name),
			WithDecryption: aws.Bool(true),
		})
		if err != nil {
			return fmt.Errorf("failed to resolve parameter %s: %w", name, err)
		}
		if out.Parameter == nil || out.Parameter.Value == nil {
			return fmt.Errorf("parameter %s has no value", name)
		}
		*p = aws.ToString(out.Parameter.Value)
	}
	return nil
}

func (c *Config) parameterFields() []*string {
	return []*string{
		&c.TableName,
		&c.Cache.Host,
		&c.Cache.Password,
		&c.Report.Bucket,
		&c.Report.TopicARN,
	}
}
