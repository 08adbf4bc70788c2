package storage

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

// AWSConfig carries the connection settings shared by the S3 object store
// and the DynamoDB metadata backend.
type AWSConfig struct {
	Region    string
	AccessKey string
	SecretKey string
	// Endpoint overrides the service endpoint, e.g. a local MinIO.
	Endpoint string
}

var loadDefaultAWSConfig = config.LoadDefaultConfig

// LoadAWSConfig resolves an aws.Config. Static credentials are used when an
// access key is configured; otherwise the default provider chain applies.
func LoadAWSConfig(ctx context.Context, c AWSConfig) (aws.Config, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(c.Region)}
	if c.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AccessKey, c.SecretKey, "")))
	}
	return loadDefaultAWSConfig(ctx, opts...)
}
