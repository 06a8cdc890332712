package mediastore

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config names the bucket and endpoint media objects go to. Endpoint and
// static credentials support MinIO-style deployments; leave AccessKeyID
// empty to use the ambient credential chain.
type S3Config struct {
	Region          string
	Bucket          string
	Endpoint        string
	PublicBaseURL   string
	AccessKeyID     string
	SecretAccessKey string
}

// S3Store uploads media objects to an S3-compatible bucket.
type S3Store struct {
	client        *s3.Client
	bucket        string
	publicBaseURL string
}

// NewS3Store builds the S3 client from the config.
func NewS3Store(ctx context.Context, storeConfig S3Config) (*S3Store, error) {
	loadOptions := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(storeConfig.Region),
	}
	if storeConfig.AccessKeyID != "" {
		loadOptions = append(loadOptions, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(storeConfig.AccessKeyID, storeConfig.SecretAccessKey, ""),
		))
	}
	awsConfig, loadErr := awsconfig.LoadDefaultConfig(ctx, loadOptions...)
	if loadErr != nil {
		return nil, fmt.Errorf("mediastore.s3.load_config: %w", loadErr)
	}
	client := s3.NewFromConfig(awsConfig, func(options *s3.Options) {
		if storeConfig.Endpoint != "" {
			options.BaseEndpoint = aws.String(storeConfig.Endpoint)
			options.UsePathStyle = true
		}
	})
	publicBase := strings.TrimSuffix(storeConfig.PublicBaseURL, "/")
	if publicBase == "" {
		if storeConfig.Endpoint != "" {
			publicBase = strings.TrimSuffix(storeConfig.Endpoint, "/") + "/" + storeConfig.Bucket
		} else {
			publicBase = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", storeConfig.Bucket, storeConfig.Region)
		}
	}
	return &S3Store{
		client:        client,
		bucket:        storeConfig.Bucket,
		publicBaseURL: publicBase,
	}, nil
}

// Upload writes the object and returns its public URL.
func (store *S3Store) Upload(ctx context.Context, key string, contentType string, body io.Reader) (string, error) {
	_, putErr := store.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(store.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if putErr != nil {
		return "", fmt.Errorf("mediastore.s3.put_object: %w", putErr)
	}
	return store.publicBaseURL + "/" + key, nil
}
