package storage

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/rstemml/crawlify-kleine-anfragen/config"
)

// S3Client kapselt den Zugriff auf den Strato-HiDrive-Bucket, der als
// Spiegel für das Rohseiten-Archiv und als Ablage für Backups dient.
type S3Client struct {
	client *s3.Client
	bucket string
	url    string
}

// NewS3Client erstellt einen S3-Client für Strato HiDrive.
func NewS3Client(cfg *config.Config) (*S3Client, error) {
	resolver := aws.EndpointResolverWithOptionsFunc(
		func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{
				URL:               cfg.StratoS3URL,
				SigningRegion:     cfg.StratoS3Region,
				HostnameImmutable: true,
			}, nil
		},
	)
	awsCfg, err := awsconfig.LoadDefaultConfig(context.TODO(),
		awsconfig.WithRegion(cfg.StratoS3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.StratoS3Key, cfg.StratoS3Secret, "")),
		awsconfig.WithEndpointResolverWithOptions(resolver),
	)
	if err != nil {
		return nil, err
	}

	return &S3Client{
		client: s3.NewFromConfig(awsCfg),
		bucket: cfg.StratoS3Bucket,
		url:    cfg.StratoS3URL,
	}, nil
}

// Upload lädt Daten unter dem angegebenen Key in den Bucket und gibt
// den Link zurück.
func (c *S3Client) Upload(ctx context.Context, key string, data []byte) (string, error) {
	_, err := c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &c.bucket,
		Key:    &key,
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/%s/%s", c.url, c.bucket, key), nil
}

// UploadFile lädt eine lokale Datei unter dem angegebenen Key hoch.
func (c *S3Client) UploadFile(ctx context.Context, path, key string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("datei %s konnte nicht gelesen werden: %w", path, err)
	}
	_, err = c.Upload(ctx, key, data)
	return err
}

// ListKeys listet alle Objekt-Keys mit dem angegebenen Präfix.
func (c *S3Client) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	out, err := c.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: &c.bucket,
		Prefix: &prefix,
	})
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(out.Contents))
	for _, obj := range out.Contents {
		if obj.Key != nil {
			keys = append(keys, *obj.Key)
		}
	}
	return keys, nil
}

// DeleteKey löscht ein Objekt aus dem Bucket.
func (c *S3Client) DeleteKey(ctx context.Context, key string) error {
	_, err := c.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: &c.bucket,
		Key:    &key,
	})
	return err
}
