package archive

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3API — подмножество клиента S3, которое использует S3Archive.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archive пишет логи в bucket под префиксом окружения.
type S3Archive struct {
	client S3API
	bucket string
	prefix string
}

// NewS3Archive создаёт S3Archive. prefix — обычно namespace "outpost-logs-<env>".
func NewS3Archive(client S3API, bucket, prefix string) *S3Archive {
	return &S3Archive{client: client, bucket: bucket, prefix: prefix}
}

// NewS3Client создаёт клиента S3. endpoint — для S3-совместимых хранилищ (MinIO).
func NewS3Client(cfg aws.Config, endpoint string) *s3.Client {
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
}

func (a *S3Archive) objectKey(p string) string {
	if a.prefix == "" {
		return p
	}
	return path.Join(a.prefix, p)
}

func (a *S3Archive) Write(ctx context.Context, p string, content []byte) error {
	key := a.objectKey(p)
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(content),
		ContentType: aws.String("text/plain; charset=utf-8"),
	})
	if err != nil {
		return fmt.Errorf("s3 put %s/%s: %w", a.bucket, key, err)
	}
	return nil
}
