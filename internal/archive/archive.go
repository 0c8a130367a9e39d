// Package archive сохраняет выгруженные книги xlsx в S3-совместимое хранилище или в локальный каталог.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Key возвращает ключ архива вида exports/<kind>/<timestamp>.xlsx.
func Key(kind string, at time.Time) string {
	return path.Join("exports", kind, at.UTC().Format("20060102T150405Z")+".xlsx")
}

// objectPutter описывает единственную операцию S3, которая нужна архиву.
type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Config содержит параметры подключения к бакету.
type S3Config struct {
	Bucket   string
	Region   string
	Endpoint string
}

// S3Archiver кладёт выгрузки в бакет S3 (или MinIO).
type S3Archiver struct {
	client objectPutter
	bucket string
}

// NewS3Archiver создаёт архив поверх S3. Учётные данные берутся из стандартной цепочки AWS.
func NewS3Archiver(ctx context.Context, cfg S3Config) (*S3Archiver, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.UsePathStyle = true
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return &S3Archiver{client: client, bucket: cfg.Bucket}, nil
}

// Store сохраняет данные под ключом key и возвращает адрес объекта.
func (a *S3Archiver) Store(ctx context.Context, key string, data []byte) (string, error) {
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentTypeXLSX),
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	return "s3://" + a.bucket + "/" + key, nil
}

// DirArchiver кладёт выгрузки в локальный каталог.
type DirArchiver struct {
	root string
}

// NewDirArchiver создаёт архив в каталоге root.
func NewDirArchiver(root string) *DirArchiver {
	return &DirArchiver{root: root}
}

// Store записывает файл root/key и возвращает его путь.
func (a *DirArchiver) Store(ctx context.Context, key string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p := filepath.Join(a.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return "", fmt.Errorf("create dirs: %w", err)
	}
	if err := os.WriteFile(p, data, 0o640); err != nil {
		return "", fmt.Errorf("write %s: %w", p, err)
	}
	return p, nil
}
