package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"

	"github.com/Paradox-Developer-Foundation/PackageManager/internal/config"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioStore S3兼容对象存储
type MinioStore struct {
	client   *minio.Client
	bucket   string
	basePath string
}

// NewMinioStore 创建对象存储，bucket 不存在时自动创建
func NewMinioStore(ctx context.Context, cfg *config.MinioConfig) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Location,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Location}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}

	return &MinioStore{client: client, bucket: cfg.Bucket, basePath: cfg.BasePath}, nil
}

func (s *MinioStore) objectName(name string) string {
	return path.Join(s.basePath, name)
}

// Save 上传对象，对象存储的单次 PUT 本身是原子的
func (s *MinioStore) Save(ctx context.Context, name string, r io.Reader, size int64) (int64, error) {
	if err := checkName(name); err != nil {
		return 0, err
	}
	info, err := s.client.PutObject(ctx, s.bucket, s.objectName(name), WithContext(ctx, r), size,
		minio.PutObjectOptions{ContentType: "application/octet-stream"})
	if err != nil {
		return 0, fmt.Errorf("put object %s: %w", name, err)
	}
	return info.Size, nil
}

// Open 打开对象
// GetObject 是惰性的，这里先 Stat 一次以便及时返回 ErrNotExist
func (s *MinioStore) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if _, err := s.Stat(ctx, name); err != nil {
		return nil, err
	}
	obj, err := s.client.GetObject(ctx, s.bucket, s.objectName(name), minio.GetObjectOptions{})
	if err != nil {
		return nil, convertMinioErr(name, err)
	}
	return obj, nil
}

// Stat 获取对象信息
func (s *MinioStore) Stat(ctx context.Context, name string) (*BlobInfo, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	info, err := s.client.StatObject(ctx, s.bucket, s.objectName(name), minio.StatObjectOptions{})
	if err != nil {
		return nil, convertMinioErr(name, err)
	}
	return &BlobInfo{Name: name, Size: info.Size, ModTime: info.LastModified}, nil
}

func convertMinioErr(name string, err error) error {
	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		if resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%w: %s", ErrNotExist, name)
		}
	}
	return err
}
