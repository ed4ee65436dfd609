package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/Paradox-Developer-Foundation/PackageManager/internal/config"
)

var (
	// ErrNotExist 文件不存在
	ErrNotExist = errors.New("blob does not exist")
	// ErrInvalidName 文件名不合法
	ErrInvalidName = errors.New("invalid blob name")
)

// BlobInfo 文件信息
type BlobInfo struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// BlobStore 包文件存储
type BlobStore interface {
	// Save 写入文件，size 未知时传 -1；写入失败或 ctx 取消时不会留下半个文件
	Save(ctx context.Context, name string, r io.Reader, size int64) (int64, error)
	// Open 打开文件用于读取，不存在时返回 ErrNotExist
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	// Stat 获取文件信息，不存在时返回 ErrNotExist
	Stat(ctx context.Context, name string) (*BlobInfo, error)
}

// New 根据配置创建存储
func New(ctx context.Context, cfg *config.StorageConfig) (BlobStore, error) {
	switch cfg.Type {
	case "local", "":
		return NewLocalStore(cfg.Path)
	case "minio":
		return NewMinioStore(ctx, &cfg.Minio)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// checkName 文件名只能是单层名称
func checkName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || path.Clean(name) != name {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// contextReader 每次读取前检查 ctx，使大文件的拷贝可以被取消
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// WithContext 包装 reader，ctx 取消后读取立即返回错误
func WithContext(ctx context.Context, r io.Reader) io.Reader {
	return &contextReader{ctx: ctx, r: r}
}
