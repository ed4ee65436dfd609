package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// LocalStore 本地目录存储
type LocalStore struct {
	root string
}

// NewLocalStore 创建本地存储，目录不存在时自动创建
func NewLocalStore(root string) (*LocalStore, error) {
	if root == "" {
		return nil, errors.New("local storage path is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &LocalStore{root: root}, nil
}

// Root 存储根目录
func (s *LocalStore) Root() string {
	return s.root
}

// Save 先写入同目录下的临时文件，成功后原子重命名
func (s *LocalStore) Save(ctx context.Context, name string, r io.Reader, size int64) (int64, error) {
	if err := checkName(name); err != nil {
		return 0, err
	}

	tmp, err := os.CreateTemp(s.root, ".upload-*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmp, WithContext(ctx, r))
	if err != nil {
		return written, fmt.Errorf("write blob %s: %w", name, err)
	}
	if size >= 0 && written != size {
		return written, fmt.Errorf("write blob %s: short write %d of %d bytes", name, written, size)
	}
	if err := tmp.Sync(); err != nil {
		return written, fmt.Errorf("sync blob %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return written, fmt.Errorf("close blob %s: %w", name, err)
	}
	if err := ctx.Err(); err != nil {
		return written, err
	}
	if err := os.Rename(tmpPath, filepath.Join(s.root, name)); err != nil {
		return written, fmt.Errorf("commit blob %s: %w", name, err)
	}

	committed = true
	return written, nil
}

// Open 打开文件
func (s *LocalStore) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(s.root, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotExist, name)
		}
		return nil, err
	}
	return &localObject{Reader: WithContext(ctx, f), f: f}, nil
}

// Stat 获取文件信息
func (s *LocalStore) Stat(_ context.Context, name string) (*BlobInfo, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	fi, err := os.Stat(filepath.Join(s.root, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotExist, name)
		}
		return nil, err
	}
	return &BlobInfo{Name: name, Size: fi.Size(), ModTime: fi.ModTime()}, nil
}

type localObject struct {
	io.Reader
	f *os.File
}

func (o *localObject) Close() error {
	return o.f.Close()
}
