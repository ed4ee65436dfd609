package service

import (
	"context"
	"io"
	"strings"

	"github.com/Paradox-Developer-Foundation/PackageManager/internal/storage"
	"github.com/opencontainers/go-digest"
)

// ContentHasher 包文件摘要计算
type ContentHasher interface {
	// Digest 流式读取到 EOF，返回小写十六进制 SHA-256 摘要
	Digest(ctx context.Context, r io.Reader) (string, error)
}

type sha256Hasher struct{}

// NewContentHasher 创建 SHA-256 摘要计算器
func NewContentHasher() ContentHasher {
	return sha256Hasher{}
}

// Digest 计算摘要，ctx 取消后在下一次读取时中止
func (sha256Hasher) Digest(ctx context.Context, r io.Reader) (string, error) {
	digester := digest.SHA256.Digester()
	if _, err := io.Copy(digester.Hash(), storage.WithContext(ctx, r)); err != nil {
		return "", err
	}
	return digester.Digest().Encoded(), nil
}

// IntegrityMatches 忽略大小写比较声明的十六进制摘要与计算结果
func IntegrityMatches(declared, computed string) bool {
	return strings.EqualFold(declared, computed)
}
