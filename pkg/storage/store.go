package stores

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"
)

var (
	// ErrNotExist 对象不存在
	ErrNotExist = errors.New("object does not exist")
	// ErrInvalidKey key 不是单层文件名
	ErrInvalidKey = errors.New("invalid object key")
)

// Object 列举结果
type Object struct {
	Key     string
	Size    int64
	ModTime time.Time
}

// Store 扁平命名空间的对象存储
type Store interface {
	// Write 写入完成前读者看不到该对象
	Write(ctx context.Context, key string, r io.Reader, size int64) error
	Read(ctx context.Context, key string) (io.ReadCloser, int64, error)
	// Delete 对不存在的对象返回 nil
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) ([]Object, error)
}

// ValidKey 只允许不含路径分隔符的文件名
func ValidKey(key string) bool {
	if key == "" || key == "." || key == ".." {
		return false
	}
	if strings.ContainsAny(key, `/\`) || strings.ContainsRune(key, 0) {
		return false
	}
	return !strings.HasPrefix(key, ".")
}
