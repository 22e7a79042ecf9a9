package audio

import (
	"bytes"
	"context"
	"encoding/hex"
	stderrs "errors"
	"io"
	"path"

	"XianwaiTTS/pkg/errors"
	stores "XianwaiTTS/pkg/storage"

	"github.com/google/uuid"
)

// Extension 生成的音频统一为 mp3
const Extension = ".mp3"

// Store 音频文件存储：生成不冲突的文件名，原子写入，幂等删除
type Store struct {
	backend stores.Store
	newName func() string
}

func NewStore(backend stores.Store) *Store {
	return &Store{backend: backend, newName: NewFilename}
}

// NewFilename 128 位随机 token 的 32 位十六进制 + .mp3
func NewFilename() string {
	id := uuid.New()
	return hex.EncodeToString(id[:]) + Extension
}

// Write 写入成功才返回文件名
func (s *Store) Write(ctx context.Context, data []byte) (string, error) {
	name := s.newName()
	if err := s.backend.Write(ctx, name, bytes.NewReader(data), int64(len(data))); err != nil {
		return "", errors.WrapCode(err, errors.CodeStorage, "保存音频文件失败").WithContext("filename", name)
	}
	return name, nil
}

// Read 文件不存在或文件名非法时返回 CodeNotFound
func (s *Store) Read(ctx context.Context, filename string) ([]byte, error) {
	rc, _, err := s.backend.Read(ctx, filename)
	if err != nil {
		if stderrs.Is(err, stores.ErrNotExist) || stderrs.Is(err, stores.ErrInvalidKey) {
			return nil, errors.WithCode(errors.CodeNotFound, "音频文件不存在")
		}
		return nil, errors.WrapCode(err, errors.CodeStorage, "读取音频文件失败")
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, errors.WrapCode(err, errors.CodeStorage, "读取音频文件失败")
	}
	return data, nil
}

// Open 流式读取，调用方负责关闭
func (s *Store) Open(ctx context.Context, filename string) (io.ReadCloser, int64, error) {
	if path.Ext(filename) != Extension {
		return nil, 0, errors.WithCode(errors.CodeNotFound, "音频文件不存在")
	}
	rc, size, err := s.backend.Read(ctx, filename)
	if err != nil {
		if stderrs.Is(err, stores.ErrNotExist) || stderrs.Is(err, stores.ErrInvalidKey) {
			return nil, 0, errors.WithCode(errors.CodeNotFound, "音频文件不存在")
		}
		return nil, 0, errors.WrapCode(err, errors.CodeStorage, "读取音频文件失败")
	}
	return rc, size, nil
}

// Delete 文件不存在不算错误
func (s *Store) Delete(ctx context.Context, filename string) error {
	if err := s.backend.Delete(ctx, filename); err != nil {
		if stderrs.Is(err, stores.ErrNotExist) {
			return nil
		}
		return errors.WrapCode(err, errors.CodeStorage, "删除音频文件失败").WithContext("filename", filename)
	}
	return nil
}

// List 列出所有已落盘的音频
func (s *Store) List(ctx context.Context) ([]stores.Object, error) {
	objs, err := s.backend.List(ctx)
	if err != nil {
		return nil, errors.WrapCode(err, errors.CodeStorage, "列举音频文件失败")
	}
	out := objs[:0]
	for _, o := range objs {
		if path.Ext(o.Key) == Extension {
			out = append(out, o)
		}
	}
	return out, nil
}
