package stores

import (
	"context"
	"io"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioConfig MinIO / S3 兼容存储配置
type MinioConfig struct {
	Endpoint  string `env:"MINIO_ENDPOINT"`
	AccessKey string `env:"MINIO_ACCESS_KEY"`
	SecretKey string `env:"MINIO_SECRET_KEY"`
	Bucket    string `env:"MINIO_BUCKET"`
	UseSSL    bool   `env:"MINIO_USE_SSL"`
}

type MinioStore struct {
	cfg MinioConfig

	once   sync.Once
	cli    *minio.Client
	cliErr error
}

func NewMinioStore(cfg MinioConfig) *MinioStore {
	return &MinioStore{cfg: cfg}
}

func (m *MinioStore) client(ctx context.Context) (*minio.Client, error) {
	m.once.Do(func() {
		cli, err := minio.New(m.cfg.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(m.cfg.AccessKey, m.cfg.SecretKey, ""),
			Secure: m.cfg.UseSSL,
		})
		if err != nil {
			m.cliErr = err
			return
		}
		if err := m.ensureBucket(ctx, cli); err != nil {
			m.cliErr = err
			return
		}
		m.cli = cli
	})
	return m.cli, m.cliErr
}

func (m *MinioStore) ensureBucket(ctx context.Context, cli *minio.Client) error {
	exists, err := cli.BucketExists(ctx, m.cfg.Bucket)
	if err != nil {
		return err
	}
	if !exists {
		return cli.MakeBucket(ctx, m.cfg.Bucket, minio.MakeBucketOptions{})
	}
	return nil
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}

// Write PUT 在服务端是原子的，失败时不会留下半个对象
func (m *MinioStore) Write(ctx context.Context, key string, r io.Reader, size int64) error {
	if !ValidKey(key) {
		return ErrInvalidKey
	}
	cli, err := m.client(ctx)
	if err != nil {
		return err
	}
	_, err = cli.PutObject(ctx, m.cfg.Bucket, key, r, size, minio.PutObjectOptions{ContentType: "audio/mpeg"})
	return err
}

func (m *MinioStore) Read(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	if !ValidKey(key) {
		return nil, 0, ErrNotExist
	}
	cli, err := m.client(ctx)
	if err != nil {
		return nil, 0, err
	}
	obj, err := cli.GetObject(ctx, m.cfg.Bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, 0, err
	}
	st, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		if isNoSuchKey(err) {
			return nil, 0, ErrNotExist
		}
		return nil, 0, err
	}
	return obj, st.Size, nil
}

func (m *MinioStore) Delete(ctx context.Context, key string) error {
	if !ValidKey(key) {
		return ErrInvalidKey
	}
	cli, err := m.client(ctx)
	if err != nil {
		return err
	}
	err = cli.RemoveObject(ctx, m.cfg.Bucket, key, minio.RemoveObjectOptions{})
	if err != nil && isNoSuchKey(err) {
		return nil
	}
	return err
}

func (m *MinioStore) List(ctx context.Context) ([]Object, error) {
	cli, err := m.client(ctx)
	if err != nil {
		return nil, err
	}
	var out []Object
	for info := range cli.ListObjects(ctx, m.cfg.Bucket, minio.ListObjectsOptions{}) {
		if info.Err != nil {
			return nil, info.Err
		}
		out = append(out, Object{Key: info.Key, Size: info.Size, ModTime: info.LastModified})
	}
	return out, nil
}
