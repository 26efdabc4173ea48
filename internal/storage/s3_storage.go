package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	UseSSL    bool
}

// CanUse reports whether enough of the config is set to build a client.
func (c S3Config) CanUse() bool {
	return len(c.missing()) == 0
}

func (c S3Config) missing() []string {
	var out []string
	for _, f := range []struct{ name, value string }{
		{"endpoint", c.Endpoint},
		{"access key", c.AccessKey},
		{"secret key", c.SecretKey},
		{"bucket", c.Bucket},
	} {
		if strings.TrimSpace(f.value) == "" {
			out = append(out, f.name)
		}
	}
	return out
}

// normalized trims every field and applies defaults. An endpoint given as a
// URL decides UseSSL from its scheme.
func (c S3Config) normalized() S3Config {
	c.Endpoint = strings.TrimSpace(c.Endpoint)
	switch {
	case strings.HasPrefix(c.Endpoint, "https://"):
		c.Endpoint, c.UseSSL = strings.TrimPrefix(c.Endpoint, "https://"), true
	case strings.HasPrefix(c.Endpoint, "http://"):
		c.Endpoint, c.UseSSL = strings.TrimPrefix(c.Endpoint, "http://"), false
	}
	c.Endpoint = strings.TrimRight(c.Endpoint, "/")
	c.AccessKey = strings.TrimSpace(c.AccessKey)
	c.SecretKey = strings.TrimSpace(c.SecretKey)
	c.Bucket = strings.TrimSpace(c.Bucket)
	c.Region = strings.TrimSpace(c.Region)
	if c.Region == "" {
		c.Region = "us-east-1"
	}
	c.Prefix = strings.Trim(strings.TrimSpace(c.Prefix), "/")
	return c
}

// S3Storage stores project files as objects in an S3-compatible bucket.
type S3Storage struct {
	client     *minio.Client
	bucketName string
	region     string
	prefix     string
	initOnce   sync.Once
	initErr    error
}

// NewS3Storage builds a client without contacting the server. The bucket is
// checked and created on first use.
func NewS3Storage(cfg S3Config) (*S3Storage, error) {
	cfg = cfg.normalized()
	if !cfg.CanUse() {
		return nil, fmt.Errorf("s3 config incomplete: missing %s", strings.Join(cfg.missing(), ", "))
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client for %s: %w", cfg.Endpoint, err)
	}
	return &S3Storage{client: client, bucketName: cfg.Bucket, region: cfg.Region, prefix: cfg.Prefix}, nil
}

func (s *S3Storage) ensureBucket(ctx context.Context) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("storage is nil")
	}
	s.initOnce.Do(func() {
		exists, err := s.client.BucketExists(ctx, s.bucketName)
		if err != nil {
			s.initErr = err
			return
		}
		if exists {
			return
		}
		s.initErr = s.client.MakeBucket(ctx, s.bucketName, minio.MakeBucketOptions{Region: s.region})
	})
	return s.initErr
}

func (s *S3Storage) objectKey(p string) (string, error) {
	key, err := CleanPath(p)
	if err != nil {
		return "", err
	}
	if s.prefix == "" {
		return key, nil
	}
	return s.prefix + "/" + key, nil
}

func (s *S3Storage) ReadFile(ctx context.Context, p string) ([]byte, error) {
	key, err := s.objectKey(p)
	if err != nil {
		return nil, err
	}
	if err := s.ensureBucket(ctx); err != nil {
		return nil, fmt.Errorf("ensure bucket: %w", err)
	}

	obj, err := s.client.GetObject(ctx, s.bucketName, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		errResp := minio.ToErrorResponse(err)
		if errResp.Code == "NoSuchKey" || errResp.Code == "NoSuchBucket" {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

func (s *S3Storage) WriteFile(ctx context.Context, p string, data []byte) error {
	key, err := s.objectKey(p)
	if err != nil {
		return err
	}
	if err := s.ensureBucket(ctx); err != nil {
		return fmt.Errorf("ensure bucket: %w", err)
	}
	if data == nil {
		data = []byte{}
	}
	_, err = s.client.PutObject(ctx, s.bucketName, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType(key),
	})
	return err
}

func contentType(key string) string {
	if strings.HasSuffix(key, ".json") {
		return "application/json"
	}
	if strings.HasSuffix(key, ".lua") {
		return "text/x-lua"
	}
	return "application/octet-stream"
}
