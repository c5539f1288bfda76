package persist

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const ctxTimeout = 10 * time.Second

// S3Config holds the connection settings for an S3-compatible backend.
type S3Config struct {
	Endpoint        string `json:"endpoint" yaml:"endpoint"`
	AccessKeyID     string `json:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key" yaml:"secret_access_key"`
	UseSSL          bool   `json:"use_ssl" yaml:"use_ssl"`
	Region          string `json:"region" yaml:"region"`
	Bucket          string `json:"bucket" yaml:"bucket"`
	KeyPrefix       string `json:"key_prefix" yaml:"key_prefix"`
}

// S3Store implements Store against an S3-compatible object store via the
// MinIO client. Values are stored one object per key under a per-user
// prefix:
//
//	bucket/
//	└── [keyPrefix/]userID/
//	    ├── <base64url(key1)>.enc
//	    └── <base64url(key2)>.enc
//
// Like every Store implementation, this layer only ever sees ciphertext;
// bucket-side encryption is neither required nor assumed.
type S3Store struct {
	client     *minio.Client
	bucketName string
	keyPrefix  string
	userID     string
}

// Ensure S3Store implements Store.
var _ Store = (*S3Store)(nil)

// NewS3Store connects to the object store and ensures the bucket exists.
func NewS3Store(config S3Config, userID string) (*S3Store, error) {
	if userID == "" {
		userID = "default"
	}
	if err := validateUserID(userID); err != nil {
		return nil, fmt.Errorf("invalid user ID: %w", err)
	}

	client, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKeyID, config.SecretAccessKey, ""),
		Secure: config.UseSSL,
		Region: config.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	store := &S3Store{
		client:     client,
		bucketName: config.Bucket,
		keyPrefix:  config.KeyPrefix,
		userID:     userID,
	}

	ctx, cancel := context.WithTimeout(context.Background(), ctxTimeout)
	defer cancel()

	if err = store.ensureBucket(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure bucket exists: %w", err)
	}

	return store, nil
}

// NewS3StoreFromConfig creates an S3Store from a generic StoreConfig.
func NewS3StoreFromConfig(config StoreConfig, userID string) (*S3Store, error) {
	// Round-trip the loose map through JSON into the typed config.
	raw, err := json.Marshal(config.Config)
	if err != nil {
		return nil, fmt.Errorf("invalid s3 config: %w", err)
	}
	var s3cfg S3Config
	if err = json.Unmarshal(raw, &s3cfg); err != nil {
		return nil, fmt.Errorf("invalid s3 config: %w", err)
	}
	if s3cfg.Endpoint == "" || s3cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 storage requires 'endpoint' and 'bucket' in config")
	}
	return NewS3Store(s3cfg, userID)
}

func (s *S3Store) Put(key string, data []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), ctxTimeout)
	defer cancel()

	_, err := s.client.PutObject(ctx, s.bucketName, s.objectName(key),
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/octet-stream"})
	if err != nil {
		return fmt.Errorf("failed to store value: %w", err)
	}
	return nil
}

func (s *S3Store) Get(key string) ([]byte, bool, error) {
	if err := validateKey(key); err != nil {
		return nil, false, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), ctxTimeout)
	defer cancel()

	obj, err := s.client.GetObject(ctx, s.bucketName, s.objectName(key), minio.GetObjectOptions{})
	if err != nil {
		return nil, false, fmt.Errorf("failed to read value: %w", err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if isNotFound(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read value: %w", err)
	}
	return data, true, nil
}

func (s *S3Store) Delete(key string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), ctxTimeout)
	defer cancel()

	err := s.client.RemoveObject(ctx, s.bucketName, s.objectName(key), minio.RemoveObjectOptions{})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to delete value: %w", err)
	}
	return nil
}

func (s *S3Store) Exists(key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), ctxTimeout)
	defer cancel()

	_, err := s.client.StatObject(ctx, s.bucketName, s.objectName(key), minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat value: %w", err)
	}
	return true, nil
}

func (s *S3Store) List() ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), ctxTimeout)
	defer cancel()

	prefix := s.userPrefix()
	var keys []string
	for obj := range s.client.ListObjects(ctx, s.bucketName, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("failed to list values: %w", obj.Err)
		}
		name := strings.TrimPrefix(obj.Key, prefix)
		if !strings.HasSuffix(name, itemSuffix) {
			continue
		}
		decoded, err := base64.URLEncoding.DecodeString(strings.TrimSuffix(name, itemSuffix))
		if err != nil {
			continue
		}
		keys = append(keys, string(decoded))
	}
	return keys, nil
}

func (s *S3Store) Clear() error {
	keys, err := s.List()
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := s.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

func (s *S3Store) Ping() error {
	ctx, cancel := context.WithTimeout(context.Background(), ctxTimeout)
	defer cancel()

	exists, err := s.client.BucketExists(ctx, s.bucketName)
	if err != nil {
		return fmt.Errorf("failed to reach object store: %w", err)
	}
	if !exists {
		return fmt.Errorf("bucket %s does not exist", s.bucketName)
	}
	return nil
}

func (s *S3Store) Close() error {
	// The MinIO client holds no per-store resources.
	return nil
}

func (s *S3Store) GetType() string {
	return string(StoreTypeS3)
}

func (s *S3Store) ensureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucketName)
	if err != nil {
		return err
	}
	if !exists {
		return s.client.MakeBucket(ctx, s.bucketName, minio.MakeBucketOptions{})
	}
	return nil
}

func (s *S3Store) userPrefix() string {
	if s.keyPrefix != "" {
		return strings.TrimSuffix(s.keyPrefix, "/") + "/" + s.userID + "/"
	}
	return s.userID + "/"
}

func (s *S3Store) objectName(key string) string {
	return s.userPrefix() + base64.URLEncoding.EncodeToString([]byte(key)) + itemSuffix
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket"
}
