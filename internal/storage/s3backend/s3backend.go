// Package s3backend implements storage.Backend against an S3-compatible
// object store using the AWS SDK for Go v2.
package s3backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/savevault/syncengine/internal/model"
	"github.com/savevault/syncengine/internal/storage"
)

// Config carries the connection parameters for an S3-compatible bucket.
// Credentials are optional: when AccessKey/SecretKey are empty, the
// backend falls back to the SDK's ambient credential chain (environment,
// shared config, instance role), per the storage contract.
type Config struct {
	Bucket         string
	Region         string
	Endpoint       string // optional, for S3-compatible non-AWS stores
	AccessKey      string
	SecretKey      string
	ConnectTimeout time.Duration
	ForcePathStyle bool
}

// Backend is a storage.Backend over one S3-compatible bucket.
type Backend struct {
	client *s3.Client
	bucket string
	timeout time.Duration
}

// New constructs a Backend, resolving credentials and region per Config.
func New(ctx context.Context, cfg Config) (*Backend, error) {
	var optFns []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		optFns = append(optFns, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		optFns = append(optFns, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = &cfg.Endpoint
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Backend{client: client, bucket: cfg.Bucket, timeout: timeout}, nil
}

func (b *Backend) ctx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, b.timeout)
}

func (b *Backend) UploadFile(ctx context.Context, game, filePath string, version model.FileVersion, body []byte) (*storage.Result, error) {
	cctx, cancel := b.ctx(ctx)
	defer cancel()

	key := storage.VersionKey(game, filePath, version.VersionID)
	_, err := b.client.PutObject(cctx, &s3.PutObjectInput{
		Bucket: &b.bucket,
		Key:    &key,
		Body:   bytes.NewReader(body),
		Metadata: map[string]string{
			"file-path":  filePath,
			"version-id": version.VersionID,
			"file-hash":  version.Hash,
			"timestamp":  version.Timestamp.UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return storage.Failed(err), model.NewSyncError(model.BackendTransport, "UploadFile", key, err)
	}
	return storage.OK(map[string]string{"bucket": b.bucket, "key": key}), nil
}

func (b *Backend) DownloadFile(ctx context.Context, game, filePath string, version model.FileVersion) ([]byte, error) {
	cctx, cancel := b.ctx(ctx)
	defer cancel()

	key := storage.VersionKey(game, filePath, version.VersionID)
	out, err := b.client.GetObject(cctx, &s3.GetObjectInput{Bucket: &b.bucket, Key: &key})
	if err != nil {
		return nil, model.NewSyncError(model.BackendTransport, "DownloadFile", key, err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

func (b *Backend) UploadManifest(ctx context.Context, game string, manifest *model.GameVersionManifest) (*storage.Result, error) {
	cctx, cancel := b.ctx(ctx)
	defer cancel()

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return storage.Failed(err), err
	}
	key := storage.ManifestKey(game)
	contentType := "application/json"
	_, err = b.client.PutObject(cctx, &s3.PutObjectInput{
		Bucket:      &b.bucket,
		Key:         &key,
		Body:        bytes.NewReader(data),
		ContentType: &contentType,
	})
	if err != nil {
		return storage.Failed(err), model.NewSyncError(model.BackendTransport, "UploadManifest", key, err)
	}
	return storage.OK(map[string]string{"bucket": b.bucket, "key": key}), nil
}

func (b *Backend) DownloadManifest(ctx context.Context, game string) (*model.GameVersionManifest, error) {
	cctx, cancel := b.ctx(ctx)
	defer cancel()

	key := storage.ManifestKey(game)
	out, err := b.client.GetObject(cctx, &s3.GetObjectInput{Bucket: &b.bucket, Key: &key})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, nil
		}
		var nf *s3types.NotFound
		if errors.As(err, &nf) {
			return nil, nil
		}
		return nil, model.NewSyncError(model.BackendTransport, "DownloadManifest", key, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, model.NewSyncError(model.BackendTransport, "DownloadManifest", key, err)
	}
	var manifest model.GameVersionManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, model.NewSyncError(model.ManifestParseError, "DownloadManifest", key, err)
	}
	return &manifest, nil
}

func (b *Backend) DeleteVersion(ctx context.Context, game, filePath string, version model.FileVersion) (*storage.Result, error) {
	cctx, cancel := b.ctx(ctx)
	defer cancel()

	key := storage.VersionKey(game, filePath, version.VersionID)
	_, err := b.client.DeleteObject(cctx, &s3.DeleteObjectInput{Bucket: &b.bucket, Key: &key})
	if err != nil {
		return storage.Failed(err), model.NewSyncError(model.BackendTransport, "DeleteVersion", key, err)
	}
	return storage.OK(nil), nil
}

func (b *Backend) ListGames(ctx context.Context) ([]string, error) {
	cctx, cancel := b.ctx(ctx)
	defer cancel()

	prefix := "games/"
	delim := "/"
	var games []string
	var token *string
	for {
		out, err := b.client.ListObjectsV2(cctx, &s3.ListObjectsV2Input{
			Bucket:            &b.bucket,
			Prefix:            &prefix,
			Delimiter:         &delim,
			ContinuationToken: token,
		})
		if err != nil {
			return nil, model.NewSyncError(model.BackendTransport, "ListGames", prefix, err)
		}
		for _, cp := range out.CommonPrefixes {
			if cp.Prefix == nil {
				continue
			}
			name := (*cp.Prefix)[len(prefix):]
			name = name[:len(name)-len(delim)]
			games = append(games, name)
		}
		if out.IsTruncated == nil || !*out.IsTruncated {
			break
		}
		token = out.NextContinuationToken
	}
	return games, nil
}

func (b *Backend) HealthCheck(ctx context.Context) bool {
	cctx, cancel := b.ctx(ctx)
	defer cancel()
	_, err := b.client.HeadBucket(cctx, &s3.HeadBucketInput{Bucket: &b.bucket})
	return err == nil
}
