package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"gridlock/pkg/models"
)

// ArchiveStore records finished rounds. Archival is advisory: callers treat
// failures as non-fatal and never surface them as request errors.
type ArchiveStore interface {
	// Archive stores the terminal snapshot and returns a reference URI.
	Archive(ctx context.Context, snap models.Snapshot) (string, error)
	// Retrieve fetches an archived snapshot by reference.
	Retrieve(ctx context.Context, reference string) (models.Snapshot, error)
}

// S3ArchiveStore writes round archives to S3-compatible storage.
type S3ArchiveStore struct {
	client *s3.Client
	bucket string
	prefix string
}

// S3ArchiveConfig holds S3 configuration.
type S3ArchiveConfig struct {
	Bucket          string
	Prefix          string // e.g. "rounds/"
	Region          string
	Endpoint        string // for MinIO/local S3
	AccessKeyID     string
	SecretAccessKey string
}

// NewS3ArchiveStore creates an S3-backed round archive.
func NewS3ArchiveStore(cfg S3ArchiveConfig) (*S3ArchiveStore, error) {
	optFns := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		optFns = append(optFns, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(), optFns...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	clientOpts := []func(*s3.Options){}
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true // required for MinIO
		})
	}

	return &S3ArchiveStore{
		client: s3.NewFromConfig(awsCfg, clientOpts...),
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

// Archive uploads the terminal snapshot as JSON.
func (s *S3ArchiveStore) Archive(ctx context.Context, snap models.Snapshot) (string, error) {
	payload, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	key := s.buildKey(snap.GameID)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload round archive: %w", err)
	}

	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}

// Retrieve fetches an archived snapshot.
func (s *S3ArchiveStore) Retrieve(ctx context.Context, reference string) (models.Snapshot, error) {
	key := s.extractKey(reference)

	output, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("failed to get round archive: %w", err)
	}
	defer output.Body.Close()

	data, err := io.ReadAll(output.Body)
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("failed to read round archive: %w", err)
	}

	var snap models.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return models.Snapshot{}, fmt.Errorf("failed to unmarshal round archive: %w", err)
	}
	return snap, nil
}

func (s *S3ArchiveStore) buildKey(gameID string) string {
	timestamp := time.Now().UTC().Format("2006/01/02/150405.000000000")
	return fmt.Sprintf("%s%s/%s.json", s.prefix, gameID, timestamp)
}

func (s *S3ArchiveStore) extractKey(reference string) string {
	if len(reference) > 5 && reference[:5] == "s3://" {
		parts := reference[5:]
		for i, c := range parts {
			if c == '/' {
				return parts[i+1:]
			}
		}
	}
	return reference
}

// LocalArchiveStore writes round archives to the local filesystem, for
// development and single-node deployments.
type LocalArchiveStore struct {
	basePath string
}

// NewLocalArchiveStore creates a filesystem round archive.
func NewLocalArchiveStore(basePath string) (*LocalArchiveStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}
	return &LocalArchiveStore{basePath: basePath}, nil
}

// Archive writes the terminal snapshot as JSON.
func (l *LocalArchiveStore) Archive(ctx context.Context, snap models.Snapshot) (string, error) {
	payload, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	name := fmt.Sprintf("%s-%d.json", snap.GameID, time.Now().UnixNano())
	path := filepath.Join(l.basePath, name)
	if err := os.WriteFile(path, payload, 0644); err != nil {
		return "", fmt.Errorf("failed to write round archive: %w", err)
	}
	return path, nil
}

// Retrieve reads an archived snapshot back.
func (l *LocalArchiveStore) Retrieve(ctx context.Context, reference string) (models.Snapshot, error) {
	data, err := os.ReadFile(reference)
	if err != nil {
		return models.Snapshot{}, err
	}
	var snap models.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return models.Snapshot{}, fmt.Errorf("failed to unmarshal round archive: %w", err)
	}
	return snap, nil
}
