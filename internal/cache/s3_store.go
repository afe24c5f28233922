package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/sirupsen/logrus"

	pkgerrors "github.com/inferloop/modelops/pkg/errors"
	"github.com/inferloop/modelops/pkg/models"
)

// S3StoreConfig holds configuration for the S3 artifact store
type S3StoreConfig struct {
	Region          string        `json:"region" mapstructure:"region"`
	Bucket          string        `json:"bucket" mapstructure:"bucket"`
	AccessKeyID     string        `json:"access_key_id" mapstructure:"access_key_id"`
	SecretAccessKey string        `json:"secret_access_key" mapstructure:"secret_access_key"`
	SessionToken    string        `json:"session_token,omitempty" mapstructure:"session_token"`
	Endpoint        string        `json:"endpoint,omitempty" mapstructure:"endpoint"`
	ForcePathStyle  bool          `json:"force_path_style" mapstructure:"force_path_style"`
	DisableSSL      bool          `json:"disable_ssl" mapstructure:"disable_ssl"`
	Prefix          string        `json:"prefix" mapstructure:"prefix"`
	Timeout         time.Duration `json:"timeout" mapstructure:"timeout"`
	MaxRetries      int           `json:"max_retries" mapstructure:"max_retries"`
}

// S3ArtifactStore persists artifact records as JSON objects in S3, one
// object per model id under a configured key prefix
type S3ArtifactStore struct {
	config     *S3StoreConfig
	s3Client   *s3.S3
	uploader   *s3manager.Uploader
	downloader *s3manager.Downloader
	logger     *logrus.Logger
	mu         sync.Mutex
	closed     bool
}

// NewS3ArtifactStore creates an S3-backed artifact store
func NewS3ArtifactStore(config *S3StoreConfig, logger *logrus.Logger) (*S3ArtifactStore, error) {
	if config == nil {
		return nil, pkgerrors.NewStorageError(pkgerrors.CodeInvalidConfig, "S3 config cannot be nil")
	}
	if config.Bucket == "" {
		return nil, pkgerrors.NewStorageError(pkgerrors.CodeInvalidConfig, "S3 bucket is required")
	}

	if logger == nil {
		logger = logrus.New()
	}

	return &S3ArtifactStore{
		config: config,
		logger: logger,
	}, nil
}

// Connect establishes the S3 session
func (ss *S3ArtifactStore) Connect(ctx context.Context) error {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if ss.s3Client != nil {
		return nil
	}

	awsConfig := &aws.Config{
		Region:     aws.String(ss.config.Region),
		MaxRetries: aws.Int(ss.config.MaxRetries),
	}

	if ss.config.AccessKeyID != "" && ss.config.SecretAccessKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(
			ss.config.AccessKeyID,
			ss.config.SecretAccessKey,
			ss.config.SessionToken,
		)
	}

	// Custom endpoint supports S3-compatible object stores
	if ss.config.Endpoint != "" {
		awsConfig.Endpoint = aws.String(ss.config.Endpoint)
		awsConfig.S3ForcePathStyle = aws.Bool(ss.config.ForcePathStyle)
	}

	if ss.config.DisableSSL {
		awsConfig.DisableSSL = aws.Bool(true)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return pkgerrors.WrapError(err, pkgerrors.ErrorTypeStorage,
			pkgerrors.CodeConnectionFailed, "failed to create AWS session")
	}

	ss.s3Client = s3.New(sess)
	ss.uploader = s3manager.NewUploader(sess)
	ss.downloader = s3manager.NewDownloader(sess)

	ss.logger.WithFields(logrus.Fields{
		"bucket": ss.config.Bucket,
		"region": ss.config.Region,
		"prefix": ss.config.Prefix,
	}).Info("Connected to S3 artifact store")

	return nil
}

// Save persists a model artifact record
func (ss *S3ArtifactStore) Save(ctx context.Context, model *models.CachedModel) error {
	if err := ss.ensureConnected(); err != nil {
		return err
	}

	record := artifactRecord{
		Format:        recordFormat,
		FormatVersion: recordFormatVersion,
		WrittenAt:     model.Metadata.LastAccessed,
		Model:         model,
	}

	data, err := json.Marshal(&record)
	if err != nil {
		return pkgerrors.WrapError(err, pkgerrors.ErrorTypeStorage,
			pkgerrors.CodeWriteFailed, "failed to encode artifact record")
	}

	_, err = ss.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(ss.config.Bucket),
		Key:         aws.String(ss.objectKey(model.ID)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return pkgerrors.WrapError(err, pkgerrors.ErrorTypeStorage,
			pkgerrors.CodeWriteFailed, "failed to upload artifact record to S3")
	}

	return nil
}

// Load retrieves a model artifact record by id
func (ss *S3ArtifactStore) Load(ctx context.Context, modelID string) (*models.CachedModel, error) {
	if err := ss.ensureConnected(); err != nil {
		return nil, err
	}

	buf := aws.NewWriteAtBuffer([]byte{})
	_, err := ss.downloader.DownloadWithContext(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(ss.config.Bucket),
		Key:    aws.String(ss.objectKey(modelID)),
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok && aerr.Code() == s3.ErrCodeNoSuchKey {
			return nil, pkgerrors.ErrModelNotFound
		}
		return nil, pkgerrors.WrapError(err, pkgerrors.ErrorTypeStorage,
			pkgerrors.CodeReadFailed, "failed to download artifact record from S3")
	}

	var record artifactRecord
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		return nil, pkgerrors.WrapError(err, pkgerrors.ErrorTypeStorage,
			pkgerrors.CodeRecordCorrupted, "artifact record corrupted")
	}
	if record.Model == nil || record.Format != recordFormat {
		return nil, pkgerrors.NewStorageError(pkgerrors.CodeRecordCorrupted,
			fmt.Sprintf("unexpected artifact record format %q", record.Format))
	}

	return record.Model, nil
}

// Delete removes a record; missing objects are a no-op
func (ss *S3ArtifactStore) Delete(ctx context.Context, modelID string) error {
	if err := ss.ensureConnected(); err != nil {
		return err
	}

	_, err := ss.s3Client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(ss.config.Bucket),
		Key:    aws.String(ss.objectKey(modelID)),
	})
	if err != nil {
		return pkgerrors.WrapError(err, pkgerrors.ErrorTypeStorage,
			pkgerrors.CodeWriteFailed, "failed to delete artifact record from S3")
	}
	return nil
}

// List returns the ids of all persisted artifacts
func (ss *S3ArtifactStore) List(ctx context.Context) ([]string, error) {
	if err := ss.ensureConnected(); err != nil {
		return nil, err
	}

	prefix := ss.objectKey("")
	var ids []string

	err := ss.s3Client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(ss.config.Bucket),
		Prefix: aws.String(prefix),
	}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, object := range page.Contents {
			key := aws.StringValue(object.Key)
			name := path.Base(key)
			if ext := path.Ext(name); ext == ".json" {
				ids = append(ids, name[:len(name)-len(ext)])
			}
		}
		return true
	})
	if err != nil {
		return nil, pkgerrors.WrapError(err, pkgerrors.ErrorTypeStorage,
			pkgerrors.CodeReadFailed, "failed to list artifact records in S3")
	}

	return ids, nil
}

// Close marks the store closed; the AWS session needs no explicit teardown
func (ss *S3ArtifactStore) Close() error {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	ss.closed = true
	return nil
}

func (ss *S3ArtifactStore) ensureConnected() error {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if ss.closed {
		return pkgerrors.ErrCacheClosed
	}
	if ss.s3Client == nil {
		return pkgerrors.ErrStorageConnectionFailed
	}
	return nil
}

func (ss *S3ArtifactStore) objectKey(modelID string) string {
	key := path.Join("artifacts", modelID)
	if modelID != "" {
		key += ".json"
	} else {
		key += "/"
	}
	if ss.config.Prefix != "" {
		return path.Join(ss.config.Prefix, key)
	}
	return key
}
