package storage

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"

	"camrig/config"
)

// Number of attempts for UploadFile retry loop
const maxUploadAttempts = 3

// R2Storage uploads finished chunk containers to an S3-compatible bucket
// (Cloudflare R2, MinIO, plain S3). Rigs in the field usually sit behind
// constrained uplinks, so multipart parts are uploaded sequentially.
type R2Storage struct {
	config   config.UploadConfig
	uploader *s3manager.Uploader
}

// NewR2Storage creates a new R2Storage instance from the upload config.
func NewR2Storage(cfg config.UploadConfig) (*R2Storage, error) {
	if cfg.Region == "" {
		cfg.Region = "auto"
	}

	sess, err := session.NewSession(&aws.Config{
		Credentials:      credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, ""),
		Endpoint:         aws.String(cfg.Endpoint),
		Region:           aws.String(cfg.Region),
		S3ForcePathStyle: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %v", err)
	}

	uploader := s3manager.NewUploader(sess, func(u *s3manager.Uploader) {
		u.PartSize = 10 * 1024 * 1024 // 10 MB parts
		u.Concurrency = 1             // one connection, limited rig bandwidth
	})

	return &R2Storage{
		config:   cfg,
		uploader: uploader,
	}, nil
}

// UploadFile uploads a local file to remotePath in the bucket, retrying on
// transient failure. Returns the object key.
func (r *R2Storage) UploadFile(localPath, remotePath string) (string, error) {
	contentType := "application/octet-stream"
	switch strings.ToLower(filepath.Ext(localPath)) {
	case ".mp4":
		contentType = "video/mp4"
	case ".csv":
		contentType = "text/csv"
	case ".yaml", ".yml":
		contentType = "application/x-yaml"
	}

	var lastErr error
	for attempt := 1; attempt <= maxUploadAttempts; attempt++ {
		file, err := os.Open(localPath)
		if err != nil {
			return "", fmt.Errorf("failed to open file %s: %v", localPath, err)
		}

		_, err = r.uploader.Upload(&s3manager.UploadInput{
			Bucket:      aws.String(r.config.Bucket),
			Key:         aws.String(remotePath),
			Body:        file,
			ContentType: aws.String(contentType),
		})
		file.Close()

		if err == nil {
			return remotePath, nil
		}
		lastErr = err
		log.Printf("[Storage] Upload attempt %d/%d for %s failed: %v",
			attempt, maxUploadAttempts, localPath, err)
		time.Sleep(time.Duration(attempt) * 5 * time.Second)
	}
	return "", fmt.Errorf("upload of %s failed after %d attempts: %v", localPath, maxUploadAttempts, lastErr)
}
