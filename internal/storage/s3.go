package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/google/uuid"
)

// S3Config points at any S3-compatible object store.
type S3Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	// PublicBaseURL is prepended to the object key to form the returned
	// URL, e.g. https://bucket.object.example.com
	PublicBaseURL string
}

// S3Uploader stores artifacts in an S3 bucket under {folder}/{uuid}-{name}.
type S3Uploader struct {
	client *s3.S3
	cfg    S3Config
}

func NewS3Uploader(cfg S3Config) (*S3Uploader, error) {
	sess, err := session.NewSession(&aws.Config{
		Region:           aws.String(cfg.Region),
		Endpoint:         aws.String(cfg.Endpoint),
		S3ForcePathStyle: aws.Bool(true),
		Credentials:      credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, ""),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 session: %w", err)
	}
	return &S3Uploader{client: s3.New(sess), cfg: cfg}, nil
}

func (u *S3Uploader) Upload(ctx context.Context, data []byte, meta UploadMeta, actorID uint) (StoredObject, error) {
	key := objectKey(meta)
	_, err := u.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.cfg.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(meta.MimeType),
		Metadata: map[string]*string{
			"uploaded-by": aws.String(fmt.Sprintf("%d", actorID)),
		},
	})
	if err != nil {
		return StoredObject{}, fmt.Errorf("upload %s to s3: %w", meta.Filename, err)
	}
	return StoredObject{
		Key: key,
		URL: strings.TrimSuffix(u.cfg.PublicBaseURL, "/") + "/" + key,
	}, nil
}

func objectKey(meta UploadMeta) string {
	folder := strings.Trim(meta.Folder, "/")
	if folder == "" {
		folder = "documents"
	}
	return fmt.Sprintf("%s/%s-%s", folder, uuid.NewString(), meta.Filename)
}
