package utils

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
)

var (
	ErrInvalidImage    = errors.New("invalid image")
	ErrStorageDisabled = errors.New("image storage not configured")
)

const mealImagePrefix = "refeicoes"

// ImageUploader stores a meal photo and returns its public URL.
type ImageUploader interface {
	UploadMealImage(ctx context.Context, ownerID uint, data []byte, contentType string) (string, error)
}

type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3Uploader struct {
	client    objectPutter
	bucket    string
	region    string
	publicURL string
}

// NewS3Uploader loads the default AWS credential chain for region.
func NewS3Uploader(ctx context.Context, region, bucket, publicURL string) (*S3Uploader, error) {
	if bucket == "" {
		return nil, ErrStorageDisabled
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS config for S3: %w", err)
	}
	return newS3Uploader(s3.NewFromConfig(cfg), region, bucket, publicURL), nil
}

func newS3Uploader(client objectPutter, region, bucket, publicURL string) *S3Uploader {
	return &S3Uploader{
		client:    client,
		bucket:    bucket,
		region:    region,
		publicURL: strings.TrimRight(publicURL, "/"),
	}
}

func (u *S3Uploader) UploadMealImage(ctx context.Context, ownerID uint, data []byte, contentType string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty body", ErrInvalidImage)
	}
	contentType = strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	if !strings.HasPrefix(contentType, "image/") {
		return "", fmt.Errorf("%w: content type %q", ErrInvalidImage, contentType)
	}

	key := fmt.Sprintf("%s/%d/%s%s", mealImagePrefix, ownerID, uuid.NewString(), extensionFor(contentType))
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		ACL:         s3types.ObjectCannedACLPublicRead,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}
	return u.urlFor(key), nil
}

// urlFor prefers the CDN in front of the bucket.
func (u *S3Uploader) urlFor(key string) string {
	if u.publicURL != "" {
		return u.publicURL + "/" + key
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", u.bucket, u.region, key)
}

// DecodeDataURL splits "data:<mime>;base64,<data>" into bytes and mime type.
func DecodeDataURL(dataURL string) ([]byte, string, error) {
	meta, data, ok := strings.Cut(dataURL, ",")
	if !ok || !strings.HasPrefix(meta, "data:") || !strings.HasSuffix(meta, ";base64") {
		return nil, "", fmt.Errorf("%w: not a base64 data URL", ErrInvalidImage)
	}
	contentType := strings.TrimSuffix(strings.TrimPrefix(meta, "data:"), ";base64")

	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, "", fmt.Errorf("%w: failed to decode image: %v", ErrInvalidImage, err)
	}
	return raw, contentType, nil
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	}
	if exts, _ := mime.ExtensionsByType(contentType); len(exts) > 0 {
		return exts[0]
	}
	// fallback: use subtype
	if _, sub, ok := strings.Cut(contentType, "/"); ok {
		return "." + sub
	}
	return ""
}
