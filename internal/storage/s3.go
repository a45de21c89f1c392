package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"pulsepoint/internal/utils"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// MaxImageBytes caps blog thumbnails and avatars.
const MaxImageBytes = 5 << 20

var (
	ErrNotAnImage    = errors.New("file is not a supported image")
	ErrImageTooLarge = errors.New("image is too large")
)

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// ImageStorage keeps uploaded images in one S3 bucket under a folder per
// kind, e.g. thumbnails/ or avatars/.
type ImageStorage struct {
	client        S3API
	bucketName    string
	publicBaseURL string
}

func NewImageStorage(client S3API, bucketName, publicBaseURL string) *ImageStorage {
	if publicBaseURL == "" {
		publicBaseURL = fmt.Sprintf("https://%s.s3.amazonaws.com", bucketName)
	}
	return &ImageStorage{
		client:        client,
		bucketName:    bucketName,
		publicBaseURL: strings.TrimSuffix(publicBaseURL, "/"),
	}
}

// UploadImage stores the image under folder and returns its storage key.
// The content type is sniffed from the bytes rather than trusted from the
// client.
func (s *ImageStorage) UploadImage(ctx context.Context, folder string, file io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(file, MaxImageBytes+1))
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	if len(data) > MaxImageBytes {
		return "", ErrImageTooLarge
	}

	contentType := http.DetectContentType(data)
	ext, ok := imageExtensions[contentType]
	if !ok {
		return "", ErrNotAnImage
	}

	key := path.Join(folder, utils.NanoID()+ext)

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucketName),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}

	return key, nil
}

func (s *ImageStorage) DeleteImage(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	})
	return utils.ErrorWrapOrNil(err, "failed to delete "+key)
}

func (s *ImageStorage) PublicURL(key string) string {
	return s.publicBaseURL + "/" + strings.TrimPrefix(key, "/")
}
