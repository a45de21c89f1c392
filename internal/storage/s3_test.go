package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	objects map[string][]byte
	types   map[string]string
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Key)] = data
	f.types[aws.ToString(in.Key)] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

// 1x1 transparent PNG
const pixel = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAQAAAC1HAwCAAAAC0lEQVR42mNkYAAAAAYAAjCB0C8AAAAASUVORK5CYII="

func TestUploadImage(t *testing.T) {
	fake := newFakeS3()
	st := NewImageStorage(fake, "pulsepoint-media", "https://cdn.example.com/")

	png, err := base64.StdEncoding.DecodeString(pixel)
	require.NoError(t, err)

	key, err := st.UploadImage(context.Background(), "thumbnails", bytes.NewReader(png))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "thumbnails/"))
	assert.True(t, strings.HasSuffix(key, ".png"))
	assert.Equal(t, png, fake.objects[key])
	assert.Equal(t, "image/png", fake.types[key])
	assert.Equal(t, "https://cdn.example.com/"+key, st.PublicURL(key))

	require.NoError(t, st.DeleteImage(context.Background(), key))
	assert.Empty(t, fake.objects)
}

func TestUploadImageRejectsNonImages(t *testing.T) {
	st := NewImageStorage(newFakeS3(), "pulsepoint-media", "")

	_, err := st.UploadImage(context.Background(), "avatars", strings.NewReader("<html><script>x</script></html>"))
	assert.ErrorIs(t, err, ErrNotAnImage)

	_, err = st.UploadImage(context.Background(), "avatars", bytes.NewReader(make([]byte, MaxImageBytes+10)))
	assert.ErrorIs(t, err, ErrImageTooLarge)
}

func TestDefaultPublicURL(t *testing.T) {
	st := NewImageStorage(newFakeS3(), "pulsepoint-media", "")
	assert.Equal(t, "https://pulsepoint-media.s3.amazonaws.com/avatars/a.png", st.PublicURL("avatars/a.png"))
}
