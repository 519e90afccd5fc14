package storage

import (
	"context"
	"net/url"
	"testing"
	"textlens-go/internal/config"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 预签名只在本地计算签名，不会访问 MinIO 服务器。
func TestImageStore_PresignedURL(t *testing.T) {
	client, err := minio.New("127.0.0.1:9000", &minio.Options{
		Creds:  credentials.NewStaticV4("access", "secret", ""),
		Region: "us-east-1",
	})
	require.NoError(t, err)

	store := NewImageStore(client, config.MinIOConfig{BucketName: "textlens-images", PresignExpiryMinute: 10})
	assert.Equal(t, 10*time.Minute, store.presignExpiry)

	raw, err := store.PresignedURL(context.Background(), "chats/1/abc.png")
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "/textlens-images/chats/1/abc.png", u.Path)
	assert.Equal(t, "600", u.Query().Get("X-Amz-Expires"))
}

func TestNewImageStore_DefaultExpiry(t *testing.T) {
	store := NewImageStore(nil, config.MinIOConfig{BucketName: "b"})
	assert.Equal(t, 15*time.Minute, store.presignExpiry)
}
