package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "books/b-1/scene-3-image.png", ObjectKey("b-1", 3, "image", "png"))
	assert.Equal(t, "books/b-1/scene-10-voice.mp3", ObjectKey("b-1", 10, "voice", ".mp3"))
}

func TestGCSStore_PublicURL(t *testing.T) {
	store := newGCSStoreWithClient(nil, GCSOptions{Bucket: "finlit-assets"})
	assert.Equal(t, "https://storage.googleapis.com/finlit-assets/books/b/scene-1-image.png",
		store.PublicURL("books/b/scene-1-image.png"))

	cdn := newGCSStoreWithClient(nil, GCSOptions{Bucket: "finlit-assets", PublicBaseURL: "https://cdn.example.com/"})
	assert.Equal(t, "https://cdn.example.com/books/b/scene-1-image.png", cdn.PublicURL("books/b/scene-1-image.png"))
}

func TestDataURIStore(t *testing.T) {
	url, err := DataURIStore{}.Upload(context.Background(), "ignored", "image/png", []byte("png"))
	require.NoError(t, err)
	assert.Equal(t, "data:image/png;base64,cG5n", url)
}

func TestNewGCSStore_RequiresBucket(t *testing.T) {
	_, err := NewGCSStore(context.Background(), GCSOptions{})
	assert.Error(t, err)
}
