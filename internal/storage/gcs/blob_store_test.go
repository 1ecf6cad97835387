package gcs

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func TestParseURI(t *testing.T) {
	t.Parallel()

	bucket, object, err := ParseURI("gs://harvest-out/runs/products.json")
	require.NoError(t, err)
	assert.Equal(t, "harvest-out", bucket)
	assert.Equal(t, "runs/products.json", object)

	for _, bad := range []string{"/tmp/out.json", "gs://", "gs://bucket", "gs://bucket/ "} {
		_, _, err := ParseURI(bad)
		assert.Error(t, err, bad)
	}
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	require.Error(t, err)
}

func TestPutObjectUploadsToBucket(t *testing.T) {
	t.Parallel()

	var (
		mu    sync.Mutex
		paths []string
		body  []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		mu.Lock()
		paths = append(paths, r.URL.Path)
		body = append(body, data...)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"bucket":"harvest-out","name":"runs/products.json"}`))
	}))
	defer srv.Close()

	client, err := NewClient(context.Background(),
		option.WithEndpoint(srv.URL+"/storage/v1/"),
		option.WithoutAuthentication(),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	store, err := New(client, Config{Bucket: "harvest-out"})
	require.NoError(t, err)

	uri, err := store.PutObject(context.Background(), "runs/products.json", "application/json",
		bytes.NewReader([]byte(`{"entries":{}}`)))
	require.NoError(t, err)
	assert.Equal(t, "gs://harvest-out/runs/products.json", uri)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, paths)
	assert.True(t, strings.Contains(paths[0], "/b/harvest-out/o"), paths[0])
	assert.Contains(t, string(body), `{"entries":{}}`)
}

func TestPutObjectRequiresPath(t *testing.T) {
	t.Parallel()

	store := &BlobStore{bucket: "b"}
	_, err := store.PutObject(context.Background(), " ", "", bytes.NewReader(nil))
	require.Error(t, err)
}
