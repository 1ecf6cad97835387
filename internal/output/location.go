package output

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"google.golang.org/api/option"

	"github.com/Specoptor/trendyol/internal/harvest"
	"github.com/Specoptor/trendyol/internal/storage/gcs"
	"github.com/Specoptor/trendyol/internal/storage/local"
)

// Location is a resolved artifact destination.
type Location struct {
	Store harvest.BlobStore
	// Path is the object path relative to Store.
	Path  string
	close func() error
}

// Close releases any client opened by Resolve.
func (l *Location) Close() error {
	if l == nil || l.close == nil {
		return nil
	}
	return l.close()
}

// Resolve maps an output target to a blob store. gs://bucket/object targets
// use Cloud Storage; anything else is a local file path.
func Resolve(ctx context.Context, target string, opts ...option.ClientOption) (*Location, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return nil, fmt.Errorf("output target is required")
	}
	if strings.HasPrefix(target, gcs.Scheme) {
		bucket, object, err := gcs.ParseURI(target)
		if err != nil {
			return nil, err
		}
		client, err := gcs.NewClient(ctx, opts...)
		if err != nil {
			return nil, err
		}
		store, err := gcs.New(client, gcs.Config{Bucket: bucket})
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		return &Location{Store: store, Path: object, close: client.Close}, nil
	}

	abs, err := filepath.Abs(target)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", target, err)
	}
	store, err := local.New(local.Config{BaseDir: filepath.Dir(abs)})
	if err != nil {
		return nil, fmt.Errorf("open output directory: %w", err)
	}
	return &Location{Store: store, Path: filepath.Base(abs)}, nil
}
