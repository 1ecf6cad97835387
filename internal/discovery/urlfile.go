package discovery

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/samber/lo"

	"github.com/Specoptor/trendyol/internal/harvest"
)

// ReadURLList decodes a JSON array of URLs into deduplicated work items.
func ReadURLList(r io.Reader) ([]harvest.WorkItem, error) {
	var urls []string
	if err := json.NewDecoder(r).Decode(&urls); err != nil {
		return nil, fmt.Errorf("decode url list: %w", err)
	}
	items := harvest.Dedupe(harvest.ItemsFromURLs(urls))
	for i := range items {
		items[i].Source = "file"
	}
	if len(items) == 0 {
		return nil, harvest.ErrNoWorkItems
	}
	return items, nil
}

// LoadURLFile reads a persisted URL list from path.
func LoadURLFile(path string) ([]harvest.WorkItem, error) {
	// #nosec G304 -- operator-supplied input path.
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open url file: %w", err)
	}
	defer func() { _ = f.Close() }()
	return ReadURLList(f)
}

// EncodeURLList renders items as the JSON array ReadURLList accepts.
func EncodeURLList(items []harvest.WorkItem) ([]byte, error) {
	urls := lo.Map(items, func(it harvest.WorkItem, _ int) string { return it.URL })
	data, err := json.MarshalIndent(urls, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal url list: %w", err)
	}
	return append(data, '\n'), nil
}
