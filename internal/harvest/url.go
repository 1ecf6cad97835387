package harvest

import (
	"regexp"
	"slices"
	"strings"
)

var productIDPattern = regexp.MustCompile(`p-(\d+)`)

// ProductID derives the numeric catalog identifier embedded in a product URL.
func ProductID(rawURL string) (string, bool) {
	m := productIDPattern.FindStringSubmatch(rawURL)
	if len(m) < 2 {
		return "", false
	}
	return m[1], true
}

// Dedupe drops repeated URLs keeping the first occurrence.
func Dedupe(items []WorkItem) []WorkItem {
	seen := make(map[string]struct{}, len(items))
	out := make([]WorkItem, 0, len(items))
	for _, it := range items {
		key := strings.TrimSpace(it.URL)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		it.URL = key
		out = append(out, it)
	}
	return out
}

// ItemsFromURLs wraps bare URLs as work items.
func ItemsFromURLs(urls []string) []WorkItem {
	items := make([]WorkItem, 0, len(urls))
	for _, u := range urls {
		items = append(items, WorkItem{URL: u})
	}
	return items
}

func sortRecords(recs []ProductRecord) {
	slices.SortFunc(recs, func(a, b ProductRecord) int {
		return strings.Compare(a.SourceURL, b.SourceURL)
	})
}
