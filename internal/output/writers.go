// Package output renders a run result into artifacts and hands them to a
// blob store.
package output

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/samber/lo"

	"github.com/Specoptor/trendyol/internal/harvest"
)

// CSVColumns lists the CSV header in output order.
var CSVColumns = []string{
	"source_url",
	"product_id",
	"brand_and_title",
	"name",
	"brand",
	"price",
	"description",
	"images",
	"attributes",
	"in_stock",
	"barcode",
	"size",
}

// JSONWriter persists the full run result as an indented JSON document.
type JSONWriter struct {
	store  harvest.BlobStore
	path   string
	hasher harvest.Hasher

	mu       sync.Mutex
	checksum string
}

// NewJSONWriter returns a writer for path. hasher may be nil.
func NewJSONWriter(store harvest.BlobStore, path string, hasher harvest.Hasher) *JSONWriter {
	return &JSONWriter{store: store, path: path, hasher: hasher}
}

// Name implements harvest.ResultWriter.
func (w *JSONWriter) Name() string { return "json" }

// Write implements harvest.ResultWriter.
func (w *JSONWriter) Write(ctx context.Context, result harvest.RunResult) (string, error) {
	data, err := EncodeResult(result)
	if err != nil {
		return "", err
	}
	if w.hasher != nil {
		sum, err := w.hasher.Hash(data)
		if err != nil {
			return "", fmt.Errorf("hash artifact: %w", err)
		}
		w.mu.Lock()
		w.checksum = sum
		w.mu.Unlock()
	}
	uri, err := w.store.PutObject(ctx, w.path, "application/json", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("put %s: %w", w.path, err)
	}
	return uri, nil
}

// Checksum returns the digest of the last artifact written.
func (w *JSONWriter) Checksum() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.checksum
}

// EncodeResult renders result the way JSONWriter persists it.
func EncodeResult(result harvest.RunResult) ([]byte, error) {
	if result.Entries == nil {
		result.Entries = map[string]harvest.Entry{}
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal run result: %w", err)
	}
	return append(data, '\n'), nil
}

// CSVWriter persists one row per completed record.
type CSVWriter struct {
	store harvest.BlobStore
	path  string
}

// NewCSVWriter returns a writer for path.
func NewCSVWriter(store harvest.BlobStore, path string) *CSVWriter {
	return &CSVWriter{store: store, path: path}
}

// Name implements harvest.ResultWriter.
func (w *CSVWriter) Name() string { return "csv" }

// Write implements harvest.ResultWriter.
func (w *CSVWriter) Write(ctx context.Context, result harvest.RunResult) (string, error) {
	data, err := EncodeCSV(result.Records())
	if err != nil {
		return "", err
	}
	uri, err := w.store.PutObject(ctx, w.path, "text/csv", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("put %s: %w", w.path, err)
	}
	return uri, nil
}

// EncodeCSV renders records with a header row. Missing values are blank,
// images are joined with "|" and attributes are JSON encoded.
func EncodeCSV(records []harvest.ProductRecord) ([]byte, error) {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	if err := cw.Write(CSVColumns); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for _, rec := range records {
		row, err := csvRow(rec)
		if err != nil {
			return nil, err
		}
		if err := cw.Write(row); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

func csvRow(rec harvest.ProductRecord) ([]string, error) {
	attrs := ""
	if len(rec.Attributes) > 0 {
		b, err := json.Marshal(rec.Attributes)
		if err != nil {
			return nil, fmt.Errorf("marshal attributes for %s: %w", rec.SourceURL, err)
		}
		attrs = string(b)
	}
	inStock := ""
	if rec.InStock != nil {
		inStock = strconv.FormatBool(*rec.InStock)
	}
	return []string{
		rec.SourceURL,
		rec.ProductID,
		rec.BrandAndTitle,
		rec.Name,
		rec.Brand,
		rec.Price,
		rec.Description,
		strings.Join(lo.Compact(rec.Images), "|"),
		attrs,
		inStock,
		rec.Barcode,
		rec.Size,
	}, nil
}

// RawEntry is one element of a raw payload dump.
type RawEntry struct {
	Link      string          `json:"link"`
	ProductID string          `json:"product_id"`
	Response  json.RawMessage `json:"response"`
}

// RawWriter persists captured payload bodies as a JSON list.
type RawWriter struct {
	store harvest.BlobStore
	path  string
}

// NewRawWriter returns a writer for path.
func NewRawWriter(store harvest.BlobStore, path string) *RawWriter {
	return &RawWriter{store: store, path: path}
}

// Name implements harvest.ResultWriter.
func (w *RawWriter) Name() string { return "raw" }

// Write implements harvest.ResultWriter.
func (w *RawWriter) Write(ctx context.Context, result harvest.RunResult) (string, error) {
	data, err := json.MarshalIndent(RawEntries(result), "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal raw dump: %w", err)
	}
	uri, err := w.store.PutObject(ctx, w.path, "application/json", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("put %s: %w", w.path, err)
	}
	return uri, nil
}

// RawEntries lists the captured bodies of result ordered by link. Bodies that
// are not valid JSON are skipped.
func RawEntries(result harvest.RunResult) []RawEntry {
	out := make([]RawEntry, 0, len(result.Raw))
	for link, capture := range result.Raw {
		if !json.Valid(capture.Body) {
			continue
		}
		id := capture.ProductID
		if id == "" {
			id, _ = harvest.ProductID(link)
		}
		out = append(out, RawEntry{Link: link, ProductID: id, Response: json.RawMessage(capture.Body)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Link < out[j].Link })
	return out
}
