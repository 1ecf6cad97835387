package harvest

import (
	"time"

	"github.com/PuerkitoBio/goquery"
)

// WorkItem is one unit of harvesting work. URL doubles as the identity key.
type WorkItem struct {
	URL    string `json:"url"`
	Source string `json:"source,omitempty"`
}

// ID returns the identity key of the item.
func (w WorkItem) ID() string {
	return w.URL
}

// RawRecord is the unnormalized output of one extraction call.
// Rendered sessions populate Document and Title, API sessions populate Payload.
type RawRecord struct {
	Document *goquery.Document
	Title    string
	Payload  map[string]any
	Body     []byte
}

// IsDocument reports whether the record carries a parsed DOM.
func (r RawRecord) IsDocument() bool {
	return r.Document != nil
}

// ProductRecord is the flat normalized shape persisted for each product.
type ProductRecord struct {
	SourceURL     string            `json:"source_url"`
	ProductID     string            `json:"product_id,omitempty"`
	BrandAndTitle string            `json:"brand_and_title,omitempty"`
	Name          string            `json:"name,omitempty"`
	Brand         string            `json:"brand,omitempty"`
	Price         string            `json:"price,omitempty"`
	Description   string            `json:"description,omitempty"`
	Images        []string          `json:"images,omitempty"`
	Attributes    map[string]string `json:"attributes,omitempty"`
	InStock       *bool             `json:"in_stock,omitempty"`
	Barcode       string            `json:"barcode,omitempty"`
	Size          string            `json:"size,omitempty"`
}

// Status enumerates terminal outcomes of a WorkItem.
type Status string

const (
	// StatusCompleted marks an item that produced a ProductRecord.
	StatusCompleted Status = "completed"
	// StatusUnavailable marks an item whose product page no longer exists.
	StatusUnavailable Status = "unavailable"
	// StatusFailed marks an item that failed extraction.
	StatusFailed Status = "failed"
	// StatusCanceled marks an item that was never processed because the run was canceled.
	StatusCanceled Status = "canceled"
)

// Entry is the recorded outcome for one WorkItem.
type Entry struct {
	Status     Status         `json:"status"`
	Record     *ProductRecord `json:"record,omitempty"`
	Error      ErrorKind      `json:"error,omitempty"`
	StatusCode int            `json:"status_code,omitempty"`
	Detail     string         `json:"detail,omitempty"`
}

// CompletedEntry wraps a successfully normalized record.
func CompletedEntry(rec ProductRecord) Entry {
	return Entry{Status: StatusCompleted, Record: &rec}
}

// EntryFromError converts an extraction failure into an Entry.
func EntryFromError(err error) Entry {
	kind := KindOf(err)
	entry := Entry{Status: StatusFailed, Error: kind, Detail: err.Error()}
	switch kind {
	case KindItemUnavailable:
		entry.Status = StatusUnavailable
	case KindCanceled:
		entry.Status = StatusCanceled
	}
	if xerr, ok := AsExtractionError(err); ok {
		entry.StatusCode = xerr.StatusCode
	}
	return entry
}

// RunResult aggregates every Entry of one run keyed by WorkItem identity.
type RunResult struct {
	RunID      string           `json:"run_id"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Entries    map[string]Entry `json:"entries"`
	// Raw holds captured payloads keyed by WorkItem identity.
	Raw map[string]RawCapture `json:"-"`
}

// RawCapture is one unparsed content API body and the product id it was
// requested with.
type RawCapture struct {
	ProductID string
	Body      []byte
}

// Counts tallies entries by status.
type Counts struct {
	Total       int `json:"total"`
	Completed   int `json:"completed"`
	Unavailable int `json:"unavailable"`
	Failed      int `json:"failed"`
	Canceled    int `json:"canceled"`
}

// Counts summarizes the entries of the result.
func (r RunResult) Counts() Counts {
	var c Counts
	for _, e := range r.Entries {
		c.Total++
		switch e.Status {
		case StatusCompleted:
			c.Completed++
		case StatusUnavailable:
			c.Unavailable++
		case StatusFailed:
			c.Failed++
		case StatusCanceled:
			c.Canceled++
		}
	}
	return c
}

// Records returns completed records ordered by source URL.
func (r RunResult) Records() []ProductRecord {
	out := make([]ProductRecord, 0, len(r.Entries))
	for _, e := range r.Entries {
		if e.Status == StatusCompleted && e.Record != nil {
			out = append(out, *e.Record)
		}
	}
	sortRecords(out)
	return out
}
