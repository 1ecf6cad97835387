// Package normalize maps raw extraction output onto the flat product record.
package normalize

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/Specoptor/trendyol/internal/harvest"
)

const reservedDescriptionKey = "description"

// Field names reported when a value cannot be found.
const (
	FieldProductID     = "product_id"
	FieldBrandAndTitle = "brand_and_title"
	FieldName          = "name"
	FieldBrand         = "brand"
	FieldPrice         = "price"
	FieldDescription   = "description"
	FieldImages        = "images"
	FieldAttributes    = "attributes"
	FieldInStock       = "in_stock"
	FieldBarcode       = "barcode"
	FieldSize          = "size"
)

// Normalizer converts RawRecords into ProductRecords. It never fails: fields
// that are absent or fault on access are left empty and reported.
type Normalizer struct {
	selectors Selectors
	logger    *zap.Logger
}

// New builds a Normalizer. Empty selectors fall back to DefaultSelectors.
func New(selectors Selectors, logger *zap.Logger) *Normalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Normalizer{
		selectors: selectors.withDefaults(),
		logger:    logger,
	}
}

// Normalize implements harvest.Normalizer.
func (n *Normalizer) Normalize(raw harvest.RawRecord, item harvest.WorkItem) (harvest.ProductRecord, []string) {
	rec := harvest.ProductRecord{SourceURL: item.URL}
	fs := &fieldSet{url: item.URL, logger: n.logger}
	switch {
	case raw.IsDocument():
		n.fromDocument(raw.Document, &rec, fs)
	case raw.Payload != nil:
		n.fromPayload(raw.Payload, &rec, fs)
	}
	if rec.ProductID == "" {
		if id, ok := harvest.ProductID(item.URL); ok {
			rec.ProductID = id
		}
	}
	return rec, fs.missing
}

func (n *Normalizer) fromPayload(p map[string]any, rec *harvest.ProductRecord, fs *fieldSet) {
	fs.try(FieldProductID, func() bool {
		rec.ProductID, _ = scalar(p["id"])
		return rec.ProductID != ""
	})
	fs.try(FieldName, func() bool {
		rec.Name = str(p, "name")
		return rec.Name != ""
	})
	brand := object(p, "brand")
	fs.try(FieldBrand, func() bool {
		rec.Brand = str(brand, "name")
		return rec.Brand != ""
	})
	fs.try(FieldDescription, func() bool {
		rec.Description = str(brand, "description")
		if rec.Description == "" {
			rec.Description = joinDescriptions(list(p, "contentDescriptions"))
		}
		return rec.Description != ""
	})
	fs.try(FieldImages, func() bool {
		images := lo.FilterMap(list(p, "images"), func(v any, _ int) (string, bool) {
			s, ok := v.(string)
			return strings.TrimSpace(s), ok && strings.TrimSpace(s) != ""
		})
		rec.Images = lo.Uniq(images)
		return len(rec.Images) > 0
	})
	fs.try(FieldAttributes, func() bool {
		rec.Attributes = attributesFromList(list(p, "attributes"))
		return len(rec.Attributes) > 0
	})

	inStock, hasStockFlag := p["inStock"].(bool)
	fs.try(FieldInStock, func() bool {
		if hasStockFlag {
			rec.InStock = lo.ToPtr(inStock)
		}
		return hasStockFlag
	})
	variants := list(p, "allVariants")
	if !inStock || len(variants) == 0 {
		return
	}
	variant, _ := variants[0].(map[string]any)
	fs.try(FieldBarcode, func() bool {
		rec.Barcode, _ = scalar(variant["barcode"])
		return rec.Barcode != ""
	})
	fs.try(FieldPrice, func() bool {
		rec.Price = priceOf(variant["price"])
		return rec.Price != ""
	})
	fs.try(FieldSize, func() bool {
		for _, key := range []string{"value", "size"} {
			if s, ok := scalar(variant[key]); ok && s != "" {
				rec.Size = s
				return true
			}
		}
		return false
	})
}

func (n *Normalizer) fromDocument(doc *goquery.Document, rec *harvest.ProductRecord, fs *fieldSet) {
	sel := n.selectors
	fs.try(FieldBrandAndTitle, func() bool {
		rec.BrandAndTitle = text(doc.Find(sel.BrandAndTitle).First())
		return rec.BrandAndTitle != ""
	})
	fs.try(FieldPrice, func() bool {
		rec.Price = text(doc.Find(sel.Price).First())
		return rec.Price != ""
	})
	fs.try(FieldAttributes, func() bool {
		attrs := map[string]string{}
		doc.Find(sel.AttributeItem).Each(func(_ int, li *goquery.Selection) {
			key, value, ok := attributePair(li)
			if !ok || strings.EqualFold(key, reservedDescriptionKey) {
				return
			}
			attrs[key] = value
		})
		if len(attrs) > 0 {
			rec.Attributes = attrs
		}
		return len(attrs) > 0
	})
	fs.try(FieldImages, func() bool {
		var images []string
		if src, ok := doc.Find(sel.MainImage).First().Attr("src"); ok {
			images = append(images, strings.TrimSpace(src))
		}
		doc.Find(sel.GalleryImage).Each(func(_ int, img *goquery.Selection) {
			if src, ok := img.Attr("src"); ok {
				images = append(images, strings.TrimSpace(src))
			}
		})
		rec.Images = lo.Uniq(lo.Compact(images))
		return len(rec.Images) > 0
	})
	fs.try(FieldDescription, func() bool {
		node := doc.Find(sel.Description).First()
		items := node.Find("li")
		if items.Length() == 0 {
			rec.Description = text(node)
			return rec.Description != ""
		}
		lines := make([]string, 0, items.Length())
		items.Each(func(_ int, li *goquery.Selection) {
			if t := text(li); t != "" {
				lines = append(lines, t)
			}
		})
		rec.Description = strings.Join(lines, "\n")
		return rec.Description != ""
	})
}

// fieldSet runs each field extraction in isolation and records misses.
type fieldSet struct {
	url     string
	logger  *zap.Logger
	missing []string
}

func (f *fieldSet) try(name string, extract func() bool) {
	found := false
	func() {
		defer func() {
			if r := recover(); r != nil {
				f.logger.Debug("field extraction faulted",
					zap.String("url", f.url),
					zap.String("field", name),
					zap.String("panic", fmt.Sprint(r)),
				)
				found = false
			}
		}()
		found = extract()
	}()
	if !found {
		f.missing = append(f.missing, name)
	}
}

func attributePair(li *goquery.Selection) (string, string, bool) {
	spans := li.ChildrenFiltered("span")
	if spans.Length() >= 2 {
		key := text(spans.Eq(0))
		value := text(spans.Eq(1))
		return key, value, key != ""
	}
	raw := strings.TrimSpace(li.Text())
	key, value, ok := strings.Cut(raw, "\n")
	if !ok {
		return "", "", false
	}
	key = strings.TrimSpace(key)
	return key, strings.TrimSpace(value), key != ""
}

func attributesFromList(entries []any) map[string]string {
	if len(entries) == 0 {
		return nil
	}
	attrs := make(map[string]string, len(entries))
	for _, e := range entries {
		m, ok := e.(map[string]any)
		if !ok {
			continue
		}
		key := nameOf(m["key"])
		if key == "" || strings.EqualFold(key, reservedDescriptionKey) {
			continue
		}
		attrs[key] = nameOf(m["value"])
	}
	if len(attrs) == 0 {
		return nil
	}
	return attrs
}

// nameOf reads either a bare scalar or an object carrying a "name" field.
func nameOf(v any) string {
	if m, ok := v.(map[string]any); ok {
		s, _ := scalar(m["name"])
		return s
	}
	s, _ := scalar(v)
	return s
}

func joinDescriptions(entries []any) string {
	lines := lo.FilterMap(entries, func(e any, _ int) (string, bool) {
		m, ok := e.(map[string]any)
		if !ok {
			return "", false
		}
		s := str(m, "description")
		return s, s != ""
	})
	return strings.Join(lines, "\n")
}

func text(s *goquery.Selection) string {
	return strings.TrimSpace(s.Text())
}
