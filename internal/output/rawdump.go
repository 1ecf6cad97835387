package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/samber/lo"
)

// ReadRawDump decodes a raw payload dump. Entries without a link are dropped.
func ReadRawDump(r io.Reader) ([]RawEntry, error) {
	var entries []RawEntry
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode raw dump: %w", err)
	}
	return lo.Filter(entries, func(e RawEntry, _ int) bool {
		return strings.TrimSpace(e.Link) != ""
	}), nil
}

// LoadRawDump reads a raw payload dump from path.
func LoadRawDump(path string) ([]RawEntry, error) {
	// #nosec G304 -- operator-supplied dump path.
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open raw dump: %w", err)
	}
	defer func() { _ = f.Close() }()
	return ReadRawDump(f)
}
