package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/tidwall/gjson"

	"github.com/everstacklabs/pricewatch/internal/num"
)

// Entry is one model from the remote catalog.
type Entry struct {
	ID              string
	PromptPrice     num.Float // catalog-level price per prompt token
	CompletionPrice num.Float // catalog-level price per completion token
	Raw             json.RawMessage
}

// Catalog holds the model list in catalog order plus an id index. It is
// read-only after Parse returns and safe for concurrent readers.
type Catalog struct {
	// Size counts every element of the catalog's data array, including
	// entries dropped for a missing id.
	Size    int
	Entries []Entry
	index   map[string]int
}

// Source returns the raw catalog document.
type Source interface {
	Models(ctx context.Context) (json.RawMessage, error)
}

// LoadError means the catalog could not be obtained. It is fatal to a run.
type LoadError struct {
	Err error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("loading catalog: %v", e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Load fetches and parses the catalog.
func Load(ctx context.Context, src Source) (*Catalog, error) {
	doc, err := src.Models(ctx)
	if err != nil {
		return nil, &LoadError{Err: err}
	}
	cat, err := Parse(doc)
	if err != nil {
		return nil, &LoadError{Err: err}
	}
	slog.Info("catalog loaded", "size", cat.Size, "models", len(cat.Entries))
	return cat, nil
}

// Parse builds a Catalog from a {data: [...]} document. A document that is
// not an object, or has no data array, is an empty catalog. Only malformed
// JSON is an error.
func Parse(doc []byte) (*Catalog, error) {
	if !gjson.ValidBytes(doc) {
		return nil, fmt.Errorf("parsing catalog: invalid JSON")
	}

	cat := &Catalog{index: make(map[string]int)}

	root := gjson.ParseBytes(doc)
	if !root.IsObject() {
		return cat, nil
	}
	data := root.Get("data")
	if !data.IsArray() {
		return cat, nil
	}

	for _, m := range data.Array() {
		cat.Size++

		id := idString(m.Get("id"))
		if id == "" {
			continue
		}
		cat.index[id] = len(cat.Entries)
		cat.Entries = append(cat.Entries, Entry{
			ID:              id,
			PromptPrice:     num.Parse(m.Get("pricing.prompt")),
			CompletionPrice: num.Parse(m.Get("pricing.completion")),
			Raw:             json.RawMessage(m.Raw),
		})
	}

	return cat, nil
}

// idString coerces scalar ids to strings. Anything else has no usable id.
func idString(r gjson.Result) string {
	switch r.Type {
	case gjson.String, gjson.Number:
		return r.String()
	default:
		return ""
	}
}

// Lookup returns the entry for id. When the catalog lists an id more than
// once the last occurrence wins.
func (c *Catalog) Lookup(id string) (Entry, bool) {
	i, ok := c.index[id]
	if !ok {
		return Entry{}, false
	}
	return c.Entries[i], true
}

// ModelIDs returns the ids in catalog order.
func (c *Catalog) ModelIDs() []string {
	ids := make([]string, 0, len(c.Entries))
	for _, e := range c.Entries {
		ids = append(ids, e.ID)
	}
	return ids
}
