// Package catalog provides the read-only hymn catalog loaded at startup.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/glebovdev/hymnal-cli/internal/hymn"
	"github.com/rs/zerolog/log"
	"github.com/sahilm/fuzzy"
)

const (
	// HiddenCategory marks hymns that are never listed.
	HiddenCategory = "Uncategorized"
	// MaxListedCategoryID is the highest category shown in listings.
	MaxListedCategoryID = 62
)

var ErrEmptyCatalog = errors.New("catalog contains no hymns")

// Catalog is an ordered, immutable list of hymns.
type Catalog struct {
	hymns []hymn.Hymn
	byID  map[int]int
}

// New builds a catalog from hymns, preserving their order.
func New(hymns []hymn.Hymn) (*Catalog, error) {
	byID := make(map[int]int, len(hymns))
	for i, h := range hymns {
		if h.ID < 1 {
			return nil, fmt.Errorf("hymn at position %d has invalid id %d", i, h.ID)
		}
		if _, dup := byID[h.ID]; dup {
			return nil, fmt.Errorf("duplicate hymn id %d", h.ID)
		}
		byID[h.ID] = i
	}

	stored := make([]hymn.Hymn, len(hymns))
	copy(stored, hymns)

	return &Catalog{hymns: stored, byID: byID}, nil
}

// Decode reads a JSON hymn array.
func Decode(r io.Reader) (*Catalog, error) {
	var hymns []hymn.Hymn
	if err := json.NewDecoder(r).Decode(&hymns); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if len(hymns) == 0 {
		return nil, ErrEmptyCatalog
	}
	return New(hymns)
}

// Load reads the catalog file at path.
func Load(path string) (*Catalog, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	defer file.Close()

	c, err := Decode(file)
	if err != nil {
		return nil, err
	}

	log.Debug().Str("file", path).Int("count", c.Len()).Msg("Catalog loaded")
	return c, nil
}

// Save writes the catalog as indented JSON atomically using temp file + rename.
func (c *Catalog) Save(path string) error {
	data, err := json.MarshalIndent(c.hymns, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal catalog: %w", err)
	}

	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, ".hymns-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	defer func() {
		if tmpPath != "" {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename catalog file: %w", err)
	}

	tmpPath = ""
	return nil
}

// WithFileNames returns a copy of the catalog where every hymn carries its
// canonical recording file name.
func (c *Catalog) WithFileNames() *Catalog {
	hymns := c.All()
	for i := range hymns {
		hymns[i].FileName = hymn.FileName(hymns[i].ID, hymns[i].Name)
	}
	return &Catalog{hymns: hymns, byID: c.byID}
}

func (c *Catalog) Len() int {
	return len(c.hymns)
}

// All returns a copy of every hymn in catalog order.
func (c *Catalog) All() []hymn.Hymn {
	result := make([]hymn.Hymn, len(c.hymns))
	copy(result, c.hymns)
	return result
}

// Hymn returns the hymn with the given id.
func (c *Catalog) Hymn(id int) (hymn.Hymn, bool) {
	i, ok := c.byID[id]
	if !ok {
		return hymn.Hymn{}, false
	}
	return c.hymns[i], true
}

// Ref returns the audio reference of the hymn with the given id.
func (c *Catalog) Ref(id int) (hymn.Ref, bool) {
	h, ok := c.Hymn(id)
	if !ok {
		return hymn.Ref{}, false
	}
	return h.Ref(), true
}

// Listed returns the hymns shown in listings, in catalog order.
func (c *Catalog) Listed() []hymn.Hymn {
	return Filter(c.hymns, "")
}

// Filter returns the listed hymns whose name contains query (case-insensitive)
// or whose id contains query. An empty query matches every listed hymn.
func Filter(hymns []hymn.Hymn, query string) []hymn.Hymn {
	lowerQuery := strings.ToLower(query)

	result := make([]hymn.Hymn, 0, len(hymns))
	for _, h := range hymns {
		if !isListed(h) {
			continue
		}
		if strings.Contains(strings.ToLower(h.Name), lowerQuery) ||
			strings.Contains(strconv.Itoa(h.ID), query) {
			result = append(result, h)
		}
	}
	return result
}

// Search returns the Filter matches followed by fuzzy name matches that
// Filter did not already include, best score first.
func (c *Catalog) Search(query string) []hymn.Hymn {
	query = strings.TrimSpace(query)
	exact := Filter(c.hymns, query)
	if query == "" {
		return exact
	}

	seen := make(map[int]bool, len(exact))
	for _, h := range exact {
		seen[h.ID] = true
	}

	listed := c.Listed()
	names := make([]string, len(listed))
	for i, h := range listed {
		names[i] = h.Name
	}

	for _, match := range fuzzy.Find(query, names) {
		h := listed[match.Index]
		if seen[h.ID] {
			continue
		}
		seen[h.ID] = true
		exact = append(exact, h)
	}

	return exact
}

func isListed(h hymn.Hymn) bool {
	return h.Category != HiddenCategory && h.CategoryID <= MaxListedCategoryID
}
