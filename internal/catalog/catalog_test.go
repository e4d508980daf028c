package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/glebovdev/hymnal-cli/internal/hymn"
)

const testCatalogJSON = `[
  {"id": 1, "name": "Praise to the Lord", "category": "Worship", "category_id": 1, "verses": [{"text": "Praise to the Lord, the Almighty"}], "file_name": "001 – Praise to the Lord.mp3"},
  {"id": 7, "name": "Silent Hymn", "category": "Worship", "category_id": 1, "verses": []},
  {"id": 12, "name": "Holy, Holy, Holy", "category": "Trinity", "category_id": 3, "verses": [{"text": "Holy, holy, holy!"}], "file_name": "012 – Holy Holy Holy.mp3"},
  {"id": 21, "name": "Hidden Hymn", "category": "Uncategorized", "category_id": 5, "verses": []},
  {"id": 120, "name": "Appendix Hymn", "category": "Appendix", "category_id": 63, "verses": []}
]`

func loadTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := Decode(strings.NewReader(testCatalogJSON))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	return c
}

func TestDecode(t *testing.T) {
	c := loadTestCatalog(t)

	if c.Len() != 5 {
		t.Errorf("Len() = %d, want 5", c.Len())
	}

	h, ok := c.Hymn(12)
	if !ok {
		t.Fatal("Hymn(12) not found")
	}
	if h.Name != "Holy, Holy, Holy" {
		t.Errorf("Hymn(12).Name = %q", h.Name)
	}
	if !h.HasAudio() {
		t.Error("Hymn(12) should have audio")
	}

	h7, ok := c.Hymn(7)
	if !ok {
		t.Fatal("Hymn(7) not found")
	}
	if h7.HasAudio() {
		t.Error("Hymn(7) should not have audio")
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"invalid json", "not json"},
		{"empty array", "[]"},
		{"zero id", `[{"id": 0, "name": "x"}]`},
		{"duplicate id", `[{"id": 3, "name": "a"}, {"id": 3, "name": "b"}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode(strings.NewReader(tt.input)); err == nil {
				t.Errorf("Decode(%q) should return error", tt.input)
			}
		})
	}
}

func TestDecodeEmptyCatalog(t *testing.T) {
	_, err := Decode(strings.NewReader("[]"))
	if !errors.Is(err, ErrEmptyCatalog) {
		t.Errorf("Decode([]) error = %v, want ErrEmptyCatalog", err)
	}
}

func TestHymnNotFound(t *testing.T) {
	c := loadTestCatalog(t)

	if _, ok := c.Hymn(999); ok {
		t.Error("Hymn(999) should not be found")
	}
	if _, ok := c.Ref(999); ok {
		t.Error("Ref(999) should not be found")
	}
}

func TestAllReturnsCopy(t *testing.T) {
	c := loadTestCatalog(t)

	all := c.All()
	all[0].Name = "Modified"

	h, _ := c.Hymn(1)
	if h.Name != "Praise to the Lord" {
		t.Error("All() should return a copy; catalog was modified")
	}
}

func TestNewCopiesInput(t *testing.T) {
	hymns := []hymn.Hymn{{ID: 1, Name: "One"}}
	c, err := New(hymns)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	hymns[0].Name = "Changed"
	if h, _ := c.Hymn(1); h.Name != "One" {
		t.Error("New() should not retain the caller's slice")
	}
}

func TestFilter(t *testing.T) {
	c := loadTestCatalog(t)

	tests := []struct {
		name     string
		query    string
		expected []int
	}{
		{"empty query lists visible hymns", "", []int{1, 7, 12}},
		{"name case-insensitive", "holy", []int{12}},
		{"id substring", "1", []int{1, 12}},
		{"exact id", "12", []int{12}},
		{"hidden category excluded", "Hidden", []int{}},
		{"high category id excluded", "Appendix", []int{}},
		{"no match", "zzz", []int{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Filter(c.All(), tt.query)
			if len(result) != len(tt.expected) {
				t.Fatalf("Filter(%q) returned %d hymns, want %d", tt.query, len(result), len(tt.expected))
			}
			for i, id := range tt.expected {
				if result[i].ID != id {
					t.Errorf("Filter(%q)[%d].ID = %d, want %d", tt.query, i, result[i].ID, id)
				}
			}
		})
	}
}

func TestSearchAppendsFuzzyMatches(t *testing.T) {
	c := loadTestCatalog(t)

	result := c.Search("hly")
	if len(result) == 0 {
		t.Fatal("Search(\"hly\") should return fuzzy matches")
	}
	if result[0].ID != 12 {
		t.Errorf("Search(\"hly\")[0].ID = %d, want 12", result[0].ID)
	}

	for _, h := range result {
		if h.ID == 21 {
			t.Error("Search() should not return hidden hymns")
		}
	}
}

func TestSearchExactFirstWithoutDuplicates(t *testing.T) {
	c := loadTestCatalog(t)

	result := c.Search("Holy")
	seen := make(map[int]int)
	for _, h := range result {
		seen[h.ID]++
	}
	if seen[12] != 1 {
		t.Errorf("hymn 12 appears %d times, want 1", seen[12])
	}
	if result[0].ID != 12 {
		t.Errorf("first result = %d, want 12", result[0].ID)
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	c := loadTestCatalog(t)

	if got := len(c.Search("   ")); got != 3 {
		t.Errorf("Search(blank) returned %d hymns, want 3", got)
	}
}

func TestWithFileNames(t *testing.T) {
	c := loadTestCatalog(t)

	annotated := c.WithFileNames()
	h, _ := annotated.Hymn(7)
	if h.FileName != "007 – Silent Hymn.mp3" {
		t.Errorf("FileName = %q, want %q", h.FileName, "007 – Silent Hymn.mp3")
	}

	original, _ := c.Hymn(7)
	if original.FileName != "" {
		t.Error("WithFileNames() should not modify the original catalog")
	}
}

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "hymns.json")

	c := loadTestCatalog(t).WithFileNames()
	if err := c.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Len() != c.Len() {
		t.Errorf("Load().Len() = %d, want %d", loaded.Len(), c.Len())
	}

	h, _ := loaded.Hymn(12)
	if h.FileName != "012 – Holy Holy Holy.mp3" {
		t.Errorf("loaded FileName = %q", h.FileName)
	}

	entries, err := os.ReadDir(tmpDir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("Load() of missing file should return error")
	}
}
