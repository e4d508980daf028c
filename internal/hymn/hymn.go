// Package hymn defines the data structures for hymnal catalog entries.
package hymn

import (
	"fmt"
	"regexp"
	"strings"
)

// Verse is a single stanza of a hymn.
type Verse struct {
	Text string `json:"text"`
}

// Hymn represents a catalog entry with its lyrics and optional audio file.
type Hymn struct {
	ID         int     `json:"id"`
	Name       string  `json:"name"`
	Category   string  `json:"category"`
	CategoryID int     `json:"category_id"`
	Verses     []Verse `json:"verses"`
	FileName   string  `json:"file_name,omitempty"` // Display name of the recording; empty when there is none
}

// Ref is the read-only view of a hymn that the audio subsystem needs.
type Ref struct {
	ID           int
	FileBaseName string
}

// HasAudio reports whether the referenced hymn has an associated recording.
func (r Ref) HasAudio() bool {
	return r.FileBaseName != ""
}

// Ref returns the audio reference for the hymn.
func (h *Hymn) Ref() Ref {
	return Ref{ID: h.ID, FileBaseName: h.FileName}
}

// HasAudio reports whether the hymn has an associated recording.
func (h *Hymn) HasAudio() bool {
	return h.FileName != ""
}

// Number returns the zero-padded three digit hymn number, e.g. "012".
// Identifiers above 999 are returned unpadded.
func Number(id int) string {
	return fmt.Sprintf("%03d", id)
}

var (
	disallowedChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-']`)
	repeatedSpaces  = regexp.MustCompile(`\s+`)
	spacedDash      = regexp.MustCompile(`\s*-\s*`)
)

// SanitizeName strips characters that are not allowed in recording file names
// and normalizes spaces and dashes.
func SanitizeName(name string) string {
	name = disallowedChars.ReplaceAllString(name, "")
	name = repeatedSpaces.ReplaceAllString(name, " ")
	name = spacedDash.ReplaceAllString(name, " – ")
	return strings.TrimSpace(name)
}

// FileName returns the display file name of the recording for a hymn,
// e.g. "012 – Holy Holy Holy.mp3".
func FileName(id int, name string) string {
	return fmt.Sprintf("%s – %s.mp3", Number(id), SanitizeName(name))
}

// VerseLines returns the verses numbered for display, one per element.
func (h *Hymn) VerseLines() []string {
	lines := make([]string, 0, len(h.Verses))
	for i, v := range h.Verses {
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, v.Text))
	}
	return lines
}
