package hymn

import (
	"testing"
)

func TestNumber(t *testing.T) {
	tests := []struct {
		id       int
		expected string
	}{
		{1, "001"},
		{7, "007"},
		{12, "012"},
		{100, "100"},
		{695, "695"},
		{1000, "1000"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := Number(tt.id); got != tt.expected {
				t.Errorf("Number(%d) = %q, want %q", tt.id, got, tt.expected)
			}
		})
	}
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"punctuation removed", "Holy, Holy, Holy!", "Holy Holy Holy"},
		{"apostrophe kept", "Don't Forget the Sabbath", "Don't Forget the Sabbath"},
		{"spaces collapsed", "Praise   to  the Lord", "Praise to the Lord"},
		{"dash normalized", "Come, Thou Fount - of Every Blessing", "Come Thou Fount – of Every Blessing"},
		{"tight dash normalized", "Jesus-Lover of My Soul", "Jesus – Lover of My Soul"},
		{"trimmed", "  Amazing Grace  ", "Amazing Grace"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeName(tt.input); got != tt.expected {
				t.Errorf("SanitizeName(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestFileName(t *testing.T) {
	got := FileName(12, "Holy, Holy, Holy")
	want := "012 – Holy Holy Holy.mp3"
	if got != want {
		t.Errorf("FileName() = %q, want %q", got, want)
	}
}

func TestRef(t *testing.T) {
	withAudio := Hymn{ID: 12, Name: "Holy, Holy, Holy", FileName: "012 – Holy Holy Holy.mp3"}
	withoutAudio := Hymn{ID: 7, Name: "Silent Hymn"}

	if ref := withAudio.Ref(); ref.ID != 12 || !ref.HasAudio() {
		t.Errorf("Ref() = %+v, want id 12 with audio", ref)
	}
	if ref := withoutAudio.Ref(); ref.ID != 7 || ref.HasAudio() {
		t.Errorf("Ref() = %+v, want id 7 without audio", ref)
	}
	if withoutAudio.HasAudio() {
		t.Error("HasAudio() should be false when FileName is empty")
	}
}

func TestVerseLines(t *testing.T) {
	h := Hymn{
		ID: 1,
		Verses: []Verse{
			{Text: "Praise God, from whom all blessings flow"},
			{Text: "Praise Him, all creatures here below"},
		},
	}

	lines := h.VerseLines()
	if len(lines) != 2 {
		t.Fatalf("VerseLines() returned %d lines, want 2", len(lines))
	}
	if lines[0] != "1. Praise God, from whom all blessings flow" {
		t.Errorf("lines[0] = %q", lines[0])
	}
	if lines[1] != "2. Praise Him, all creatures here below" {
		t.Errorf("lines[1] = %q", lines[1])
	}

	empty := Hymn{ID: 2}
	if got := empty.VerseLines(); len(got) != 0 {
		t.Errorf("VerseLines() for hymn without verses = %v, want empty", got)
	}
}
