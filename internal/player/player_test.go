package player

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/gopxl/beep/v2"
)

func TestPercentToExponent(t *testing.T) {
	tests := []struct {
		percent  float64
		expected float64
	}{
		{0, MinVolumeDB},
		{100, 0},
		{-10, MinVolumeDB},
		{150, 0},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("percent_%v", tt.percent), func(t *testing.T) {
			result := percentToExponent(tt.percent)
			if result != tt.expected {
				t.Errorf("percentToExponent(%v) = %v, want %v", tt.percent, result, tt.expected)
			}
		})
	}
}

func TestPercentToExponentCurve(t *testing.T) {
	p25 := percentToExponent(25)
	p50 := percentToExponent(50)
	p75 := percentToExponent(75)

	if p25 >= p50 || p50 >= p75 {
		t.Error("Volume curve should be monotonically increasing")
	}

	if p25 <= MinVolumeDB || p75 >= 0 {
		t.Error("Mid-range volumes should be between min and max")
	}
}

func TestPlayerStateString(t *testing.T) {
	tests := []struct {
		state    PlayerState
		expected string
	}{
		{StateIdle, "IDLE"},
		{StatePlaying, "PLAYING"},
		{StatePaused, "PAUSED"},
		{StateError, "ERROR"},
		{PlayerState(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			result := tt.state.String()
			if result != tt.expected {
				t.Errorf("PlayerState(%d).String() = %q, want %q", tt.state, result, tt.expected)
			}
		})
	}
}

func TestNewPlayer(t *testing.T) {
	p := NewPlayer()

	if p.IsPlaying() {
		t.Error("New player should not be playing")
	}
	if p.IsPaused() {
		t.Error("New player should not be paused")
	}
	if p.GetState() != StateIdle {
		t.Errorf("GetState() = %v, want IDLE", p.GetState())
	}
	if elapsed, total := p.Progress(); elapsed != 0 || total != 0 {
		t.Errorf("Progress() = %v, %v, want zero", elapsed, total)
	}
}

func TestStopAndPauseWhenIdle(t *testing.T) {
	p := NewPlayer()

	p.Stop()
	p.TogglePause()

	if p.IsPaused() {
		t.Error("TogglePause without playback should not pause")
	}
}

func TestSetVolumeBeforePlayback(t *testing.T) {
	p := NewPlayer()
	p.SetVolume(40)

	if p.volumePercent != 40 {
		t.Errorf("volumePercent = %d, want 40", p.volumePercent)
	}
}

func TestPlayMissingFile(t *testing.T) {
	p := NewPlayer()

	err := p.Play(filepath.Join(t.TempDir(), "missing.mp3"), nil)
	if err == nil {
		t.Fatal("Play() should fail for a missing file")
	}
	if p.GetState() != StateError {
		t.Errorf("GetState() = %v, want ERROR", p.GetState())
	}
	if p.GetLastError() == "" {
		t.Error("last error should be recorded")
	}
	if p.IsPlaying() {
		t.Error("player should not be playing after a failed start")
	}
}

func TestPlayUndecodableFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "012.mp3")
	if err := os.WriteFile(path, []byte("definitely not audio"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	p := NewPlayer()
	if err := p.Play(path, nil); err == nil {
		t.Fatal("Play() should fail for an undecodable file")
	}
	if p.CurrentPath() != "" {
		t.Errorf("CurrentPath() = %q, want empty", p.CurrentPath())
	}
}

func TestFadeIn(t *testing.T) {
	source := beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		for i := range samples {
			samples[i] = [2]float64{1, 1}
		}
		return len(samples), true
	})

	f := &fadeIn{Streamer: source, remaining: 4, total: 4}
	samples := make([][2]float64, 6)
	f.Stream(samples)

	want := []float64{0, 0.25, 0.5, 0.75, 1, 1}
	for i, w := range want {
		if samples[i][0] != w || samples[i][1] != w {
			t.Errorf("sample %d = %v, want %v", i, samples[i], w)
		}
	}
	if f.remaining != 0 {
		t.Errorf("remaining = %d, want 0", f.remaining)
	}
}
