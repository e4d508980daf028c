package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/glebovdev/hymnal-cli/internal/api"
	"github.com/glebovdev/hymnal-cli/internal/asset"
	"github.com/glebovdev/hymnal-cli/internal/cache"
	"github.com/glebovdev/hymnal-cli/internal/catalog"
	"github.com/glebovdev/hymnal-cli/internal/download"
	"github.com/glebovdev/hymnal-cli/internal/playback"
)

const testCatalog = `[
  {"id": 7, "name": "Silent Hymn", "category": "Praise", "category_id": 1, "verses": [{"text": "No recording"}]},
  {"id": 12, "name": "Holy, Holy, Holy", "category": "Praise", "category_id": 1, "verses": [{"text": "Holy"}], "file_name": "012 – Holy Holy Holy.mp3"},
  {"id": 13, "name": "Amazing Grace", "category": "Grace", "category_id": 2, "verses": [{"text": "Amazing"}], "file_name": "013 – Amazing Grace.mp3"}
]`

const testAudio = "ID3 fake mp3 payload"

// syncBuffer is a bytes.Buffer safe for concurrent writers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type testEnv struct {
	catalogPath string
	cacheDir    string
	server      *httptest.Server
}

// newTestEnv writes a catalog and a config file pointing at a local audio
// server under a temporary HOME.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	home := t.TempDir()
	t.Setenv("HOME", home)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/hymns/012.mp3":
			w.Header().Set("Content-Type", "audio/mpeg")
			w.Write([]byte(testAudio))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)

	configDir := filepath.Join(home, ".config", "hymnal")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	configData := "audio_base_url: " + server.URL + "/hymns\n"
	if err := os.WriteFile(filepath.Join(configDir, "config.yml"), []byte(configData), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	catalogPath := filepath.Join(t.TempDir(), "hymns.json")
	if err := os.WriteFile(catalogPath, []byte(testCatalog), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	return &testEnv{
		catalogPath: catalogPath,
		cacheDir:    t.TempDir(),
		server:      server,
	}
}

func (env *testEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	app := &Application{}
	cmd := app.createRootCommand(context.Background())

	var out bytes.Buffer
	var errOut syncBuffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append(args, "--catalog", env.catalogPath, "--cache-dir", env.cacheDir))

	err := cmd.Execute()
	return out.String(), err
}

func TestParseHymnIDs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    []int
		wantErr bool
	}{
		{name: "single", args: []string{"12"}, want: []int{12}},
		{name: "several args", args: []string{"12", "7"}, want: []int{12, 7}},
		{name: "comma separated", args: []string{"1,2, 3"}, want: []int{1, 2, 3}},
		{name: "duplicates dropped", args: []string{"5", "5,6"}, want: []int{5, 6}},
		{name: "not a number", args: []string{"abc"}, wantErr: true},
		{name: "zero", args: []string{"0"}, wantErr: true},
		{name: "negative", args: []string{"-4"}, wantErr: true},
		{name: "only commas", args: []string{",,"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseHymnIDs(tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseHymnIDs(%v) error = %v, wantErr %v", tt.args, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if len(got) != len(tt.want) {
				t.Fatalf("parseHymnIDs(%v) = %v, want %v", tt.args, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("parseHymnIDs(%v) = %v, want %v", tt.args, got, tt.want)
					break
				}
			}
		})
	}
}

func TestSearchCommand(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "search", "grace")
	if err != nil {
		t.Fatalf("search error = %v", err)
	}
	if !strings.Contains(out, "♪ 013  Amazing Grace  [Grace]") {
		t.Errorf("search output = %q, want Amazing Grace line", out)
	}
	if strings.Contains(out, "Silent Hymn") {
		t.Errorf("search output = %q, should not list Silent Hymn", out)
	}

	out, err = env.run(t, "search", "zzzzzz")
	if err != nil {
		t.Fatalf("search error = %v", err)
	}
	if !strings.Contains(out, "No hymns found.") {
		t.Errorf("search output = %q, want no matches message", out)
	}
}

func TestMissingCatalog(t *testing.T) {
	env := newTestEnv(t)
	env.catalogPath = filepath.Join(t.TempDir(), "missing.json")

	if _, err := env.run(t, "search", "grace"); err == nil {
		t.Error("search with missing catalog should fail")
	}
}

func TestFetchCommand(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "fetch", "12")
	if err != nil {
		t.Fatalf("fetch error = %v, output %q", err, out)
	}

	path := filepath.Join(env.cacheDir, cache.AudioSubdir, "012.mp3")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("cached recording missing: %v", err)
	}
	if string(data) != testAudio {
		t.Errorf("cached data = %q, want %q", data, testAudio)
	}
	if !strings.Contains(out, "ok    012") {
		t.Errorf("fetch output = %q, want ok line", out)
	}
}

func TestFetchCommandReportsFailures(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "fetch", "7,12,13", "-j", "2")
	if !errors.Is(err, errFetchIncomplete) {
		t.Fatalf("fetch error = %v, want errFetchIncomplete", err)
	}
	if !strings.Contains(err.Error(), "2 of 3") {
		t.Errorf("fetch error = %q, want failure count", err)
	}

	for _, want := range []string{"skip  007", "ok    012", "fail  013"} {
		if !strings.Contains(out, want) {
			t.Errorf("fetch output = %q, missing %q", out, want)
		}
	}
}

func TestPlayCommandRejectsInvalidNumber(t *testing.T) {
	env := newTestEnv(t)

	if _, err := env.run(t, "play", "twelve"); err == nil {
		t.Error("play with invalid number should fail")
	}
}

func TestAnnotateCommand(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "annotate")
	if err != nil {
		t.Fatalf("annotate error = %v", err)
	}
	if !strings.Contains(out, "Annotated 3 hymns") {
		t.Errorf("annotate output = %q", out)
	}

	cat, err := catalog.Load(env.catalogPath)
	if err != nil {
		t.Fatalf("catalog.Load() error = %v", err)
	}
	h, ok := cat.Hymn(7)
	if !ok {
		t.Fatal("hymn 7 missing after annotate")
	}
	if h.FileName != "007 – Silent Hymn.mp3" {
		t.Errorf("FileName = %q, want %q", h.FileName, "007 – Silent Hymn.mp3")
	}
}

func TestVersionFlag(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "--version")
	if err != nil {
		t.Fatalf("--version error = %v", err)
	}
	if !strings.Contains(out, "Hymnal CLI v") {
		t.Errorf("--version output = %q", out)
	}
}

// scriptedEngine finishes every track right away when finish is set.
type scriptedEngine struct {
	finish bool
}

func (e *scriptedEngine) Play(path string, onDone func(error)) error {
	if e.finish {
		go onDone(nil)
	}
	return nil
}

func (e *scriptedEngine) Stop() {}

func newTestController(t *testing.T, env *testEnv, engine playback.Engine) (*catalog.Catalog, *playback.Controller) {
	t.Helper()

	cat, err := catalog.Load(env.catalogPath)
	if err != nil {
		t.Fatalf("catalog.Load() error = %v", err)
	}
	resolver, err := asset.NewResolver(env.server.URL+"/hymns", cat)
	if err != nil {
		t.Fatalf("NewResolver() error = %v", err)
	}
	store, err := cache.NewStore(env.cacheDir)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	coord := download.NewCoordinator(store, api.NewAudioClient(5*time.Second), nil)

	return cat, playback.NewController(resolver, coord, engine)
}

func TestPlayUntilDoneWaitsForTrackEnd(t *testing.T) {
	env := newTestEnv(t)
	cat, controller := newTestController(t, env, &scriptedEngine{finish: true})

	var out syncBuffer
	if err := playUntilDone(context.Background(), &out, cat, controller, 12); err != nil {
		t.Fatalf("playUntilDone() error = %v", err)
	}

	got := out.String()
	for _, want := range []string{
		"RESOLVING   012 Holy, Holy, Holy",
		"DOWNLOADING 012 Holy, Holy, Holy",
		"STOPPED     012 Holy, Holy, Holy",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output = %q, missing %q", got, want)
		}
	}
}

func TestPlayUntilDoneUnresolvable(t *testing.T) {
	env := newTestEnv(t)
	cat, controller := newTestController(t, env, &scriptedEngine{})

	var out syncBuffer
	err := playUntilDone(context.Background(), &out, cat, controller, 7)
	if !errors.Is(err, asset.ErrUnresolvable) {
		t.Fatalf("playUntilDone() error = %v, want ErrUnresolvable", err)
	}
	if !strings.Contains(out.String(), "FAILED      007 Silent Hymn: ") {
		t.Errorf("output = %q, want failure line", out.String())
	}
}

func TestPlayUntilDoneDownloadFailure(t *testing.T) {
	env := newTestEnv(t)
	cat, controller := newTestController(t, env, &scriptedEngine{})

	var out syncBuffer
	err := playUntilDone(context.Background(), &out, cat, controller, 13)
	if !errors.Is(err, download.ErrDownloadFailed) {
		t.Fatalf("playUntilDone() error = %v, want ErrDownloadFailed", err)
	}
}

func TestPlayUntilDoneStopsOnCancel(t *testing.T) {
	env := newTestEnv(t)
	cat, controller := newTestController(t, env, &scriptedEngine{})

	ctx, cancel := context.WithCancel(context.Background())
	controller.Subscribe(func(s playback.Session) {
		if s.Phase == playback.Playing {
			cancel()
		}
	})

	var out syncBuffer
	if err := playUntilDone(ctx, &out, cat, controller, 12); err != nil {
		t.Fatalf("playUntilDone() error = %v", err)
	}
	if got := controller.Session().Phase; got != playback.Stopped {
		t.Errorf("Phase = %v, want STOPPED", got)
	}
}

func TestDescribeSession(t *testing.T) {
	env := newTestEnv(t)
	cat, err := catalog.Load(env.catalogPath)
	if err != nil {
		t.Fatalf("catalog.Load() error = %v", err)
	}

	tests := []struct {
		session playback.Session
		want    string
	}{
		{playback.Session{HymnID: 12, Phase: playback.Playing}, "PLAYING     012 Holy, Holy, Holy"},
		{playback.Session{HymnID: 4000, Phase: playback.Failed, Err: errors.New("boom")}, "FAILED      4000: boom"},
		{playback.Session{HymnID: 13, Phase: playback.Stopped, Err: errors.New("ignored")}, "STOPPED     013 Amazing Grace"},
	}

	for _, tt := range tests {
		if got := describeSession(cat, tt.session); got != tt.want {
			t.Errorf("describeSession(%+v) = %q, want %q", tt.session, got, tt.want)
		}
	}
}

func TestFitWidth(t *testing.T) {
	tests := []struct {
		line  string
		width int
		want  string
	}{
		{"♪ 013  Amazing Grace", 0, "♪ 013  Amazing Grace"},
		{"♪ 013  Amazing Grace", 40, "♪ 013  Amazing Grace"},
		{"♪ 013  Amazing Grace", 20, "♪ 013  Amazing Grace"},
		{"♪ 013  Amazing Grace", 10, "♪ 013  Am…"},
		{"♪ 013", 1, "…"},
	}

	for _, tt := range tests {
		if got := fitWidth(tt.line, tt.width); got != tt.want {
			t.Errorf("fitWidth(%q, %d) = %q, want %q", tt.line, tt.width, got, tt.want)
		}
	}
}

func TestTerminalWidthNotTerminal(t *testing.T) {
	var buf bytes.Buffer
	if got := terminalWidth(&buf); got != 0 {
		t.Errorf("terminalWidth(buffer) = %d, want 0", got)
	}

	f, err := os.CreateTemp(t.TempDir(), "out")
	if err != nil {
		t.Fatalf("CreateTemp() error = %v", err)
	}
	defer f.Close()
	if got := terminalWidth(f); got != 0 {
		t.Errorf("terminalWidth(file) = %d, want 0", got)
	}
}
