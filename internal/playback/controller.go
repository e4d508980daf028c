// Package playback drives a single hymn recording from resolution through
// download to audible playback.
package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/glebovdev/hymnal-cli/internal/asset"
	"github.com/glebovdev/hymnal-cli/internal/cache"
	"github.com/rs/zerolog/log"
)

// ErrPlaybackEngine matches every failure reported by the audio engine.
var ErrPlaybackEngine = errors.New("playback engine failed")

// EngineError wraps a failure reported by the audio engine.
type EngineError struct {
	Path string
	Err  error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("playback of %s failed: %v", e.Path, e.Err)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

func (e *EngineError) Is(target error) bool {
	return target == ErrPlaybackEngine
}

// Phase is the stage of the current playback request.
type Phase int

const (
	Idle Phase = iota
	Resolving
	Downloading
	Ready
	Playing
	Stopped
	Failed
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "IDLE"
	case Resolving:
		return "RESOLVING"
	case Downloading:
		return "DOWNLOADING"
	case Ready:
		return "READY"
	case Playing:
		return "PLAYING"
	case Stopped:
		return "STOPPED"
	case Failed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Busy reports whether a request is being prepared.
func (p Phase) Busy() bool {
	return p == Resolving || p == Downloading || p == Ready
}

// Session is a snapshot of the controller state. HymnID is 0 when no hymn was requested.
type Session struct {
	HymnID     int
	Phase      Phase
	Generation uint64
	LocalPath  string
	Err        error
}

// Resolver maps a hymn to its recording.
type Resolver interface {
	Resolve(hymnID int) (asset.Asset, error)
}

// Downloader makes a recording available on local storage.
type Downloader interface {
	EnsureLocal(ctx context.Context, key cache.Key, url string) (string, error)
}

// Engine renders a local recording. onDone is invoked once when rendering ends
// on its own, never after Stop or a later Play.
type Engine interface {
	Play(path string, onDone func(error)) error
	Stop()
}

// Controller owns the playback session. Every Play and Stop starts a new
// generation; work belonging to an older generation is discarded when it
// completes.
type Controller struct {
	resolver   Resolver
	downloader Downloader
	engine     Engine

	mu          sync.Mutex
	session     Session
	listeners   map[int]func(Session)
	nextID      int
	pending     []Session
	dispatching bool

	engineMu sync.Mutex
}

// NewController returns an idle controller.
func NewController(resolver Resolver, downloader Downloader, engine Engine) *Controller {
	return &Controller{
		resolver:   resolver,
		downloader: downloader,
		engine:     engine,
		listeners:  make(map[int]func(Session)),
	}
}

// Session returns the current session.
func (c *Controller) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Subscribe registers fn for every session change. Changes are delivered in
// order, one at a time, and never while the controller is locked.
func (c *Controller) Subscribe(fn func(Session)) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID
	c.nextID++
	c.listeners[id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners, id)
	}
}

// Play requests playback of hymnID, superseding any earlier request. It blocks
// until playback starts or fails and returns the failure, or nil when
// playback started or a later Play or Stop took over. Canceling ctx abandons
// the request and leaves the session Stopped.
func (c *Controller) Play(ctx context.Context, hymnID int) error {
	return c.Begin(hymnID)(ctx)
}

// Begin supersedes any earlier request and returns the rest of the work for
// hymnID, which behaves like Play. Callers that must order requests without
// blocking call Begin in order and run the returned functions concurrently.
func (c *Controller) Begin(hymnID int) func(ctx context.Context) error {
	gen := c.begin(hymnID)
	return func(ctx context.Context) error {
		return c.run(ctx, gen, hymnID)
	}
}

func (c *Controller) run(ctx context.Context, gen uint64, hymnID int) error {
	c.haltEngine(gen)

	a, err := c.resolver.Resolve(hymnID)
	if err != nil {
		return c.fail(gen, err)
	}

	if !c.advance(gen, Resolving, Downloading, "") {
		return nil
	}

	path, err := c.downloader.EnsureLocal(ctx, a.Key, a.URL)
	if err != nil {
		if ctx.Err() != nil {
			c.abandon(gen)
			return nil
		}
		return c.fail(gen, err)
	}

	if !c.advance(gen, Downloading, Ready, path) {
		return nil
	}

	return c.start(gen, path)
}

// Stop halts playback. Any request in progress is abandoned. It does nothing
// when no hymn was ever requested.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.session.Phase == Idle {
		c.mu.Unlock()
		return
	}

	c.session.Generation++
	c.session.Phase = Stopped
	c.session.LocalPath = ""
	c.session.Err = nil
	gen := c.session.Generation
	hymnID := c.session.HymnID
	c.emitLocked()

	c.haltEngine(gen)

	log.Debug().Int("hymn", hymnID).Msg("Playback stopped")
}

func (c *Controller) begin(hymnID int) uint64 {
	c.mu.Lock()
	c.session = Session{
		HymnID:     hymnID,
		Phase:      Resolving,
		Generation: c.session.Generation + 1,
	}
	gen := c.session.Generation
	c.emitLocked()

	log.Debug().Int("hymn", hymnID).Uint64("generation", gen).Msg("Playback requested")
	return gen
}

// advance moves the session from one phase to the next. It reports false when
// gen is no longer current or the session already left from.
func (c *Controller) advance(gen uint64, from, to Phase, path string) bool {
	c.mu.Lock()
	if c.session.Generation != gen || c.session.Phase != from {
		c.mu.Unlock()
		log.Debug().Uint64("generation", gen).Str("phase", to.String()).Msg("Discarding stale transition")
		return false
	}

	c.session.Phase = to
	c.session.LocalPath = path
	c.emitLocked()
	return true
}

// haltEngine stops rendering unless a newer generation already owns the
// engine. The newest Play or Stop always halts it before anything starts.
func (c *Controller) haltEngine(gen uint64) {
	c.engineMu.Lock()
	defer c.engineMu.Unlock()

	if c.Session().Generation != gen {
		return
	}
	c.engine.Stop()
}

// abandon ends a request whose caller gave up waiting.
func (c *Controller) abandon(gen uint64) {
	c.mu.Lock()
	if c.session.Generation != gen {
		c.mu.Unlock()
		return
	}

	c.session.Phase = Stopped
	c.session.LocalPath = ""
	c.session.Err = nil
	hymnID := c.session.HymnID
	c.emitLocked()

	log.Debug().Int("hymn", hymnID).Uint64("generation", gen).Msg("Playback request abandoned")
}

func (c *Controller) fail(gen uint64, err error) error {
	c.mu.Lock()
	if c.session.Generation != gen {
		c.mu.Unlock()
		log.Debug().Err(err).Uint64("generation", gen).Msg("Discarding stale failure")
		return nil
	}

	c.session.Phase = Failed
	c.session.LocalPath = ""
	c.session.Err = err
	hymnID := c.session.HymnID
	c.emitLocked()

	log.Warn().Err(err).Int("hymn", hymnID).Msg("Playback failed")
	return err
}

func (c *Controller) start(gen uint64, path string) error {
	c.engineMu.Lock()

	// A Stop or Play that got in since Ready owns the engine now.
	if c.Session().Generation != gen {
		c.engineMu.Unlock()
		return nil
	}

	err := c.engine.Play(path, func(err error) {
		c.finished(gen, err)
	})
	c.engineMu.Unlock()

	if err != nil {
		return c.fail(gen, &EngineError{Path: path, Err: err})
	}

	c.advance(gen, Ready, Playing, path)
	return nil
}

// finished handles the engine reporting the end of rendering. A very short
// recording may end before the session reaches Playing.
func (c *Controller) finished(gen uint64, err error) {
	c.mu.Lock()
	if c.session.Generation != gen || (c.session.Phase != Playing && c.session.Phase != Ready) {
		c.mu.Unlock()
		return
	}

	if err != nil {
		c.session.Phase = Failed
		c.session.Err = &EngineError{Path: c.session.LocalPath, Err: err}
	} else {
		c.session.Phase = Stopped
	}
	c.session.LocalPath = ""
	c.emitLocked()
}

// emitLocked must be called with c.mu held and releases it. Snapshots are
// queued and drained by whichever caller is already dispatching, so listeners
// run outside c.mu and may call back into the controller.
func (c *Controller) emitLocked() {
	c.pending = append(c.pending, c.session)
	if c.dispatching {
		c.mu.Unlock()
		return
	}
	c.dispatching = true

	for len(c.pending) > 0 {
		batch := c.pending
		c.pending = nil
		listeners := make([]func(Session), 0, len(c.listeners))
		for id := 0; id < c.nextID; id++ {
			if fn, ok := c.listeners[id]; ok {
				listeners = append(listeners, fn)
			}
		}
		c.mu.Unlock()

		for _, snapshot := range batch {
			for _, fn := range listeners {
				fn(snapshot)
			}
		}

		c.mu.Lock()
	}

	c.dispatching = false
	c.mu.Unlock()
}
