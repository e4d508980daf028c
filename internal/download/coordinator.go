// Package download makes hymn recordings available locally, sharing one
// transfer between all concurrent requests for the same recording.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/glebovdev/hymnal-cli/internal/api"
	"github.com/glebovdev/hymnal-cli/internal/cache"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// ErrDownloadFailed matches every *Error.
var ErrDownloadFailed = errors.New("download failed")

// Error is returned to every waiter of a failed transfer.
type Error struct {
	Key    cache.Key
	URL    string
	Reason string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("download of %s failed: %s", e.Key, e.Reason)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return target == ErrDownloadFailed
}

// Status is the lifecycle stage of a Task.
type Status int

const (
	StatusPending Status = iota
	StatusInFlight
	StatusSucceeded
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "PENDING"
	case StatusInFlight:
		return "IN_FLIGHT"
	case StatusSucceeded:
		return "SUCCEEDED"
	case StatusFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Task describes the transfer currently registered for a key.
type Task struct {
	Key     cache.Key
	URL     string
	Status  Status
	Waiters int
}

// Progress reports bytes received for a transfer. Total is -1 when unknown.
type Progress struct {
	Key      cache.Key
	Received int64
	Total    int64
}

// Fetcher starts an HTTP transfer.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*api.Body, error)
}

// Store is the local recording store.
type Store interface {
	Exists(key cache.Key) bool
	PathFor(key cache.Key) string
	Commit(key cache.Key, r io.Reader) (cache.Entry, error)
}

// Coordinator ensures at most one transfer per key is in flight. A process
// must use a single Coordinator per Store.
type Coordinator struct {
	store   Store
	fetcher Fetcher
	metrics *Metrics

	group singleflight.Group

	mu         sync.Mutex
	tasks      map[cache.Key]*Task
	onProgress func(Progress)
}

// NewCoordinator creates a Coordinator. metrics may be nil.
func NewCoordinator(store Store, fetcher Fetcher, metrics *Metrics) *Coordinator {
	return &Coordinator{
		store:   store,
		fetcher: fetcher,
		metrics: metrics,
		tasks:   make(map[cache.Key]*Task),
	}
}

// OnProgress registers a callback invoked from the transfer goroutine as bytes arrive.
func (c *Coordinator) OnProgress(fn func(Progress)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onProgress = fn
}

// Task returns a snapshot of the task registered for key.
func (c *Coordinator) Task(key cache.Key) (Task, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	task, ok := c.tasks[key]
	if !ok {
		return Task{}, false
	}
	return *task, true
}

// EnsureLocal returns the local path of the recording for key, downloading it
// from url on a cache miss. Concurrent callers for the same key share one
// transfer and receive the same result. Canceling ctx stops this caller from
// waiting but does not abort the shared transfer. Failures are not retried.
func (c *Coordinator) EnsureLocal(ctx context.Context, key cache.Key, url string) (string, error) {
	if c.store.Exists(key) {
		c.metrics.cacheHit()
		log.Debug().Str("key", string(key)).Msg("Recording found in cache")
		return c.store.PathFor(key), nil
	}

	task, results := c.join(ctx, key, url)

	select {
	case res := <-results:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		c.leave(task)
		return "", ctx.Err()
	}
}

func (c *Coordinator) join(ctx context.Context, key cache.Key, url string) (*Task, <-chan singleflight.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	task, ok := c.tasks[key]
	if ok {
		c.metrics.joinedWaiter()
		log.Debug().Str("key", string(key)).Int("waiters", task.Waiters+1).Msg("Joining in-flight download")
	} else {
		// A settled flight may still be registered in the group; start fresh.
		c.group.Forget(string(key))
		task = &Task{Key: key, URL: url, Status: StatusPending}
		c.tasks[key] = task
	}
	task.Waiters++

	transferCtx := context.WithoutCancel(ctx)
	results := c.group.DoChan(string(key), func() (any, error) {
		return c.transfer(transferCtx, task)
	})

	return task, results
}

func (c *Coordinator) leave(task *Task) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if task.Waiters > 0 {
		task.Waiters--
	}
}

func (c *Coordinator) transfer(ctx context.Context, task *Task) (string, error) {
	c.mu.Lock()
	task.Status = StatusInFlight
	c.mu.Unlock()

	path, err := c.download(ctx, task.Key, task.URL)

	c.mu.Lock()
	if err != nil {
		task.Status = StatusFailed
	} else {
		task.Status = StatusSucceeded
	}
	if c.tasks[task.Key] == task {
		delete(c.tasks, task.Key)
	}
	c.mu.Unlock()

	return path, err
}

func (c *Coordinator) download(ctx context.Context, key cache.Key, url string) (string, error) {
	// A previous flight may have committed after this caller's cache check.
	if c.store.Exists(key) {
		c.metrics.cacheHit()
		return c.store.PathFor(key), nil
	}

	log.Debug().Str("key", string(key)).Str("url", url).Msg("Downloading recording")

	body, err := c.fetcher.Fetch(ctx, url)
	if err != nil {
		c.metrics.transfer(false)
		log.Warn().Err(err).Str("key", string(key)).Msg("Download failed")
		return "", &Error{Key: key, URL: url, Reason: err.Error(), Err: err}
	}
	defer body.Close()

	c.mu.Lock()
	onProgress := c.onProgress
	c.mu.Unlock()

	var reader io.Reader = body
	if onProgress != nil {
		reader = io.TeeReader(body, &progressWriter{key: key, total: body.Size, onUpdate: onProgress})
	}

	entry, err := c.store.Commit(key, reader)
	if err != nil {
		c.metrics.transfer(false)
		log.Warn().Err(err).Str("key", string(key)).Msg("Storing recording failed")
		return "", &Error{Key: key, URL: url, Reason: err.Error(), Err: err}
	}

	c.metrics.transfer(true)
	log.Debug().Str("key", string(key)).Str("file", entry.LocalPath).Msg("Recording downloaded")
	return entry.LocalPath, nil
}

type progressWriter struct {
	key      cache.Key
	total    int64
	written  int64
	onUpdate func(Progress)
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	pw.written += int64(len(p))
	pw.onUpdate(Progress{Key: pw.key, Received: pw.written, Total: pw.total})
	return len(p), nil
}

// Request names one recording to prefetch.
type Request struct {
	Key cache.Key
	URL string
}

// Result is the outcome of one prefetched recording.
type Result struct {
	Request
	Path string
	Err  error
}

// Prefetch ensures every requested recording is local, running at most limit
// transfers at once. One failure does not stop the others.
func (c *Coordinator) Prefetch(ctx context.Context, requests []Request, limit int) []Result {
	if limit < 1 {
		limit = 1
	}

	results := make([]Result, len(requests))

	var g errgroup.Group
	g.SetLimit(limit)

	for i, req := range requests {
		g.Go(func() error {
			path, err := c.EnsureLocal(ctx, req.Key, req.URL)
			results[i] = Result{Request: req, Path: path, Err: err}
			return nil
		})
	}

	_ = g.Wait()
	return results
}
