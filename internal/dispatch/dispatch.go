package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"harvester/internal/feed"
	"harvester/internal/fetch"
	"harvester/internal/ledger"
	"harvester/internal/logging"
	"harvester/internal/sink"
	"harvester/internal/textpost"
)

// Feed is the post source the engine enumerates.
type Feed interface {
	Listing(ctx context.Context, collection string, limit int) ([]feed.PostRecord, error)
	ResolveCrosspost(ctx context.Context, permalink string) (feed.PostRecord, error)
}

// Ledger records which posts completed so future runs skip them.
type Ledger interface {
	HasProcessed(ctx context.Context, collection, postID string) (bool, error)
	RecordPost(ctx context.Context, post ledger.Post) error
	RecordFile(ctx context.Context, collection, postID, filename string) error
	Flush(ctx context.Context) error
}

// Config tunes a run.
type Config struct {
	Concurrency       int
	Limit             int
	CollectionRetries int
	CollectionBackoff time.Duration
	CrosspostRetries  int
	// ProgressEvery logs a progress line every N completed posts when no
	// progress bar is attached. Zero disables it.
	ProgressEvery int
	// DryRun skips ledger writes so a trial pass leaves reruns untouched.
	DryRun bool
}

// Summary reports what one collection pass did.
type Summary struct {
	Collection  string
	Attempted   int
	Stored      int
	Duplicates  int
	Unsupported int
	Failed      int
	Skipped     int
	Elapsed     time.Duration
}

// Engine drives one collection at a time: enumerate posts, skip the already
// processed, dispatch every URL to its fetcher under a concurrency ceiling,
// and record terminal outcomes in the ledger.
type Engine struct {
	feed     Feed
	registry *fetch.Registry
	store    Ledger
	cfg      Config
	logger   *slog.Logger

	progressOut io.Writer
	sleeper     func(time.Duration)
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithProgress enables a progress bar on the given writer.
func WithProgress(w io.Writer) EngineOption {
	return func(e *Engine) {
		e.progressOut = w
	}
}

// WithSleeper overrides retry sleeps (tests).
func WithSleeper(sleeper func(time.Duration)) EngineOption {
	return func(e *Engine) {
		e.sleeper = sleeper
	}
}

// NewEngine constructs an engine.
func NewEngine(source Feed, registry *fetch.Registry, store Ledger, cfg Config, logger *slog.Logger, opts ...EngineOption) *Engine {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 1000
	}
	if cfg.CollectionRetries <= 0 {
		cfg.CollectionRetries = 3
	}
	if cfg.CrosspostRetries <= 0 {
		cfg.CrosspostRetries = 2
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	engine := &Engine{
		feed:     source,
		registry: registry,
		store:    store,
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "dispatch"),
	}
	for _, opt := range opts {
		opt(engine)
	}
	return engine
}

// RunCollection processes one collection into targetDir. Enumeration
// failures retry the whole pass with fixed backoff, resuming off ledger
// state; per-post failures are counted, not fatal.
func (e *Engine) RunCollection(ctx context.Context, collection, targetDir string) (Summary, error) {
	start := time.Now()
	var lastErr error

	for attempt := 1; attempt <= e.cfg.CollectionRetries; attempt++ {
		summary, err := e.runPass(ctx, collection, targetDir)
		summary.Elapsed = time.Since(start)
		if err == nil {
			return summary, nil
		}
		if ctx.Err() != nil || !errors.Is(err, errEnumeration) {
			return summary, err
		}

		lastErr = err
		e.logger.Warn("collection pass failed, retrying",
			logging.String(logging.FieldCollection, collection),
			logging.Int("attempt", attempt),
			logging.Error(err))
		if attempt < e.cfg.CollectionRetries {
			if sleepErr := e.sleep(ctx, e.cfg.CollectionBackoff); sleepErr != nil {
				return summary, sleepErr
			}
		}
	}
	return Summary{Collection: collection, Elapsed: time.Since(start)},
		fmt.Errorf("collection %s: giving up after %d attempts: %w",
			collection, e.cfg.CollectionRetries, lastErr)
}

// errEnumeration marks failures that warrant a whole-pass retry.
var errEnumeration = errors.New("enumeration failed")

type counters struct {
	attempted   atomic.Int64
	stored      atomic.Int64
	duplicates  atomic.Int64
	unsupported atomic.Int64
	failed      atomic.Int64
	skipped     atomic.Int64
}

func (e *Engine) runPass(ctx context.Context, collection, targetDir string) (Summary, error) {
	records, err := e.feed.Listing(ctx, collection, e.cfg.Limit)
	if err != nil {
		return Summary{Collection: collection}, fmt.Errorf("%w: %v", errEnumeration, err)
	}
	e.logger.Info("collection enumerated",
		logging.String(logging.FieldCollection, collection),
		logging.Int("posts", len(records)))

	bar := e.newProgressBar(collection, len(records))
	passStart := time.Now()
	total := len(records)

	var tally counters
	var completed atomic.Int64
	sem := semaphore.NewWeighted(int64(e.cfg.Concurrency))
	group, groupCtx := errgroup.WithContext(ctx)

	for _, record := range records {
		record := record
		if err := sem.Acquire(groupCtx, 1); err != nil {
			break
		}
		group.Go(func() error {
			defer sem.Release(1)
			e.processPost(groupCtx, record, collection, targetDir, &tally)
			done := completed.Add(1)
			barAdd(bar)
			if bar == nil && e.cfg.ProgressEvery > 0 && done%int64(e.cfg.ProgressEvery) == 0 {
				e.logger.Info("progress",
					logging.String(logging.FieldCollection, collection),
					logging.String("done", fmt.Sprintf("%d/%d (%.0f%%)", done, total,
						float64(done)/float64(total)*100)),
					logging.Duration("elapsed", time.Since(passStart).Round(time.Second)))
			}
			return groupCtx.Err()
		})
	}

	waitErr := group.Wait()
	barFinish(bar)
	if flushErr := e.store.Flush(context.WithoutCancel(ctx)); flushErr != nil {
		e.logger.Error("ledger flush failed", logging.Error(flushErr))
		if waitErr == nil {
			waitErr = flushErr
		}
	}

	return Summary{
		Collection:  collection,
		Attempted:   int(tally.attempted.Load()),
		Stored:      int(tally.stored.Load()),
		Duplicates:  int(tally.duplicates.Load()),
		Unsupported: int(tally.unsupported.Load()),
		Failed:      int(tally.failed.Load()),
		Skipped:     int(tally.skipped.Load()),
	}, waitErr
}

func (e *Engine) processPost(ctx context.Context, post feed.PostRecord, collection, targetDir string, tally *counters) {
	if ctx.Err() != nil {
		return
	}
	done, err := e.store.HasProcessed(ctx, collection, post.ID)
	if err != nil {
		e.logger.Error("ledger lookup failed",
			logging.String(logging.FieldPostID, post.ID), logging.Error(err))
		tally.failed.Add(1)
		return
	}
	if done {
		tally.skipped.Add(1)
		return
	}
	tally.attempted.Add(1)

	resolved := post
	if post.Kind == feed.KindCrosspost {
		parent, err := e.resolveCrosspost(ctx, post.CrosspostOf)
		if err != nil {
			e.logger.Warn("crosspost resolution failed",
				logging.String(logging.FieldPostID, post.ID), logging.Error(err))
			tally.failed.Add(1)
			return
		}
		// Content comes from the parent; the record stays keyed by the
		// crosspost so reruns skip it.
		resolved = parent
		resolved.ID = post.ID
		resolved.Collection = collection
	}

	switch resolved.Kind {
	case feed.KindSelfText:
		e.handleSelfText(ctx, resolved, post, collection, targetDir, tally)
	default:
		// Gallery pages share the post ID as a filename prefix so one
		// gallery's files sort together on disk.
		prefix := ""
		if resolved.Kind == feed.KindGallery {
			prefix = post.ID
		}
		e.handleURLs(ctx, resolved.SourceURLs, post, collection, targetDir, prefix, tally)
	}
}

func (e *Engine) handleSelfText(ctx context.Context, resolved, post feed.PostRecord, collection, targetDir string, tally *counters) {
	result, err := textpost.Write(resolved, targetDir)
	if err != nil {
		e.logger.Error("text post write failed",
			logging.String(logging.FieldPostID, post.ID), logging.Error(err))
		tally.failed.Add(1)
		return
	}
	if result.Skipped {
		tally.duplicates.Add(1)
	} else {
		tally.stored.Add(1)
	}
	e.record(ctx, post, collection, filepath.Base(result.Path), tally)
}

// handleURLs fetches every source URL of one post concurrently. The post is
// recorded only when no URL failed transiently, so a timeout this run gets
// retried next run.
func (e *Engine) handleURLs(ctx context.Context, urls []string, post feed.PostRecord, collection, targetDir, prefix string, tally *counters) {
	if len(urls) == 0 {
		tally.unsupported.Add(1)
		e.record(ctx, post, collection, "", tally)
		return
	}

	type urlResult struct {
		outcome  urlOutcome
		filename string
	}
	results := make([]urlResult, len(urls))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(e.cfg.Concurrency)
	for i, rawURL := range urls {
		i, rawURL := i, rawURL
		group.Go(func() error {
			outcome, filename := e.handleURL(groupCtx, rawURL, post, targetDir, prefix)
			results[i] = urlResult{outcome: outcome, filename: filename}
			return nil
		})
	}
	_ = group.Wait()

	retryable := false
	var filenames []string
	for _, result := range results {
		outcome, filename := result.outcome, result.filename
		switch outcome {
		case outcomeStored:
			tally.stored.Add(1)
			filenames = append(filenames, filename)
		case outcomeDuplicate:
			tally.duplicates.Add(1)
			if filename != "" {
				filenames = append(filenames, filename)
			}
		case outcomeUnsupported:
			tally.unsupported.Add(1)
		case outcomeRetryable:
			retryable = true
		}
	}

	if retryable {
		tally.failed.Add(1)
		return
	}
	e.record(ctx, post, collection, "", tally)
	if e.cfg.DryRun {
		return
	}
	for _, filename := range filenames {
		if err := e.store.RecordFile(ctx, collection, post.ID, filename); err != nil {
			e.logger.Error("record file failed",
				logging.String(logging.FieldPostID, post.ID), logging.Error(err))
		}
	}
}

type urlOutcome int

const (
	outcomeStored urlOutcome = iota
	outcomeDuplicate
	outcomeUnsupported
	outcomeRetryable
)

func (e *Engine) handleURL(ctx context.Context, rawURL string, post feed.PostRecord, targetDir, prefix string) (urlOutcome, string) {
	fetcher, ok := e.registry.Resolve(rawURL)
	if !ok {
		e.logger.Debug("no fetcher for url",
			logging.String("url", rawURL),
			logging.String(logging.FieldPostID, post.ID))
		return outcomeUnsupported, ""
	}

	result, err := fetcher.Fetch(ctx, rawURL, targetDir, prefix)
	switch {
	case err == nil:
		if result.Duplicate {
			return outcomeDuplicate, baseName(result.Path)
		}
		return outcomeStored, baseName(result.Path)
	case fetch.IsNotFound(err):
		// Gone for good; record the post so it is never refetched.
		e.logger.Debug("content gone",
			logging.String("url", rawURL),
			logging.String(logging.FieldPostID, post.ID))
		return outcomeUnsupported, ""
	case errors.Is(err, fetch.ErrUnparseable), errors.Is(err, sink.ErrUnknownType):
		e.logger.Debug("content not usable",
			logging.String("url", rawURL), logging.Error(err))
		return outcomeUnsupported, ""
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return outcomeRetryable, ""
	default:
		e.logger.Warn("fetch failed",
			logging.String("url", rawURL),
			logging.String(logging.FieldPostID, post.ID),
			logging.Error(err))
		return outcomeRetryable, ""
	}
}

func (e *Engine) record(ctx context.Context, post feed.PostRecord, collection, filename string, tally *counters) {
	if e.cfg.DryRun {
		return
	}
	err := e.store.RecordPost(ctx, ledger.Post{
		ID:         post.ID,
		Title:      post.Title,
		Collection: collection,
		CreatedAt:  post.CreatedAt,
	})
	if err != nil {
		e.logger.Error("record post failed",
			logging.String(logging.FieldPostID, post.ID), logging.Error(err))
		tally.failed.Add(1)
		return
	}
	if filename != "" {
		if err := e.store.RecordFile(ctx, collection, post.ID, filename); err != nil {
			e.logger.Error("record file failed",
				logging.String(logging.FieldPostID, post.ID), logging.Error(err))
		}
	}
}

func (e *Engine) resolveCrosspost(ctx context.Context, permalink string) (feed.PostRecord, error) {
	var lastErr error
	for attempt := 0; attempt < e.cfg.CrosspostRetries; attempt++ {
		parent, err := e.feed.ResolveCrosspost(ctx, permalink)
		if err == nil {
			return parent, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		if sleepErr := e.sleep(ctx, e.cfg.CollectionBackoff); sleepErr != nil {
			break
		}
	}
	return feed.PostRecord{}, lastErr
}

func (e *Engine) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	if e.sleeper != nil {
		e.sleeper(delay)
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (e *Engine) newProgressBar(collection string, total int) *progressbar.ProgressBar {
	if e.progressOut == nil || total == 0 {
		return nil
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(e.progressOut),
		progressbar.OptionSetDescription(collection),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionClearOnFinish(),
	)
}

func barAdd(bar *progressbar.ProgressBar) {
	if bar != nil {
		_ = bar.Add(1)
	}
}

func barFinish(bar *progressbar.ProgressBar) {
	if bar != nil {
		_ = bar.Finish()
	}
}

func baseName(path string) string {
	if path == "" {
		return ""
	}
	return filepath.Base(path)
}
