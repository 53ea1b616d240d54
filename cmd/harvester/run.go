package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"harvester/internal/config"
	"harvester/internal/dispatch"
	"harvester/internal/env"
	"harvester/internal/feed"
	"harvester/internal/fetch"
	"harvester/internal/ledger"
	"harvester/internal/logging"
	"harvester/internal/report"
	"harvester/internal/sink"
	"harvester/internal/workspace"
)

type runOptions struct {
	limit      int
	refresh    bool
	noOp       bool
	noProgress bool
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run [collection ...]",
		Short: "Fetch new content for the named collections",
		Long: "Enumerates posts for each collection, downloads their content " +
			"into per-collection directories, and records processed posts so " +
			"later runs skip them.\n\n" +
			"Credentials come from the environment (or a .env file):\n" +
			"  " + env.FeedClientID + ", " + env.FeedClientSecret + ",\n" +
			"  " + env.FeedUsername + ", " + env.FeedPassword + "\n" +
			"plus any keys required by enabled fetchers.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return runHarvest(cmd, cfg, args, opts)
		},
	}

	cmd.Flags().IntVar(&opts.limit, "limit", 0, "Maximum posts per collection (0 uses the configured limit)")
	cmd.Flags().BoolVar(&opts.refresh, "refresh", false, "Also re-enumerate collections with existing workspace directories")
	cmd.Flags().BoolVar(&opts.noOp, "no-op", false, "Resolve and hash content but skip the final writes")
	cmd.Flags().BoolVar(&opts.noProgress, "no-progress", false, "Disable the progress bar")
	return cmd
}

func runHarvest(cmd *cobra.Command, cfg *config.Config, args []string, opts runOptions) error {
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return err
	}

	collections, err := resolveCollections(cfg, args, opts.refresh)
	if err != nil {
		return err
	}

	lock := flock.New(filepath.Join(cfg.Paths.MetaDir, "run.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire run lock: %w", err)
	}
	if !locked {
		return errors.New("another harvester run is already in progress")
	}
	defer func() { _ = lock.Unlock() }()

	runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	snk := sink.New(cfg.Paths.TempDir,
		sink.WithMemoryLimit(cfg.Fetch.SpoolMemoryLimit),
		sink.WithNoOp(opts.noOp),
		sink.WithLogger(logger),
	)

	client := fetch.NewClient(time.Duration(cfg.Fetch.RequestTimeout)*time.Second,
		fetch.WithRetryMaxAttempts(cfg.Fetch.RetryAttempts),
		fetch.WithRetryBackoff(
			time.Duration(cfg.Fetch.RetryBaseDelay)*time.Second,
			time.Duration(cfg.Fetch.RetryMaxDelay)*time.Second,
		),
		fetch.WithUserAgent(cfg.Feed.UserAgent),
	)
	defer client.CloseIdle()

	fetchers := []fetch.Fetcher{
		fetch.NewDirect(client, snk),
		fetch.NewClientIDFetcher(client, snk),
		fetch.NewTokenFetcher(client, snk),
	}
	if cfg.Fetch.AllowListURL != "" {
		// Fallback for everything the specific fetchers don't claim.
		fetchers = append(fetchers, fetch.NewGeneric(client, snk, cfg.Fetch.AllowListURL))
	}

	components := map[string]env.Requirer{}
	for _, fetcher := range fetchers {
		if requirer, ok := fetcher.(env.Requirer); ok {
			components[fetcher.Name()] = requirer
		}
	}
	environ, err := env.Ensure(components, env.FeedUsername, env.FeedPassword)
	if err != nil {
		return err
	}

	registry := fetch.NewRegistry()
	for _, fetcher := range fetchers {
		if initializer, ok := fetcher.(fetch.Initializer); ok {
			if err := initializer.Init(runCtx, environ); err != nil {
				return fmt.Errorf("init %s fetcher: %w", fetcher.Name(), err)
			}
		}
		registry.Register(fetcher)
	}
	defer func() {
		for _, fetcher := range fetchers {
			if closer, ok := fetcher.(fetch.Closer); ok {
				_ = closer.Close()
			}
		}
	}()

	store, err := ledger.Open(cfg.Paths.MetaDir,
		ledger.WithCommitEvery(cfg.Fetch.LedgerCommitEvery))
	if err != nil {
		return err
	}
	defer store.Close()

	feedClient := feed.NewClient(
		feed.Config{
			BaseURL:   cfg.Feed.BaseURL,
			AuthURL:   cfg.Feed.AuthURL,
			UserAgent: cfg.Feed.UserAgent,
			PageSize:  cfg.Feed.PageSize,
		},
		feed.Credentials{
			ClientID:     environ.Get(env.FeedClientID),
			ClientSecret: environ.Get(env.FeedClientSecret),
			Username:     environ.Get(env.FeedUsername),
			Password:     environ.Get(env.FeedPassword),
		},
	)

	limit := cfg.Feed.Limit
	if opts.limit > 0 {
		limit = opts.limit
	}
	engineOpts := []dispatch.EngineOption{}
	if !opts.noProgress && isatty.IsTerminal(os.Stdout.Fd()) {
		engineOpts = append(engineOpts, dispatch.WithProgress(cmd.OutOrStdout()))
	}
	engine := dispatch.NewEngine(feedClient, registry, store,
		dispatch.Config{
			Concurrency:       cfg.Fetch.Concurrency,
			Limit:             limit,
			CollectionRetries: cfg.Fetch.CollectionRetries,
			CollectionBackoff: time.Duration(cfg.Fetch.CollectionBackoff) * time.Second,
			ProgressEvery:     cfg.Fetch.ProgressEveryPosts,
			DryRun:            opts.noOp,
		},
		logger, engineOpts...)

	var runErrs []error
	for _, collection := range collections {
		if runCtx.Err() != nil {
			runErrs = append(runErrs, runCtx.Err())
			break
		}
		targetDir, err := workspace.CollectionDir(cfg.Paths.DataDir, collection)
		if err != nil {
			runErrs = append(runErrs, err)
			continue
		}

		summary, err := engine.RunCollection(runCtx, collection, targetDir)
		if err != nil {
			logger.Error("collection failed",
				logging.String(logging.FieldCollection, collection),
				logging.Error(err))
			runErrs = append(runErrs, err)
			continue
		}
		logger.Info("collection done",
			logging.String(logging.FieldCollection, collection),
			logging.Int("attempted", summary.Attempted),
			logging.Int("stored", summary.Stored),
			logging.Int("duplicates", summary.Duplicates),
			logging.Int("unsupported", summary.Unsupported),
			logging.Int("failed", summary.Failed),
			logging.Int("skipped", summary.Skipped),
			logging.Duration("elapsed", summary.Elapsed.Round(time.Second)))
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out)
	report.HostUsage(out, registry.Stats())
	if unsupported := report.Unsupported(registry.Stats()); unsupported != "" {
		fmt.Fprintln(out, "\nhosts without a fetcher:")
		fmt.Fprint(out, unsupported)
	}
	return errors.Join(runErrs...)
}

// resolveCollections merges the collections named on the command line with
// the ones discovered under the data root when --refresh is set.
func resolveCollections(cfg *config.Config, args []string, refresh bool) ([]string, error) {
	seen := map[string]struct{}{}
	var collections []string
	add := func(name string) {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			return
		}
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		collections = append(collections, name)
	}

	for _, arg := range args {
		add(arg)
	}
	if refresh {
		discovered, err := workspace.Discover(cfg.Paths.DataDir)
		if err != nil {
			return nil, err
		}
		for _, name := range discovered {
			add(name)
		}
	}
	if len(collections) == 0 {
		return nil, errors.New("no collections: name at least one, or use --refresh with existing workspaces")
	}
	sort.Strings(collections)
	return collections, nil
}
