package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/Sriram-PR/crawl-engine/pkg/config"
	"github.com/Sriram-PR/crawl-engine/pkg/crawler"
	"github.com/Sriram-PR/crawl-engine/pkg/fetch"
	applog "github.com/Sriram-PR/crawl-engine/pkg/log"
	"github.com/Sriram-PR/crawl-engine/pkg/storage"
)

// errInterrupted is the cancellation cause recorded when the process receives SIGINT or SIGTERM.
var errInterrupted = errors.New("interrupted by signal")

// loadConfig reads a YAML config file. An empty path yields a zero config
// that Validate fills with defaults.
func loadConfig(path string) (*config.AppConfig, error) {
	cfg := &config.AppConfig{}
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// loadAndValidate loads the config and applies defaults, printing any warnings to stderr.
func loadAndValidate(path string, stderr io.Writer) (*config.AppConfig, error) {
	cfg, err := loadConfig(path)
	if err != nil {
		return nil, err
	}
	warnings, err := cfg.Validate()
	if err != nil {
		return nil, err
	}
	for _, w := range warnings {
		fmt.Fprintf(stderr, "config warning: %s\n", w)
	}
	return cfg, nil
}

// newLogger builds the process logger. The config file's log_file is used
// when --log-file is not given.
func newLogger(g *globalOptions, cfg *config.AppConfig, out io.Writer) (*logrus.Entry, io.Closer) {
	file := g.logFile
	if file == "" && cfg != nil {
		file = cfg.LogFile
	}
	logger, closer := applog.New(applog.Options{Level: g.logLevel, File: file, Out: out})
	return logrus.NewEntry(logger), closer
}

// downloaderStack is the HTTP downloader, optionally fronted by the page cache.
type downloaderStack struct {
	crawler.Downloader
	http    *fetch.HTTPDownloader
	cache   *storage.BadgerStore
	caching *storage.CachingDownloader
	stopGC  context.CancelFunc
	log     *logrus.Entry
}

// buildDownloader wires the HTTP downloader and, when cfg.CacheDir is set,
// the badger-backed page cache in front of it.
func buildDownloader(cfg *config.AppConfig, log *logrus.Entry) (*downloaderStack, error) {
	httpDl, err := fetch.NewHTTPDownloader(cfg, log)
	if err != nil {
		return nil, err
	}
	stack := &downloaderStack{Downloader: httpDl, http: httpDl, log: log}
	if cfg.CacheDir == "" {
		return stack, nil
	}

	store, err := storage.NewBadgerStore(cfg.CacheDir, cfg.ReuseCache, log)
	if err != nil {
		return nil, err
	}
	gcCtx, stopGC := context.WithCancel(context.Background())
	go store.RunGC(gcCtx, cfg.DBGCInterval)

	stack.cache = store
	stack.stopGC = stopGC
	stack.caching = storage.NewCachingDownloader(store, httpDl, log)
	stack.Downloader = stack.caching
	return stack, nil
}

// writeCacheIndex dumps the cached URLs to path. It is a no-op without a cache.
func (d *downloaderStack) writeCacheIndex(ctx context.Context, path string) error {
	if d.cache == nil || path == "" {
		return nil
	}
	return d.cache.WriteIndex(ctx, path)
}

// Close stops cache GC and closes the cache store.
func (d *downloaderStack) Close() error {
	if d.cache == nil {
		return nil
	}
	d.stopGC()
	d.log.WithFields(logrus.Fields{
		"hits":   d.caching.Hits(),
		"misses": d.caching.Misses(),
		"cached": d.cache.Count(),
	}).Info("Page cache statistics")
	return d.cache.Close()
}

// signalContext returns a context cancelled with errInterrupted on the first
// SIGINT/SIGTERM. A second signal exits the process immediately. The returned
// stop function releases the signal handler.
func signalContext(parent context.Context, log *logrus.Entry) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(parent)
	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		select {
		case sig := <-sigChan:
			log.Warnf("Received signal: %v. Initiating graceful shutdown...", sig)
			cancel(errInterrupted)
		case <-done:
			return
		}
		select {
		case sig := <-sigChan:
			log.Warnf("Received second signal: %v. Forcing exit.", sig)
			os.Exit(130)
		case <-done:
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		close(done)
		cancel(nil)
	}
}
