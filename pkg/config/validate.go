package config

import (
	"fmt"
	"time"

	"github.com/Sriram-PR/crawl-engine/pkg/utils"
)

const (
	DefaultShutdownTimeout  = 30 * time.Second
	DefaultProgressInterval = 30 * time.Second
	DefaultUserAgent        = "crawl-engine/1.0"
)

// Validate checks AppConfig fields and applies sensible defaults.
// Returns collected warnings and any fatal error.
// Modifies receiver in place to apply defaults.
func (c *AppConfig) Validate() (warnings []string, err error) {
	// Depth and pool sizes: negative is fatal, zero means "not set"
	if c.Depth < 0 {
		return nil, fmt.Errorf("%w: depth cannot be negative, got %d", utils.ErrConfigValidation, c.Depth)
	}
	if c.Depth == 0 {
		warnings = append(warnings, "depth not specified, defaulting to 1")
		c.Depth = 1
	}
	if c.NumDownloaders < 0 {
		return nil, fmt.Errorf("%w: num_downloaders must be > 0, got %d", utils.ErrConfigValidation, c.NumDownloaders)
	}
	if c.NumDownloaders == 0 {
		warnings = append(warnings, "num_downloaders not specified, defaulting to 1")
		c.NumDownloaders = 1
	}
	if c.NumExtractors < 0 {
		return nil, fmt.Errorf("%w: num_extractors must be > 0, got %d", utils.ErrConfigValidation, c.NumExtractors)
	}
	if c.NumExtractors == 0 {
		warnings = append(warnings, "num_extractors not specified, defaulting to 1")
		c.NumExtractors = 1
	}
	if c.MaxRequestsPerHost < 0 {
		return nil, fmt.Errorf("%w: max_requests_per_host must be > 0, got %d", utils.ErrConfigValidation, c.MaxRequestsPerHost)
	}
	if c.MaxRequestsPerHost == 0 {
		warnings = append(warnings, "max_requests_per_host not specified, defaulting to 1")
		c.MaxRequestsPerHost = 1
	}

	if c.MaxConcurrentRequests < 0 {
		warnings = append(warnings, "max_concurrent_requests cannot be negative, defaulting to num_downloaders")
		c.MaxConcurrentRequests = 0
	}

	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.ProgressInterval < 0 {
		warnings = append(warnings, "progress_interval cannot be negative, disabling progress logs")
		c.ProgressInterval = 0
	} else if c.ProgressInterval == 0 {
		c.ProgressInterval = DefaultProgressInterval
	}

	if c.DefaultUserAgent == "" {
		c.DefaultUserAgent = DefaultUserAgent
	}
	if c.DefaultDelayPerHost < 0 {
		warnings = append(warnings, "default_delay_per_host cannot be negative, setting to 0")
		c.DefaultDelayPerHost = 0
	}

	// MaxRetries
	if c.MaxRetries < 0 {
		warnings = append(warnings, "max_retries cannot be negative, setting to 0")
		c.MaxRetries = 0
	}
	if c.MaxRetries == 0 && c.InitialRetryDelay == 0 {
		c.MaxRetries = 3
	}

	// Retry delays (only if retries enabled)
	if c.MaxRetries > 0 {
		if c.InitialRetryDelay <= 0 {
			c.InitialRetryDelay = 1 * time.Second
		}
		if c.MaxRetryDelay <= 0 {
			c.MaxRetryDelay = 30 * time.Second
		}
	}
	if c.InitialRetryDelay > c.MaxRetryDelay && c.MaxRetryDelay > 0 {
		warnings = append(warnings, fmt.Sprintf(
			"initial_retry_delay (%v) > max_retry_delay (%v), using max_retry_delay for initial",
			c.InitialRetryDelay, c.MaxRetryDelay))
		c.InitialRetryDelay = c.MaxRetryDelay
	}

	if c.PerPageTimeout < 0 {
		warnings = append(warnings, "per_page_timeout cannot be negative, disabling timeout")
		c.PerPageTimeout = 0
	}
	if c.MaxPageSizeBytes < 0 {
		warnings = append(warnings, "max_page_size_bytes cannot be negative, setting to 0 (unlimited)")
		c.MaxPageSizeBytes = 0
	}

	if _, err := utils.CompileRegexPatterns(c.DisallowedPathPatterns); err != nil {
		return warnings, err
	}

	if c.CacheDir == "" && c.ReuseCache {
		warnings = append(warnings, "reuse_cache is set but cache_dir is empty, page cache stays disabled")
	}
	if c.DBGCInterval <= 0 {
		c.DBGCInterval = 10 * time.Minute
	}

	c.validateHTTPClientSettings()

	return warnings, nil
}

// validateHTTPClientSettings applies defaults to HTTP client settings.
func (c *AppConfig) validateHTTPClientSettings() {
	h := &c.HTTPClientSettings
	if h.Timeout <= 0 {
		h.Timeout = 45 * time.Second
	}
	if h.MaxIdleConns <= 0 {
		h.MaxIdleConns = 100
	}
	if h.MaxIdleConnsPerHost <= 0 {
		h.MaxIdleConnsPerHost = 2
	}
	if h.IdleConnTimeout <= 0 {
		h.IdleConnTimeout = 90 * time.Second
	}
	if h.TLSHandshakeTimeout <= 0 {
		h.TLSHandshakeTimeout = 10 * time.Second
	}
	if h.ExpectContinueTimeout <= 0 {
		h.ExpectContinueTimeout = 1 * time.Second
	}
	if h.DialerTimeout <= 0 {
		h.DialerTimeout = 15 * time.Second
	}
	if h.DialerKeepAlive <= 0 {
		h.DialerKeepAlive = 30 * time.Second
	}
	if h.MaxRedirects <= 0 {
		h.MaxRedirects = 10
	}
}

// Validate checks the engine settings. Unlike AppConfig.Validate there are no
// implicit defaults for sizes: a non-positive pool size or per-host limit is an error.
func (c *EngineConfig) Validate() error {
	if c.Downloaders <= 0 {
		return fmt.Errorf("%w: downloader pool size must be > 0, got %d", utils.ErrConfigValidation, c.Downloaders)
	}
	if c.Extractors <= 0 {
		return fmt.Errorf("%w: extractor pool size must be > 0, got %d", utils.ErrConfigValidation, c.Extractors)
	}
	if c.PerHost <= 0 {
		return fmt.Errorf("%w: per-host limit must be > 0, got %d", utils.ErrConfigValidation, c.PerHost)
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.ProgressInterval < 0 {
		c.ProgressInterval = 0
	}
	if c.FetchTimeout < 0 {
		c.FetchTimeout = 0
	}
	return nil
}
