package config

import "time"

// AppConfig holds the global application configuration
type AppConfig struct {
	Depth                   int              `yaml:"depth"`
	NumDownloaders          int              `yaml:"num_downloaders"`
	NumExtractors           int              `yaml:"num_extractors"`
	MaxRequestsPerHost      int              `yaml:"max_requests_per_host"`
	MaxConcurrentRequests   int              `yaml:"max_concurrent_requests,omitempty"` // Global cap on in-flight HTTP requests (0 = num_downloaders)
	ShutdownTimeout         time.Duration    `yaml:"shutdown_timeout,omitempty"`
	ProgressInterval        time.Duration    `yaml:"progress_interval,omitempty"`
	DefaultUserAgent        string           `yaml:"default_user_agent"`
	DefaultDelayPerHost     time.Duration    `yaml:"default_delay_per_host"`
	PerPageTimeout          time.Duration    `yaml:"per_page_timeout,omitempty"` // Timeout for a single download (0 = no timeout)
	MaxRetries              int              `yaml:"max_retries,omitempty"`
	InitialRetryDelay       time.Duration    `yaml:"initial_retry_delay,omitempty"`
	MaxRetryDelay           time.Duration    `yaml:"max_retry_delay,omitempty"`
	MaxPageSizeBytes        int64            `yaml:"max_page_size_bytes,omitempty"` // 0 = unlimited
	RespectRobotsTxt        bool             `yaml:"respect_robots_txt,omitempty"`
	RespectNofollow         bool             `yaml:"respect_nofollow,omitempty"`
	LinkExtractionSelectors []string         `yaml:"link_extraction_selectors,omitempty"`
	DisallowedPathPatterns  []string         `yaml:"disallowed_path_patterns,omitempty"` // Regex patterns for links to drop
	CacheDir                string           `yaml:"cache_dir,omitempty"`                // Empty disables the page cache
	ReuseCache              bool             `yaml:"reuse_cache,omitempty"`
	DBGCInterval            time.Duration    `yaml:"db_gc_interval,omitempty"`
	LogFile                 string           `yaml:"log_file,omitempty"`
	HTTPClientSettings      HTTPClientConfig `yaml:"http_client_settings,omitempty"`
}

// HTTPClientConfig holds settings for the shared HTTP client
type HTTPClientConfig struct {
	Timeout               time.Duration `yaml:"timeout,omitempty"`                 // Overall request timeout
	MaxIdleConns          int           `yaml:"max_idle_conns,omitempty"`          // Max total idle connections
	MaxIdleConnsPerHost   int           `yaml:"max_idle_conns_per_host,omitempty"` // Max idle connections per host
	IdleConnTimeout       time.Duration `yaml:"idle_conn_timeout,omitempty"`
	TLSHandshakeTimeout   time.Duration `yaml:"tls_handshake_timeout,omitempty"`
	ExpectContinueTimeout time.Duration `yaml:"expect_continue_timeout,omitempty"`
	ForceAttemptHTTP2     *bool         `yaml:"force_attempt_http2,omitempty"` // nil=default, true=force, false=disable
	DialerTimeout         time.Duration `yaml:"dialer_timeout,omitempty"`
	DialerKeepAlive       time.Duration `yaml:"dialer_keep_alive,omitempty"`
	MaxRedirects          int           `yaml:"max_redirects,omitempty"`
}

// EngineConfig is the subset of settings owned by the crawl engine: pool
// sizes, per-host admission limit and shutdown behaviour.
type EngineConfig struct {
	Downloaders      int
	Extractors       int
	PerHost          int
	ShutdownTimeout  time.Duration
	ProgressInterval time.Duration // 0 disables periodic progress logs
	FetchTimeout     time.Duration // 0 = no per-download timeout
}

// Engine returns the engine-facing settings of an (already validated) AppConfig.
func (c *AppConfig) Engine() EngineConfig {
	return EngineConfig{
		Downloaders:      c.NumDownloaders,
		Extractors:       c.NumExtractors,
		PerHost:          c.MaxRequestsPerHost,
		ShutdownTimeout:  c.ShutdownTimeout,
		ProgressInterval: c.ProgressInterval,
		FetchTimeout:     c.PerPageTimeout,
	}
}

// GetEffectiveMaxConcurrentRequests returns the global in-flight request cap,
// falling back to the downloader pool size.
func GetEffectiveMaxConcurrentRequests(appCfg AppConfig) int {
	if appCfg.MaxConcurrentRequests > 0 {
		return appCfg.MaxConcurrentRequests
	}
	if appCfg.NumDownloaders > 0 {
		return appCfg.NumDownloaders
	}
	return 1
}

// GetEffectiveLinkSelectors returns the configured link selectors, or "body" when none are set.
func GetEffectiveLinkSelectors(appCfg AppConfig) []string {
	if len(appCfg.LinkExtractionSelectors) > 0 {
		return appCfg.LinkExtractionSelectors
	}
	return []string{"body"}
}
