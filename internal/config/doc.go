// Package config defines configuration structures for the lucas-download CLI.
//
// Configuration can be provided via:
//   - Command-line flags
//   - Environment variables (LUCAS_ prefix)
//   - YAML configuration file
//
// # Structure
//
//	type Config struct {
//	    BaseURL        string
//	    DownloadRoot   string
//	    YearsBack      int
//	    Workers        int
//	    BatchSize      int
//	    RequestTimeout time.Duration
//	    PacingDelay    time.Duration
//	    UserAgent      string
//	    Retry          RetryConfig
//	}
//
//	type RetryConfig struct {
//	    Attempts int
//	    Backoff  time.Duration
//	}
//
// The configuration is assembled once at startup and treated as immutable
// for the rest of the run.
package config
