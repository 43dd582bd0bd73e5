// Package config provides functionality for managing configuration options
// for the client using command-line flags, environment variables, and an
// optional JSON config file.
package config

import (
	"encoding/json"
	"flag"
	"log"
	"os"
)

// Options holds the configuration values for the client.
type Options struct {
	// BaseURL is the vault service base URL.
	BaseURL string

	// PollSeconds is the interval between background credential refreshes.
	PollSeconds int

	// TimeoutSeconds is the per-request HTTP timeout.
	TimeoutSeconds int

	// AuditPath is the path to the local audit database.
	AuditPath string

	// LogLevel sets the logging verbosity.
	LogLevel string

	// Config is the path to the config file.
	Config string
}

// options holds the current configuration values.
var options = &Options{}

// init initializes command-line flags and sets default values.
func init() {
	flag.StringVar(&options.BaseURL, "url", "http://localhost:5000", "vault service base URL")
	flag.IntVar(&options.PollSeconds, "poll", 10, "seconds between background refreshes")
	flag.IntVar(&options.TimeoutSeconds, "timeout", 30, "request timeout in seconds")
	flag.StringVar(&options.AuditPath, "audit", "vault_audit.db", "path to the audit database")
	flag.StringVar(&options.LogLevel, "loglevel", "info", "log level")
	flag.StringVar(&options.Config, "config", "", "path to config file")
	flag.StringVar(&options.Config, "c", "", "path to config file (shorthand)")
}

// Parse parses the command-line flags, the config file, and environment
// variables to set configuration values. It returns a pointer to the
// Options struct containing the parsed configuration values.
func Parse() *Options {
	flag.Parse()

	// Override flags with environment variables if set
	if configPath := os.Getenv("VAULT_CONFIG"); configPath != "" {
		options.Config = configPath
	}

	if options.Config != "" {
		if _, err := os.Stat(options.Config); err == nil {
			if err := applyFile(options, options.Config); err != nil {
				log.Fatalf("error while reading config file: %v", err)
			}
		}
	}

	applyEnv(options)

	return options
}

// applyFile merges values from a JSON config file into o.
func applyFile(o *Options, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, o)
}

// applyEnv overrides options with environment variables if set.
func applyEnv(o *Options) {
	if baseURL := os.Getenv("VAULT_API"); baseURL != "" {
		o.BaseURL = baseURL
	}
	if auditPath := os.Getenv("VAULT_AUDIT"); auditPath != "" {
		o.AuditPath = auditPath
	}
}
