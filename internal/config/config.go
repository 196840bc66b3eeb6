// Package config loads storage manager Options from a YAML file, mirroring
// the shape of the corpus's own LocalConfig loader: reading is tolerant of a
// missing file (returns DefaultOptions(), not an error), since an absent
// file simply means "use the library defaults."
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Options controls how a storage manager persists its collections.
type Options struct {
	// Persist turns on loading from / saving to a container file. Default
	// false (spec.md §4.H).
	Persist bool `yaml:"persist"`
	// AutoCommit enables the debounced auto-commit described in §4.H/§5.
	// Default true.
	AutoCommit bool `yaml:"auto_commit"`
	// FilePath is the container file path. Empty means the spec default,
	// "./data/database.mdb".
	FilePath string `yaml:"file_path"`
	// AutoCommitIntervalMS is the quiet-period length in milliseconds
	// before a debounced commit fires. Spec default is 100.
	AutoCommitIntervalMS int `yaml:"auto_commit_interval_ms"`
}

// AutoCommitInterval returns Options.AutoCommitIntervalMS as a
// time.Duration, defaulting to the spec's 100ms when unset.
func (o Options) AutoCommitInterval() time.Duration {
	if o.AutoCommitIntervalMS <= 0 {
		return 100 * time.Millisecond
	}
	return time.Duration(o.AutoCommitIntervalMS) * time.Millisecond
}

// DefaultOptions returns the spec.md §4.H defaults: persist=false,
// autoCommit=true, filepath derived per §6.
func DefaultOptions() Options {
	return Options{
		Persist:              false,
		AutoCommit:           true,
		AutoCommitIntervalMS: 100,
	}
}

// Load reads Options from a YAML file at path. A missing file is not an
// error: it returns DefaultOptions(), matching the corpus convention of
// "empty config (not nil/error) when the file doesn't exist."
func Load(path string) (Options, error) {
	opts := DefaultOptions()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return opts, nil
		}
		return opts, err
	}

	if err := yaml.Unmarshal(data, &opts); err != nil {
		return DefaultOptions(), err
	}
	if opts.AutoCommitIntervalMS <= 0 {
		opts.AutoCommitIntervalMS = 100
	}
	return opts, nil
}
