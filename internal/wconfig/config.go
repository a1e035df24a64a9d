// Package wconfig loads engine-wide tunables that are not part of the
// per-call extract/write flags (spec §7 ambient stack): progress
// granularity, the full-overwrite temp-suffix length, whether sequential
// sort is allowed, and the integrity chunk size. These never touch the
// WIM archive's own XML metadata, which remains an external-collaborator
// concern (spec §1).
package wconfig

import "github.com/BurntSushi/toml"

// Config holds the tunables. Zero value is valid and resolves to Defaults.
type Config struct {
	// ProgressGranularityPercent is the threshold, in percent of
	// total_bytes, at which EXTRACT_STREAMS progress re-fires. Spec says
	// "1%"; this lets tests and callers dial it.
	ProgressGranularityPercent int `toml:"progress_granularity_percent"`

	// TempSuffixLength is the length of the randomised alphanumeric
	// suffix appended to the full-overwrite temp file name. Spec says 9.
	TempSuffixLength int `toml:"temp_suffix_length"`

	// DisableSequentialSort forces SEQUENTIAL planning to behave as if
	// the sort allocation failed, for exercising the warn-and-continue
	// path deterministically in tests.
	DisableSequentialSort bool `toml:"disable_sequential_sort"`

	// IntegrityChunkSize is the chunk size, in bytes, over which the
	// integrity table computes one SHA-1 digest.
	IntegrityChunkSize int64 `toml:"integrity_chunk_size"`
}

// Defaults returns the engine's built-in tunables, used when no
// configuration file is supplied.
func Defaults() Config {
	return Config{
		ProgressGranularityPercent: 1,
		TempSuffixLength:           9,
		DisableSequentialSort:      false,
		IntegrityChunkSize:         10 * 1024 * 1024,
	}
}

// Load reads a TOML configuration file at path, overlaying it on top of
// Defaults(). Missing fields in the file keep their default value.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
