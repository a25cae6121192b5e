// Package config defines the runtime options the request core consumes and the
// loader that materializes them from a TOML file plus environment overrides.
// Validation is semantic: port ranges, worker counts, SSL material pairing, and
// middleware key sanity are checked up front so that Start can fail fast with a
// field-level error instead of surfacing broken behavior at request time.
package config
