// Package tables maps the facets of an entity type (existence, properties,
// links and blobs) onto named stores of the environment.
//
// A table owns one primary index and one or more derived indices. Tables
// keep the derived indices in step with the primary one on every write but
// never validate one index against another; the refactoring passes of the
// engine do that.
package tables
