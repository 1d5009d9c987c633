// Package registry is the durable record of every local sandbox.
//
// The registry is a single JSON document, {"servers": [...]}, read once when
// a Registry is constructed and rewritten wholesale after every mutation.
// Writes go to a temporary file that is renamed over the target, so a
// crash mid-write leaves either the old or the new document.
//
// All read-modify-write cycles inside one process go through Update, which
// holds the registry mutex for the whole cycle. Process exit callbacks use
// the same path, so a crash notification cannot interleave with a start or
// stop. Several processes sharing one registry file are not supported.
package registry
