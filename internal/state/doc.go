// Package state persists the last-known live identity and attributes of
// every applied resource.
//
// The store is what makes passes resumable: after a crash the reconciler
// re-diffs declared configuration against the stored records plus a fresh
// live fetch, so already-applied resources are not re-created and
// out-of-band drift is detected.
//
// Two durable backends are provided: a local SQLite database and an
// S3-compatible object store for shared state. The in-memory store exists
// for tests and dry runs.
package state
