// Package keys stores and resolves SSH private keys for instances.
//
// Records live in the durable store keyed by the cloud key pair name.
// Every stored key is also written to a local cache directory (0700, files
// 0600) and, when configured, archived to an S3 bucket. Lookups for an
// instance fall back from the store to the archive to a fixed list of
// filesystem locations, ingesting whatever they find.
//
// Keys that arrive flattened onto one line (a common copy-paste accident)
// are repaired to canonical PEM before they are stored.
package keys
