// Package s3 archives private key material in an S3-compatible bucket.
//
// The archive is a secondary copy: the SQLite store stays authoritative
// and archive writes are best-effort. Objects are stored under
// <prefix><keyPairName>.pem with server-side encryption requested.
package s3
