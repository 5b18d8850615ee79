// Package codec compresses files for the object-store tier and restores them
// for the archive tier.
//
// The Executor wraps every operation in a per-object scope directory under the
// configured temp dir. Ingest produces {artifact, md5 of the original bytes,
// original size} and removes its scope itself on any failure; Egress restores
// the original file from a downloaded artifact. Sweep is startup hygiene for
// scopes of killed processes and is never needed for correctness.
//
// Empty input files are compressed like any other: a zstd frame is never
// empty, so an uploaded object never has a zero-length payload.
package codec
