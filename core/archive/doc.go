// Package archive is the long-term archive tier.
//
// Two backends are provided:
//   - FS writes into a mounted archive filesystem. Copies are staged in a hidden
//     partial file and hard-linked into place, so "already exists" is detected
//     atomically by the kernel.
//   - GCS writes into a bucket with a DoesNotExist precondition; a failed
//     precondition (HTTP 412) is the "already exists" signal.
//
// Both report an existing destination as ErrAlreadyExists. Relaying treats that
// error as a completed copy from an earlier, interrupted run; every other error
// is a failure of that one object.
package archive
