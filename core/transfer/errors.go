package transfer

import (
	"context"
	"errors"
	"fmt"

	"github.com/vbrik/cta-data-relay/core/codec"
)

// Failure kinds. A StageError matches its kind with errors.Is.
var (
	// ErrListing aborts a whole run before anything is mutated.
	ErrListing = errors.New("listing failed")
	// ErrCompression is a per-item compress or decompress failure.
	ErrCompression = codec.ErrCompression
	// ErrChecksum is a per-item checksum failure.
	ErrChecksum = codec.ErrChecksum
	// ErrTransfer is a per-item failure talking to a tier.
	ErrTransfer = errors.New("transfer failed")
	// ErrPayloadCommit means the archive copy exists but the payload could not be emptied.
	// The object stays staged; a later relay finds the archive copy and commits again.
	ErrPayloadCommit = errors.New("payload commit failed")
	// ErrCancelled marks items stopped by the run deadline.
	ErrCancelled = errors.New("cancelled")
)

// Stage is one step of a per-object state machine.
type Stage string

const (
	StagePending          Stage = "pending"
	StageCompressing      Stage = "compressing"
	StageUploading        Stage = "uploading"
	StageVerified         Stage = "verified"
	StageDownloading      Stage = "downloading"
	StageDecompressing    Stage = "decompressing"
	StageCopyingToArchive Stage = "copying_to_archive"
	StagePayloadEmptied   Stage = "payload_emptied"
	StageChecksumming     Stage = "checksumming"
	StageMarking          Stage = "marking"
	StagePruning          Stage = "pruning"
	StageDone             Stage = "done"
)

// StageError is the failure of one object at one stage.
type StageError struct {
	Key   string
	Stage Stage
	Kind  error
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Key, e.Stage, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *StageError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

func fail(key string, stage Stage, kind, err error) *StageError {
	return &StageError{Key: key, Stage: stage, Kind: kind, Err: err}
}

// kindOf picks the failure kind of err, defaulting to fallback.
func kindOf(err, fallback error) error {
	for _, k := range []error{ErrCompression, ErrChecksum, ErrPayloadCommit, ErrCancelled} {
		if errors.Is(err, k) {
			return k
		}
	}
	return fallback
}

// checkpoint reports a cancellation when ctx is done before the next stage starts.
func checkpoint(ctx context.Context, key string, next Stage) *StageError {
	if ctx.Err() == nil {
		return nil
	}
	return fail(key, next, ErrCancelled, context.Cause(ctx))
}

// ListingError wraps a listing failure of tier.
func ListingError(tier string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrListing, tier, err)
}
