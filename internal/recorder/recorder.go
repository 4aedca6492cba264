// Package recorder captures provider request/response pairs for
// deterministic playback, keyed by a content hash of the request.
package recorder

import (
	"context"
	"encoding/json"

	"github.com/replaykit/replayd/internal/domain"
)

// Store is the persistence surface the recorder needs. In-progress captures
// live in the store too, so their lifetime is scoped to the store's lifetime
// rather than to ambient global state.
type Store interface {
	StartRecording(ctx context.Context, hash string, meta domain.RecordingMeta) (string, error)
	AppendRecordingEvent(ctx context.Context, recordingID string, payload json.RawMessage) error
	FinalizeRecording(ctx context.Context, recordingID string, result json.RawMessage) error
	LoadRecording(ctx context.Context, hash string) (*domain.Recording, error)
	ListRecordings(ctx context.Context) ([]domain.RecordingInfo, error)
	DeleteRecording(ctx context.Context, hash string) error
}

// Recorder manages the catalog of provider captures.
type Recorder struct {
	store Store
}

// New creates a recorder over the given store.
func New(store Store) *Recorder {
	return &Recorder{store: store}
}

// Start opens an in-progress capture for the hash, discarding any stale
// in-progress capture for the same hash, and returns a recording id.
func (r *Recorder) Start(ctx context.Context, hash string, meta domain.RecordingMeta) (string, error) {
	return r.store.StartRecording(ctx, hash, meta)
}

// Append persists one streamed provider event immediately. A crash after
// Append loses nothing already appended.
func (r *Recorder) Append(ctx context.Context, recordingID string, event json.RawMessage) error {
	return r.store.AppendRecordingEvent(ctx, recordingID, event)
}

// Finalize attaches the terminal result and marks the capture complete.
// Only finalized captures are ever returned by Load.
func (r *Recorder) Finalize(ctx context.Context, recordingID string, result json.RawMessage) error {
	return r.store.FinalizeRecording(ctx, recordingID, result)
}

// Load returns the complete recording for a hash, or nil if none exists.
func (r *Recorder) Load(ctx context.Context, hash string) (*domain.Recording, error) {
	return r.store.LoadRecording(ctx, hash)
}

// List returns the catalog of finalized recordings.
func (r *Recorder) List(ctx context.Context) ([]domain.RecordingInfo, error) {
	return r.store.ListRecordings(ctx)
}

// Delete removes all captures for a hash.
func (r *Recorder) Delete(ctx context.Context, hash string) error {
	return r.store.DeleteRecording(ctx, hash)
}
