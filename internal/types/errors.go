package types

import "errors"

// Failure taxonomy for one orchestration run. All are terminal for the
// attempt; DuplicateVideo is benign and means "a result already exists".
var (
	ErrInvalidSourceURL      = errors.New("invalid source url")
	ErrAudioExtraction       = errors.New("audio extraction failed")
	ErrUpstreamTranscription = errors.New("upstream transcription error")
	ErrTranscriptionTimeout  = errors.New("transcription timed out")
	ErrDuplicateVideo        = errors.New("video already processed")
	ErrStorageUnavailable    = errors.New("storage unavailable")
	ErrStorageConflict       = errors.New("storage write conflict")
	ErrNotFound              = errors.New("not found")
)
