package transcript

import "context"

// TranscriptionBackend converts audio bytes into transcript text.
type TranscriptionBackend interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// PlaceholderTranscript is what StubTranscriber returns for every audio upload.
const PlaceholderTranscript = "Transcript from audio file. (Audio transcription is not configured; this is a placeholder.)"

// StubTranscriber stands in for a real speech-to-text backend.
type StubTranscriber struct{}

func (StubTranscriber) Transcribe(ctx context.Context, _ []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return PlaceholderTranscript, nil
}
