package transcript

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/cloudwego/eino-ext/components/document/loader/file"
	"github.com/cloudwego/eino/components/document"
	"github.com/cloudwego/eino/components/document/parser"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"soapscribe/internal/models"
	"soapscribe/internal/tracing"
)

// ErrUnsupportedFileKind is returned for uploads whose extension has no resolution branch.
var ErrUnsupportedFileKind = errors.New("unsupported file type")

// Kind is the resolution branch chosen for a file extension.
type Kind string

const (
	KindText  Kind = "text"
	KindAudio Kind = "audio"
)

var supportedKinds = map[string]Kind{
	".txt": KindText,
	".mp3": KindAudio,
	".m4a": KindAudio,
}

// SupportedExtensions lists the accepted extensions in a stable order.
func SupportedExtensions() []string {
	return []string{".txt", ".mp3", ".m4a"}
}

// KindOf maps a file extension (case-insensitive) to its resolution branch.
func KindOf(ext string) (Kind, bool) {
	k, ok := supportedKinds[strings.ToLower(ext)]
	return k, ok
}

// Resolver turns an uploaded file into a plain-text transcript. It only reads the file.
type Resolver struct {
	loader      document.Loader
	transcriber TranscriptionBackend
	logger      *zap.Logger
}

// NewResolver builds a Resolver. A nil backend falls back to the placeholder transcriber.
func NewResolver(ctx context.Context, backend TranscriptionBackend, logger *zap.Logger) (*Resolver, error) {
	if backend == nil {
		backend = StubTranscriber{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	loader, err := file.NewFileLoader(ctx, &file.FileLoaderConfig{
		UseNameAsID: true,
		Parser:      parser.TextParser{},
	})
	if err != nil {
		return nil, fmt.Errorf("init text loader: %w", err)
	}
	return &Resolver{loader: loader, transcriber: backend, logger: logger}, nil
}

// Resolve returns the transcript of f, dispatching on its declared extension.
func (r *Resolver) Resolve(ctx context.Context, f *models.UploadedFile) (string, error) {
	if f == nil {
		return "", errors.New("file cannot be nil")
	}
	ctx, span := tracing.Tracer("transcript").Start(ctx, "pipeline.resolve")
	defer span.End()

	ext := strings.ToLower(f.Ext)
	if ext == "" {
		ext = models.ExtOf(f.OriginalName)
	}
	span.SetAttributes(attribute.String("file.ext", ext), attribute.Int64("file.size", f.Size))

	kind, ok := KindOf(ext)
	if !ok {
		return "", fmt.Errorf("%w: %q (supported: %s)", ErrUnsupportedFileKind, ext, strings.Join(SupportedExtensions(), ", "))
	}
	switch kind {
	case KindText:
		return r.readText(ctx, f.StoredPath)
	case KindAudio:
		return r.transcribe(ctx, f.StoredPath)
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFileKind, ext)
}

func (r *Resolver) readText(ctx context.Context, path string) (string, error) {
	docs, err := r.loader.Load(ctx, document.Source{URI: path})
	if err != nil {
		return "", fmt.Errorf("read transcript: %w", err)
	}
	var sb strings.Builder
	for _, doc := range docs {
		if doc == nil {
			continue
		}
		sb.WriteString(doc.Content)
	}
	// invalid sequences become U+FFFD, valid text is returned verbatim
	return strings.ToValidUTF8(sb.String(), "\uFFFD"), nil
}

func (r *Resolver) transcribe(ctx context.Context, path string) (string, error) {
	audio, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read audio: %w", err)
	}
	r.logger.Debug("transcribing audio", zap.String("path", path), zap.Int("bytes", len(audio)))
	text, err := r.transcriber.Transcribe(ctx, audio)
	if err != nil {
		return "", fmt.Errorf("transcribe audio: %w", err)
	}
	return text, nil
}
