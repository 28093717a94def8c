// Package storage uploads message media and profile pictures and returns the
// URL they are served from.
package storage

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	duochat_errors "duochat/pkg/errors"

	"github.com/google/uuid"
	"github.com/h2non/filetype"
)

// BlobStore persists data under key and returns its public URL.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// Blob is a decoded upload whose content type was sniffed from its bytes.
type Blob struct {
	Data      []byte
	MIME      string
	Extension string
}

func (b Blob) IsImage() bool {
	return filetype.IsImage(b.Data)
}

// IsAudio also accepts the webm and mp4 containers browsers record voice
// notes into.
func (b Blob) IsAudio() bool {
	if filetype.IsAudio(b.Data) {
		return true
	}
	return b.Extension == "webm" || b.Extension == "mp4"
}

// Key builds a unique object key below prefix.
func (b Blob) Key(prefix string) string {
	return fmt.Sprintf("%s/%s.%s", prefix, uuid.NewString(), b.Extension)
}

// DecodeDataURI accepts "data:<mime>;base64,<payload>" or bare base64. The
// declared mime type is ignored in favour of the sniffed one.
func DecodeDataURI(raw string) (Blob, error) {
	payload := strings.TrimSpace(raw)
	if strings.HasPrefix(payload, "data:") {
		idx := strings.Index(payload, ",")
		if idx < 0 || !strings.HasSuffix(payload[:idx], ";base64") {
			return Blob{}, fmt.Errorf("%w: malformed data uri", duochat_errors.ErrValidation)
		}
		payload = payload[idx+1:]
	}
	if payload == "" {
		return Blob{}, fmt.Errorf("%w: empty upload", duochat_errors.ErrValidation)
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(payload)
		if err != nil {
			return Blob{}, fmt.Errorf("%w: invalid base64 payload", duochat_errors.ErrValidation)
		}
	}

	kind, err := filetype.Match(data)
	if err != nil || kind == filetype.Unknown {
		return Blob{}, fmt.Errorf("%w: unrecognised file type", duochat_errors.ErrValidation)
	}

	return Blob{Data: data, MIME: kind.MIME.Value, Extension: kind.Extension}, nil
}
