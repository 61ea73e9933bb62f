// Package media stages uploaded files in process memory and hands out
// references that posts and avatars can point at. Nothing is written to
// disk: a reference stops resolving when the process exits.
package media

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/rs/xid"

	"github.com/sakif/localfeed/internal/apperror"
	"github.com/sakif/localfeed/internal/model"
)

// URLPrefix starts every reference produced by Stage.
const URLPrefix = "/media/"

// DefaultMaxBytes caps a single staged upload.
const DefaultMaxBytes = 32 << 20

// Blob is one staged upload.
type Blob struct {
	ID          string
	ContentType string
	MediaType   model.MediaType
	Data        []byte
}

// Ref is what callers store on a post or profile.
type Ref struct {
	URL       string          `json:"mediaUrl"`
	MediaType model.MediaType `json:"mediaType"`
}

type Registry struct {
	maxBytes int64

	mu    sync.RWMutex
	blobs map[string]Blob
}

func NewRegistry(maxBytes int64) *Registry {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Registry{maxBytes: maxBytes, blobs: make(map[string]Blob)}
}

// Stage reads r fully and registers it. When contentType is empty it is
// sniffed from the data.
func (g *Registry) Stage(contentType string, r io.Reader) (Ref, error) {
	data, err := io.ReadAll(io.LimitReader(r, g.maxBytes+1))
	if err != nil {
		return Ref{}, fmt.Errorf("media: reading upload: %w", err)
	}
	if len(data) == 0 {
		return Ref{}, apperror.ValidationFailed("file", "file is empty")
	}
	if int64(len(data)) > g.maxBytes {
		return Ref{}, apperror.ValidationFailed("file",
			fmt.Sprintf("file must be %d bytes or less", g.maxBytes))
	}
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}

	blob := Blob{
		ID:          xid.New().String(),
		ContentType: contentType,
		MediaType:   model.MediaTypeFromContentType(contentType),
		Data:        data,
	}

	g.mu.Lock()
	g.blobs[blob.ID] = blob
	g.mu.Unlock()

	return Ref{URL: URLPrefix + blob.ID, MediaType: blob.MediaType}, nil
}

// Open returns the staged blob for id.
func (g *Registry) Open(id string) (Blob, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	b, ok := g.blobs[strings.TrimPrefix(id, URLPrefix)]
	return b, ok
}

// Reader returns a reader over a staged blob's bytes.
func (b Blob) Reader() *bytes.Reader {
	return bytes.NewReader(b.Data)
}

// Revoke forgets id. Posts still pointing at it keep the dangling reference.
func (g *Registry) Revoke(id string) {
	g.mu.Lock()
	delete(g.blobs, strings.TrimPrefix(id, URLPrefix))
	g.mu.Unlock()
}

// Len reports how many blobs are staged.
func (g *Registry) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.blobs)
}
