package artifact

import (
	"context"
	"time"
)

// Metadata describes one stored artifact version. It is persisted as the
// `.metadata` sidecar alongside the version's bytes (teacher-grounded on
// runtime/storage/local's `.meta` JSON sidecar pattern).
type Metadata struct {
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	MimeType    string            `json:"mimeType"`
	SizeBytes   int64             `json:"sizeBytes"`
	Version     int               `json:"version"`
	CreatedAt   time.Time         `json:"createdAt"`
	Extra       map[string]string `json:"extra,omitempty"`
}

// Saved describes the outcome of a Save call.
type Saved struct {
	URI      string
	Version  int
	Metadata Metadata
}

// Store is the Artifact Store Adapter interface (spec.md §3 Artifact,
// §6 artifact:// URI scheme). Every coordinate (app, user, session,
// filename) addresses a version history, not a single blob: each Save
// appends a new version rather than overwriting.
type Store interface {
	// Save writes a new version of (app, user, session, filename) and
	// returns its URI and assigned version number.
	Save(ctx context.Context, app, user, session, filename string, data []byte, meta Metadata) (Saved, error)

	// Load resolves uri (an artifact:// URI, with or without a version
	// query parameter) to its bytes and metadata. Omitting the version
	// loads the latest.
	Load(ctx context.Context, uri string) ([]byte, Metadata, error)

	// ListVersions returns every known version number for the given
	// coordinate, ascending.
	ListVersions(ctx context.Context, app, user, session, filename string) ([]int, error)

	// List returns the latest version's metadata for every filename
	// under (app, user, session).
	List(ctx context.Context, app, user, session string) ([]Saved, error)

	// Delete removes every version of (app, user, session, filename).
	Delete(ctx context.Context, app, user, session, filename string) error
}
