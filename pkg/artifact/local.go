package artifact

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	sameerrors "github.com/SolaceLabs/solace-agent-mesh-core/pkg/errors"
	"github.com/SolaceLabs/solace-agent-mesh-core/pkg/logger"
)

// LocalStore implements Store on the local filesystem, laid out as
// baseDir/app/user/session/filename/v{N}.bin plus a v{N}.metadata JSON
// sidecar, one directory per (app,user,session,filename) coordinate.
// Teacher-grounded on runtime/storage/local.FileStore's atomic
// write-then-rename and path-traversal validation, generalized from a
// single-version blob store to a per-coordinate version history.
type LocalStore struct {
	baseDir string

	keyMu sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLocalStore creates a LocalStore rooted at baseDir, creating it if
// necessary.
func NewLocalStore(baseDir string) (*LocalStore, error) {
	if baseDir == "" {
		return nil, sameerrors.New(sameerrors.InternalError, "artifact", "NewLocalStore", fmt.Errorf("base directory is required"))
	}
	if err := os.MkdirAll(baseDir, 0o750); err != nil {
		return nil, sameerrors.New(sameerrors.InternalError, "artifact", "NewLocalStore", err)
	}
	return &LocalStore{baseDir: baseDir, locks: make(map[string]*sync.Mutex)}, nil
}

func coordKey(app, user, session, filename string) string {
	return app + "/" + user + "/" + session + "/" + filename
}

// lockFor returns the per-coordinate mutex, creating it on first use. This
// serializes version-number assignment for a single artifact without
// blocking unrelated artifacts, mirroring FileStore's per-path dedup locks.
func (s *LocalStore) lockFor(key string) *sync.Mutex {
	s.keyMu.Lock()
	defer s.keyMu.Unlock()
	m, ok := s.locks[key]
	if !ok {
		m = &sync.Mutex{}
		s.locks[key] = m
	}
	return m
}

func (s *LocalStore) coordDir(app, user, session, filename string) string {
	return filepath.Join(s.baseDir, sanitize(app), sanitize(user), sanitize(session), sanitize(filename))
}

func (s *LocalStore) versionPath(app, user, session, filename string, version int) string {
	return filepath.Join(s.coordDir(app, user, session, filename), fmt.Sprintf("v%d.bin", version))
}

func (s *LocalStore) metadataPath(app, user, session, filename string, version int) string {
	return filepath.Join(s.coordDir(app, user, session, filename), fmt.Sprintf("v%d.metadata", version))
}

// Save implements Store.
func (s *LocalStore) Save(ctx context.Context, app, user, session, filename string, data []byte, meta Metadata) (Saved, error) {
	key := coordKey(app, user, session, filename)
	lock := s.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	versions, err := s.listVersionsLocked(app, user, session, filename)
	if err != nil {
		return Saved{}, err
	}
	next := 1
	if len(versions) > 0 {
		next = versions[len(versions)-1] + 1
	}

	dir := s.coordDir(app, user, session, filename)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return Saved{}, sameerrors.New(sameerrors.InternalError, "artifact", "Save", err)
	}

	meta.Version = next
	meta.SizeBytes = int64(len(data))
	meta.CreatedAt = time.Now().UTC()
	if meta.Name == "" {
		meta.Name = filename
	}

	if err := writeFileAtomic(s.versionPath(app, user, session, filename, next), data); err != nil {
		return Saved{}, sameerrors.New(sameerrors.StorageQuota, "artifact", "Save", err)
	}

	encoded, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return Saved{}, sameerrors.New(sameerrors.InternalError, "artifact", "Save", err)
	}
	if err := writeFileAtomic(s.metadataPath(app, user, session, filename, next), encoded); err != nil {
		logger.Warn("artifact save: metadata sidecar write failed", "coordinate", key, "version", next, "error", err)
	}

	return Saved{
		URI:      BuildURI(app, user, session, filename, next),
		Version:  next,
		Metadata: meta,
	}, nil
}

// Load implements Store.
func (s *LocalStore) Load(ctx context.Context, uri string) ([]byte, Metadata, error) {
	parts, err := ParseURI(uri)
	if err != nil {
		return nil, Metadata{}, err
	}

	version := parts.Version
	if version <= 0 {
		versions, err := s.ListVersions(ctx, parts.App, parts.User, parts.Session, parts.Filename)
		if err != nil {
			return nil, Metadata{}, err
		}
		if len(versions) == 0 {
			return nil, Metadata{}, sameerrors.New(sameerrors.NotFound, "artifact", "Load", fmt.Errorf("no versions found for %q", uri))
		}
		version = versions[len(versions)-1]
	}

	data, err := os.ReadFile(s.versionPath(parts.App, parts.User, parts.Session, parts.Filename, version))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, Metadata{}, sameerrors.New(sameerrors.NotFound, "artifact", "Load", err)
		}
		return nil, Metadata{}, sameerrors.New(sameerrors.InternalError, "artifact", "Load", err)
	}

	meta, err := s.readMetadata(parts.App, parts.User, parts.Session, parts.Filename, version)
	if err != nil {
		meta = Metadata{Name: parts.Filename, Version: version, SizeBytes: int64(len(data))}
	}
	return data, meta, nil
}

// ListVersions implements Store.
func (s *LocalStore) ListVersions(ctx context.Context, app, user, session, filename string) ([]int, error) {
	return s.listVersionsLocked(app, user, session, filename)
}

func (s *LocalStore) listVersionsLocked(app, user, session, filename string) ([]int, error) {
	dir := s.coordDir(app, user, session, filename)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, sameerrors.New(sameerrors.InternalError, "artifact", "ListVersions", err)
	}
	versions := make([]int, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "v") || !strings.HasSuffix(name, ".bin") {
			continue
		}
		n, convErr := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, "v"), ".bin"))
		if convErr != nil {
			continue
		}
		versions = append(versions, n)
	}
	sort.Ints(versions)
	return versions, nil
}

// List implements Store.
func (s *LocalStore) List(ctx context.Context, app, user, session string) ([]Saved, error) {
	dir := filepath.Join(s.baseDir, sanitize(app), sanitize(user), sanitize(session))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, sameerrors.New(sameerrors.InternalError, "artifact", "List", err)
	}

	out := make([]Saved, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		filename := e.Name()
		versions, err := s.listVersionsLocked(app, user, session, filename)
		if err != nil || len(versions) == 0 {
			continue
		}
		latest := versions[len(versions)-1]
		meta, err := s.readMetadata(app, user, session, filename, latest)
		if err != nil {
			meta = Metadata{Name: filename, Version: latest}
		}
		out = append(out, Saved{
			URI:      BuildURI(app, user, session, filename, latest),
			Version:  latest,
			Metadata: meta,
		})
	}
	return out, nil
}

// Delete implements Store.
func (s *LocalStore) Delete(ctx context.Context, app, user, session, filename string) error {
	key := coordKey(app, user, session, filename)
	lock := s.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	dir := s.coordDir(app, user, session, filename)
	if err := os.RemoveAll(dir); err != nil {
		return sameerrors.New(sameerrors.InternalError, "artifact", "Delete", err)
	}
	return nil
}

func (s *LocalStore) readMetadata(app, user, session, filename string, version int) (Metadata, error) {
	data, err := os.ReadFile(s.metadataPath(app, user, session, filename, version))
	if err != nil {
		return Metadata{}, err
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return Metadata{}, err
	}
	return meta, nil
}

// writeFileAtomic writes to a temp file then renames into place, matching
// the teacher's FileStore.writeFileAtomic.
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func sanitize(name string) string {
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		"..", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
	)
	return replacer.Replace(name)
}
