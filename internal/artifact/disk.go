package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	fileutil "pdfmaster/internal/file"
)

const (
	artifactsDir = "artifacts"
	blobName     = "blob"
	metaName     = "artifact.json"
)

// DiskStore keeps artifacts under <dataDir>/artifacts/<id>/.
type DiskStore struct {
	root string
}

// NewDiskStore creates the artifacts directory below dataDir.
func NewDiskStore(dataDir string) (*DiskStore, error) {
	if dataDir == "" {
		dataDir = "data"
	}
	root := filepath.Join(dataDir, artifactsDir)
	if err := fileutil.EnsureDir(root); err != nil {
		return nil, err
	}
	return &DiskStore{root: root}, nil
}

func (s *DiskStore) dir(id string) string { return filepath.Join(s.root, id) }

func (s *DiskStore) Put(_ context.Context, name, contentType string, r io.Reader) (Artifact, error) {
	a := Artifact{
		ID:          uuid.NewString(),
		Name:        name,
		ContentType: contentType,
		CreatedAt:   time.Now().UTC(),
	}
	blobPath := filepath.Join(s.dir(a.ID), blobName)
	size, err := fileutil.CopyAtomic(blobPath, r)
	if err != nil {
		_ = fileutil.RemoveDir(s.dir(a.ID))
		return Artifact{}, fmt.Errorf("store artifact: %w", err)
	}
	a.Size = size
	a.Location = blobPath
	if err := fileutil.WriteJSONAtomic(filepath.Join(s.dir(a.ID), metaName), a); err != nil {
		_ = fileutil.RemoveDir(s.dir(a.ID))
		return Artifact{}, fmt.Errorf("store artifact metadata: %w", err)
	}
	return a, nil
}

func (s *DiskStore) Open(_ context.Context, a Artifact) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(s.dir(a.ID), blobName)) //nolint:gosec // id is generated by the store
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("open artifact: %w", err)
	}
	return f, nil
}

func (s *DiskStore) Release(_ context.Context, a Artifact) error {
	if a.ID == "" {
		return nil
	}
	return fileutil.RemoveDir(s.dir(a.ID))
}

// Sweep removes every stored artifact. Handles do not survive a restart, so
// anything found at startup is an orphan.
func (s *DiskStore) Sweep(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read artifacts dir: %w", err)
	}
	removed := 0
	for _, e := range entries {
		if ctx.Err() != nil {
			return removed, ctx.Err()
		}
		if err := fileutil.RemoveDir(filepath.Join(s.root, e.Name())); err != nil {
			log.Warn().Str("artifact_id", e.Name()).Err(err).Msg("sweep artifact failed")
			continue
		}
		removed++
	}
	return removed, nil
}
