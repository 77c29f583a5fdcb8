package bundle

import (
	"context"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"irrigation/pkg/errors"
	"irrigation/pkg/logger"
)

// Store persists the active bundle artifact.
// Load and CurrentID return errors.ErrNotFound when nothing has been saved yet.
type Store interface {
	Load(ctx context.Context) (*Bundle, error)
	Save(ctx context.Context, b *Bundle) error
	CurrentID(ctx context.Context) (uuid.UUID, error)
}

// FileStore keeps the bundle in a single JSON file
type FileStore struct {
	path string
	log  *logger.Logger
}

// NewFileStore creates a file backed store
func NewFileStore(path string) *FileStore {
	return &FileStore{
		path: path,
		log:  logger.Get().Component("bundle_store"),
	}
}

// Path returns the artifact location
func (s *FileStore) Path() string {
	return s.path
}

// Load reads and validates the bundle
func (s *FileStore) Load(ctx context.Context) (*Bundle, error) {
	data, err := s.read()
	if err != nil {
		return nil, err
	}

	b, err := Unmarshal(data)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load bundle from %s", s.path)
	}

	s.log.Infow("Loaded model bundle",
		"path", s.path,
		"bundle_id", b.ID(),
		"size", humanize.Bytes(uint64(len(data))),
		"created", humanize.Time(b.CreatedAt()),
	)
	return b, nil
}

// Save writes the bundle to a temp file and renames it over the artifact,
// so readers never see a partially written file
func (s *FileStore) Save(ctx context.Context, b *Bundle) error {
	data, err := Marshal(b)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create bundle directory %s", dir)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "failed to create temp bundle file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "failed to write bundle")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrap(err, "failed to sync bundle")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "failed to close bundle file")
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return errors.Wrapf(err, "failed to replace bundle at %s", s.path)
	}

	s.log.Infow("Saved model bundle",
		"path", s.path,
		"bundle_id", b.ID(),
		"size", humanize.Bytes(uint64(len(data))),
	)
	return nil
}

// CurrentID returns the id of the stored bundle without decoding the classifier
func (s *FileStore) CurrentID(ctx context.Context) (uuid.UUID, error) {
	data, err := s.read()
	if err != nil {
		return uuid.Nil, err
	}
	return PeekID(data)
}

func (s *FileStore) read() ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, errors.Wrapf(errors.ErrNotFound, "no bundle at %s", s.path)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read bundle %s", s.path)
	}
	return data, nil
}
