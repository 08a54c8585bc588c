package csvstore

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"

	historydomain "github.com/smallbiznis/creatorpay/internal/history/domain"
)

// FileStore keeps history in a single CSV file. Save rewrites the file
// through a temporary sibling and a rename.
type FileStore struct {
	Path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

func (s *FileStore) Load(context.Context) ([]historydomain.Entry, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return Decode(bytes.NewReader(data))
}

func (s *FileStore) Find(ctx context.Context, key string) (*historydomain.Entry, error) {
	key = historydomain.NormalizeKey(key)
	if key == "" {
		return nil, historydomain.ErrEmptyKey
	}
	entries, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	snapshot := historydomain.NewSnapshot(entries...)
	e, ok := snapshot[key]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (s *FileStore) Save(ctx context.Context, entries []historydomain.Entry) error {
	current, err := s.Load(ctx)
	if err != nil {
		return err
	}
	snapshot := historydomain.NewSnapshot(current...)
	for _, e := range entries {
		snapshot.Apply(e)
	}

	var buf bytes.Buffer
	if err := Encode(&buf, snapshot.Entries()); err != nil {
		return err
	}

	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".history-*.csv")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.Path)
}
