package sqlite

import (
	"database/sql"
	"errors"
)

// Store pairs the single writer with a reader on the same database file.
type Store struct {
	*Writer
	*Reader
}

// Open creates the writer (and schema) first, then the reader.
func Open(cfg WriterConfig) (*Store, error) {
	w, err := New(cfg)
	if err != nil {
		return nil, err
	}
	r, err := NewReader(cfg.DBPath)
	if err != nil {
		w.Close()
		return nil, err
	}
	return &Store{Writer: w, Reader: r}, nil
}

// DB returns the writer's handle for health checks.
func (s *Store) DB() *sql.DB { return s.Writer.DB() }

// Close closes both connections.
func (s *Store) Close() error {
	return errors.Join(s.Reader.Close(), s.Writer.Close())
}
