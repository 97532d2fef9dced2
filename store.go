package main

// store module provides storage of model configurations and API presets
//
// Copyright (c) 2023 - Valentin Kuznetsov <vkuznet@gmail.com>
//

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// well-known storage keys
const (
	ModelsKey  = "ml-models"
	PresetsKey = "ml-model-api-presets"
)

// ErrNoRecords is returned by Store.Load when nothing has been saved yet
var ErrNoRecords = errors.New("no stored records")

// Store loads and saves whole list of records
type Store[T any] interface {
	Load() ([]T, error)
	Save(records []T) error
}

// FileStore keeps records as JSON file
type FileStore[T any] struct {
	FileName string
}

// NewFileStore creates FileStore for given storage directory and key
func NewFileStore[T any](dir, key string) *FileStore[T] {
	return &FileStore[T]{FileName: filepath.Join(dir, key+".json")}
}

// Load implements Store interface
func (s *FileStore[T]) Load() ([]T, error) {
	data, err := os.ReadFile(filepath.Clean(s.FileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoRecords
		}
		return nil, err
	}
	var records []T
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("unable to parse %s: %w", s.FileName, err)
	}
	return records, nil
}

// Save implements Store interface, file is replaced atomically
func (s *FileStore[T]) Save(records []T) error {
	if records == nil {
		records = []T{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.FileName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.FileName)+".*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.FileName)
}

// MemoryStore keeps records in memory, it is used when no persistence
// is required
type MemoryStore[T any] struct {
	records []T
	saved   bool
}

// Load implements Store interface
func (s *MemoryStore[T]) Load() ([]T, error) {
	if !s.saved {
		return nil, ErrNoRecords
	}
	out := make([]T, len(s.records))
	copy(out, s.records)
	return out, nil
}

// Save implements Store interface
func (s *MemoryStore[T]) Save(records []T) error {
	s.records = make([]T, len(records))
	copy(s.records, records)
	s.saved = true
	return nil
}

// helper function to create store for given key according to configuration
func newStore[T any](key string) (Store[T], error) {
	switch Config.Store {
	case "", "file":
		return NewFileStore[T](Config.StorageDir, key), nil
	case "memory":
		return &MemoryStore[T]{}, nil
	case "sqlite":
		return NewSQLiteStore[T](Config.SQLiteFile, key)
	case "mongo":
		return NewMongoStore[T](Config.DBName, key), nil
	}
	return nil, fmt.Errorf("unsupported store %q, please use file, sqlite, mongo or memory", Config.Store)
}
