package main

// sqlite module keeps records as JSON blobs in SQLite key-value table
//
// Copyright (c) 2023 - Valentin Kuznetsov <vkuznet@gmail.com>
//

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// sqlite databases shared by all stores
var (
	sqliteMutex sync.Mutex
	sqliteDBs   = make(map[string]*sql.DB)
)

// helper function to open (once) sqlite database and create its schema
func sqliteDB(fname string) (*sql.DB, error) {
	sqliteMutex.Lock()
	defer sqliteMutex.Unlock()
	if db, ok := sqliteDBs[fname]; ok {
		return db, nil
	}
	db, err := sql.Open("sqlite3", fname)
	if err != nil {
		return nil, err
	}
	query := `
    CREATE TABLE IF NOT EXISTS storage (
        key VARCHAR(255) PRIMARY KEY,
        value TEXT NOT NULL,
        updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );`
	if _, err := db.Exec(query); err != nil {
		db.Close()
		return nil, err
	}
	if Config.Verbose > 0 {
		log.Println("sqlite storage", fname)
	}
	sqliteDBs[fname] = db
	return db, nil
}

// SQLiteStore keeps records under given key of sqlite storage table
type SQLiteStore[T any] struct {
	db  *sql.DB
	Key string
}

// NewSQLiteStore creates SQLiteStore for given database file and key
func NewSQLiteStore[T any](fname, key string) (*SQLiteStore[T], error) {
	db, err := sqliteDB(fname)
	if err != nil {
		return nil, fmt.Errorf("unable to open sqlite database %s: %w", fname, err)
	}
	return &SQLiteStore[T]{db: db, Key: key}, nil
}

// Load implements Store interface
func (s *SQLiteStore[T]) Load() ([]T, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM storage WHERE key = ?", s.Key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoRecords
		}
		return nil, err
	}
	var records []T
	if err := json.Unmarshal([]byte(value), &records); err != nil {
		return nil, fmt.Errorf("unable to parse %s records: %w", s.Key, err)
	}
	return records, nil
}

// Save implements Store interface
func (s *SQLiteStore[T]) Save(records []T) error {
	if records == nil {
		records = []T{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		"INSERT OR REPLACE INTO storage (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)",
		s.Key, string(data))
	return err
}
