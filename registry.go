package main

// registry module manages model configurations and API presets
//
// Copyright (c) 2023 - Valentin Kuznetsov <vkuznet@gmail.com>
//

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
)

// Record represents registry record
type Record interface {
	RecordID() string
}

// Registry provides CRUD operations over records kept in a Store
type Registry[T Record] struct {
	Name     string     // registry name used in logs
	Defaults func() []T // records used when store has none
	store    Store[T]
	mutex    sync.Mutex
}

// NewRegistry creates new registry over given store
func NewRegistry[T Record](name string, store Store[T], defaults func() []T) *Registry[T] {
	return &Registry[T]{Name: name, Defaults: defaults, store: store}
}

// helper function to load records, caller should hold the lock
func (r *Registry[T]) load() []T {
	records, err := r.store.Load()
	if err == nil {
		return records
	}
	if !errors.Is(err, ErrNoRecords) {
		log.Printf("ERROR: unable to load %s records, will use defaults: %v", r.Name, err)
	}
	if r.Defaults == nil {
		return nil
	}
	return r.Defaults()
}

// List returns all records
func (r *Registry[T]) List() []T {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.load()
}

// Get returns record with given id
func (r *Registry[T]) Get(id string) (T, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	for _, rec := range r.load() {
		if rec.RecordID() == id {
			return rec, nil
		}
	}
	var empty T
	return empty, fmt.Errorf("%s %s: %w", r.Name, id, ErrNotFound)
}

// Add appends new record
func (r *Registry[T]) Add(rec T) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	records := r.load()
	for _, old := range records {
		if old.RecordID() == rec.RecordID() {
			return fmt.Errorf("%s %s already exists", r.Name, rec.RecordID())
		}
	}
	records = append(records, rec)
	if Config.Verbose > 0 {
		log.Printf("add %s %s", r.Name, rec.RecordID())
	}
	return r.store.Save(records)
}

// Update applies given function to record with given id and stores
// the outcome
func (r *Registry[T]) Update(id string, update func(old T) (T, error)) (T, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	var empty T
	records := r.load()
	for i, old := range records {
		if old.RecordID() != id {
			continue
		}
		rec, err := update(old)
		if err != nil {
			return empty, err
		}
		records[i] = rec
		if Config.Verbose > 0 {
			log.Printf("update %s %s", r.Name, id)
		}
		return rec, r.store.Save(records)
	}
	return empty, fmt.Errorf("%s %s: %w", r.Name, id, ErrNotFound)
}

// Delete removes record with given id
func (r *Registry[T]) Delete(id string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	records := r.load()
	out := make([]T, 0, len(records))
	for _, rec := range records {
		if rec.RecordID() != id {
			out = append(out, rec)
		}
	}
	if len(out) == len(records) {
		return fmt.Errorf("%s %s: %w", r.Name, id, ErrNotFound)
	}
	if Config.Verbose > 0 {
		log.Printf("delete %s %s", r.Name, id)
	}
	return r.store.Save(out)
}

// ModelRegistry manages ML model configurations
type ModelRegistry = Registry[ModelConfig]

// PresetRegistry manages API presets
type PresetRegistry = Registry[APIPreset]

// NewModelRegistry creates registry of model configurations
func NewModelRegistry(store Store[ModelConfig]) *ModelRegistry {
	return NewRegistry[ModelConfig]("model", store, DefaultModels)
}

// NewPresetRegistry creates registry of API presets
func NewPresetRegistry(store Store[APIPreset]) *PresetRegistry {
	return NewRegistry[APIPreset]("preset", store, DefaultPresets)
}

// helper function to update model configuration keeping its id and
// creation time
func updateModel(rec ModelConfig) func(ModelConfig) (ModelConfig, error) {
	return func(old ModelConfig) (ModelConfig, error) {
		if err := rec.Validate(); err != nil {
			return old, err
		}
		rec = rec.Normalize()
		rec.ID = old.ID
		rec.CreatedAt = old.CreatedAt
		rec.UpdatedAt = timestamp()
		return rec, nil
	}
}

// helper function to update preset keeping its id and creation time
func updatePreset(rec APIPreset) func(APIPreset) (APIPreset, error) {
	return func(old APIPreset) (APIPreset, error) {
		if rec.Name == "" {
			rec.Name = old.Name
		}
		if rec.Endpoint == "" {
			rec.Endpoint = old.Endpoint
		}
		if rec.Method == "" {
			rec.Method = old.Method
		}
		if rec.Description == "" {
			rec.Description = old.Description
		}
		if err := rec.Validate(); err != nil {
			return old, err
		}
		rec.Method = strings.ToUpper(rec.Method)
		rec.ID = old.ID
		rec.CreatedAt = old.CreatedAt
		return rec, nil
	}
}
