package storage

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by a closed memory store.
var ErrClosed = errors.New("store closed")

// Record is a document held by the memory store.
type Record struct {
	ID    string
	Index string
	Type  string
	Body  map[string]any
}

// Memory is an in-process Store. It serves the memory:// scheme and tests.
type Memory struct {
	mu          sync.Mutex
	created     []Record
	bulks       [][]BulkItem
	collections map[string]bool
	failures    map[string]error
	closed      bool
}

// Operation names accepted by FailOn.
const (
	OpCreate           = "create"
	OpBulk             = "bulk"
	OpEnsureCollection = "ensure_collection"
	OpPing             = "ping"
)

// NewMemory creates an empty memory store.
func NewMemory() *Memory {
	return &Memory{
		collections: make(map[string]bool),
		failures:    make(map[string]error),
	}
}

// FailOn makes every later call of op return err. A nil err clears it.
func (m *Memory) FailOn(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, op)
		return
	}
	m.failures[op] = err
}

func (m *Memory) check(op string) error {
	if m.closed {
		return ErrClosed
	}
	return m.failures[op]
}

// Create stores one document.
func (m *Memory) Create(ctx context.Context, index, docType string, body map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(OpCreate); err != nil {
		return err
	}
	m.created = append(m.created, Record{ID: newDocumentID(), Index: index, Type: docType, Body: body})
	return nil
}

// Bulk stores one bulk request.
func (m *Memory) Bulk(ctx context.Context, items []BulkItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(OpBulk); err != nil {
		return err
	}
	batch := make([]BulkItem, len(items))
	copy(batch, items)
	m.bulks = append(m.bulks, batch)
	return nil
}

// EnsureCollection marks (index, docType) as prepared.
func (m *Memory) EnsureCollection(ctx context.Context, index, docType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(OpEnsureCollection); err != nil {
		return err
	}
	m.collections[index+"/"+docType] = true
	return nil
}

// Ping reports whether the store is open.
func (m *Memory) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.check(OpPing)
}

// Close closes the store.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Created returns the documents written by Create.
func (m *Memory) Created() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, len(m.created))
	copy(out, m.created)
	return out
}

// Bulks returns the bulk requests received.
func (m *Memory) Bulks() [][]BulkItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]BulkItem, len(m.bulks))
	copy(out, m.bulks)
	return out
}

// Prepared reports whether EnsureCollection succeeded for (index, docType).
func (m *Memory) Prepared(index, docType string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.collections[index+"/"+docType]
}
