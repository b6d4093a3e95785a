package store

import (
	"context"
	"sort"
	"sync"

	"github.com/Hussein-Mazeh/PasswordVault/internal/vault"
)

// Memory keeps profiles and entries in process memory. It enforces one
// profile per owner. It is safe for concurrent use.
type Memory struct {
	mu       sync.RWMutex
	profiles map[string]vault.SecurityProfile
	entries  map[string]map[string]vault.EncryptedEntry
}

var (
	_ vault.ProfileStore = (*Memory)(nil)
	_ vault.EntryStore   = (*Memory)(nil)
)

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		profiles: map[string]vault.SecurityProfile{},
		entries:  map[string]map[string]vault.EncryptedEntry{},
	}
}

func (m *Memory) ReadProfile(_ context.Context, owner string) (*vault.SecurityProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.profiles[owner]
	if !ok {
		return nil, vault.ErrProfileNotFound
	}
	return &p, nil
}

func (m *Memory) WriteProfile(_ context.Context, owner string, p *vault.SecurityProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.profiles[owner]; ok {
		return vault.ErrProfileAlreadyExists
	}
	m.profiles[owner] = *p
	return nil
}

func (m *Memory) PutEntry(_ context.Context, owner string, e vault.EncryptedEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	byID, ok := m.entries[owner]
	if !ok {
		byID = map[string]vault.EncryptedEntry{}
		m.entries[owner] = byID
	}
	byID[e.ID] = e
	return nil
}

func (m *Memory) GetEntry(_ context.Context, owner, id string) (vault.EncryptedEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[owner][id]
	if !ok {
		return vault.EncryptedEntry{}, vault.ErrEntryNotFound
	}
	return e, nil
}

func (m *Memory) ListEntries(_ context.Context, owner string) ([]vault.EncryptedEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]vault.EncryptedEntry, 0, len(m.entries[owner]))
	for _, e := range m.entries[owner] {
		out = append(out, e)
	}
	sortEntries(out)
	return out, nil
}

func (m *Memory) DeleteEntry(_ context.Context, owner, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[owner][id]; !ok {
		return vault.ErrEntryNotFound
	}
	delete(m.entries[owner], id)
	return nil
}

// sortEntries orders entries by creation time, then id.
func sortEntries(entries []vault.EncryptedEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].ID < entries[j].ID
		}
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
}
