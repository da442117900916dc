// Package store provides in-memory capacity.TxStore implementations.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/warp/capacity-engine/capacity"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory keeps commitments, config and roles in maps guarded by one mutex.
type Memory struct {
	mu          sync.RWMutex
	commitments map[string]capacity.Commitment
	config      *capacity.GovernanceConfig
	roles       map[capacity.Role]capacity.RoleDefinition
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{
		commitments: make(map[string]capacity.Commitment),
		roles:       make(map[capacity.Role]capacity.RoleDefinition),
	}
}

func (m *Memory) ListCommitments(_ context.Context) ([]capacity.Commitment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listLocked(), nil
}

func (m *Memory) listLocked() []capacity.Commitment {
	out := make([]capacity.Commitment, 0, len(m.commitments))
	for _, c := range m.commitments {
		out = append(out, copyCommitment(c))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (m *Memory) GetCommitment(_ context.Context, id string) (*capacity.Commitment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getLocked(id)
}

func (m *Memory) getLocked(id string) (*capacity.Commitment, error) {
	c, ok := m.commitments[id]
	if !ok {
		return nil, fmt.Errorf("commitment %s: %w", id, capacity.ErrCommitmentNotFound)
	}
	out := copyCommitment(c)
	return &out, nil
}

func (m *Memory) InsertCommitment(_ context.Context, c capacity.Commitment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertLocked(c)
}

func (m *Memory) insertLocked(c capacity.Commitment) error {
	if _, ok := m.commitments[c.ID]; ok {
		return fmt.Errorf("commitment %s already exists: %w", c.ID, capacity.ErrConcurrentModification)
	}
	m.commitments[c.ID] = copyCommitment(c)
	return nil
}

func (m *Memory) UpdateCommitment(_ context.Context, c capacity.Commitment, expectedVersion int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateLocked(c, expectedVersion)
}

func (m *Memory) updateLocked(c capacity.Commitment, expectedVersion int) error {
	cur, ok := m.commitments[c.ID]
	if !ok {
		return fmt.Errorf("commitment %s: %w", c.ID, capacity.ErrCommitmentNotFound)
	}
	if cur.Version != expectedVersion {
		return fmt.Errorf("commitment %s: %w", c.ID, capacity.ErrConcurrentModification)
	}
	m.commitments[c.ID] = copyCommitment(c)
	return nil
}

func (m *Memory) LoadConfig(_ context.Context) (*capacity.GovernanceConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loadConfigLocked()
}

func (m *Memory) loadConfigLocked() (*capacity.GovernanceConfig, error) {
	if m.config == nil {
		return nil, capacity.ErrConfigMissing
	}
	cfg := copyConfig(*m.config)
	return &cfg, nil
}

func (m *Memory) SaveConfig(_ context.Context, cfg capacity.GovernanceConfig, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveConfigLocked(cfg, expectedVersion)
}

func (m *Memory) saveConfigLocked(cfg capacity.GovernanceConfig, expectedVersion int64) error {
	var current int64
	if m.config != nil {
		current = m.config.Version
	}
	if current != expectedVersion {
		return fmt.Errorf("governance config version %d, expected %d: %w", current, expectedVersion, capacity.ErrConcurrentModification)
	}
	saved := copyConfig(cfg)
	m.config = &saved
	return nil
}

func (m *Memory) ListRoles(_ context.Context) (capacity.RoleCatalog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rolesLocked(), nil
}

func (m *Memory) rolesLocked() capacity.RoleCatalog {
	out := make(capacity.RoleCatalog, 0, len(m.roles))
	for _, r := range m.roles {
		out = append(out, r)
	}
	return out.Sorted()
}

func (m *Memory) SaveRole(_ context.Context, r capacity.RoleDefinition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roles[r.Abbreviation] = r
	return nil
}

// Reset deletes every record.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commitments = make(map[string]capacity.Commitment)
	m.roles = make(map[capacity.Role]capacity.RoleDefinition)
	m.config = nil
	return nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn under the write lock. For the memory store this is
// simulated with a snapshot and a restore on error.
func (m *Memory) WithTx(_ context.Context, fn func(capacity.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	if err := fn(&txView{parent: m}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type memorySnapshot struct {
	commitments map[string]capacity.Commitment
	config      *capacity.GovernanceConfig
	roles       map[capacity.Role]capacity.RoleDefinition
}

func (m *Memory) snapshot() memorySnapshot {
	s := memorySnapshot{
		commitments: make(map[string]capacity.Commitment, len(m.commitments)),
		roles:       make(map[capacity.Role]capacity.RoleDefinition, len(m.roles)),
	}
	for k, v := range m.commitments {
		s.commitments[k] = v
	}
	for k, v := range m.roles {
		s.roles[k] = v
	}
	if m.config != nil {
		cfg := copyConfig(*m.config)
		s.config = &cfg
	}
	return s
}

func (m *Memory) restore(s memorySnapshot) {
	m.commitments = s.commitments
	m.config = s.config
	m.roles = s.roles
}

// txView runs store calls while WithTx already holds the lock.
type txView struct {
	parent *Memory
}

func (tv *txView) ListCommitments(context.Context) ([]capacity.Commitment, error) {
	return tv.parent.listLocked(), nil
}

func (tv *txView) GetCommitment(_ context.Context, id string) (*capacity.Commitment, error) {
	return tv.parent.getLocked(id)
}

func (tv *txView) InsertCommitment(_ context.Context, c capacity.Commitment) error {
	return tv.parent.insertLocked(c)
}

func (tv *txView) UpdateCommitment(_ context.Context, c capacity.Commitment, expectedVersion int) error {
	return tv.parent.updateLocked(c, expectedVersion)
}

func (tv *txView) LoadConfig(context.Context) (*capacity.GovernanceConfig, error) {
	return tv.parent.loadConfigLocked()
}

func (tv *txView) SaveConfig(_ context.Context, cfg capacity.GovernanceConfig, expectedVersion int64) error {
	return tv.parent.saveConfigLocked(cfg, expectedVersion)
}

func (tv *txView) ListRoles(context.Context) (capacity.RoleCatalog, error) {
	return tv.parent.rolesLocked(), nil
}

func (tv *txView) SaveRole(_ context.Context, r capacity.RoleDefinition) error {
	tv.parent.roles[r.Abbreviation] = r
	return nil
}

// =============================================================================
// COPIES - callers never share maps with the store
// =============================================================================

func copyCommitment(c capacity.Commitment) capacity.Commitment {
	c.RoleFTE = c.RoleFTE.Clone()
	c.Activities = append([]string(nil), c.Activities...)
	if c.PlannedStart != nil {
		t := *c.PlannedStart
		c.PlannedStart = &t
	}
	if c.PlannedEnd != nil {
		t := *c.PlannedEnd
		c.PlannedEnd = &t
	}
	return c
}

func copyConfig(cfg capacity.GovernanceConfig) capacity.GovernanceConfig {
	out := cfg
	out.Roles = make(map[capacity.Role]capacity.RoleCapacity, len(cfg.Roles))
	for k, v := range cfg.Roles {
		out.Roles[k] = v
	}
	out.Quotas = make(map[capacity.Portfolio]decimal.Decimal, len(cfg.Quotas))
	for k, v := range cfg.Quotas {
		out.Quotas[k] = v
	}
	out.Order = append([]capacity.Role(nil), cfg.Order...)
	return out
}
