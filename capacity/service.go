/*
service.go - Workflows over a TxStore

PURPOSE:
  Connects the pure engine to storage. Reads load one snapshot and call the
  pure functions; writes run inside WithTx so that the check and the write
  are one atomic step.

OPERATIONS:
  Config / UpdateTeam / UpdateQuotas   Governance snapshots (CAS on Version)
  Validate                              Speculative admission, no writes
  Create / Update                       Admission + persist in one transaction
  SetLocked                             Freeze or release FTE and dates
  Roles / AddRole / UpdateRole          Role catalog, mirrored into the config
  Alert                                 Governance alert over all commitments

FIRST USE:
  The first read publishes DefaultRoleCatalog and DefaultGovernanceConfig.

SEE ALSO:
  - admission.go: ValidateCapacity
  - store.go: TxStore contract
*/
package capacity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Service runs engine workflows against a store.
type Service struct {
	store TxStore
	now   func() time.Time
}

// NewService creates a Service. A nil clock uses time.Now.
func NewService(store TxStore, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{store: store, now: now}
}

// Now returns the service clock truncated to the day.
func (s *Service) Now() time.Time {
	return Day(s.now())
}

// =============================================================================
// GOVERNANCE CONFIG
// =============================================================================

// Config returns the current snapshot, publishing defaults on first use.
func (s *Service) Config(ctx context.Context) (GovernanceConfig, error) {
	cfg, err := s.store.LoadConfig(ctx)
	if err == nil {
		return *cfg, nil
	}
	if !errors.Is(err, ErrConfigMissing) {
		return GovernanceConfig{}, err
	}
	var out GovernanceConfig
	err = s.store.WithTx(ctx, func(tx Store) error {
		c, err := s.configIn(ctx, tx)
		out = c
		return err
	})
	return out, err
}

// configIn loads the config inside a transaction, seeding it when missing.
func (s *Service) configIn(ctx context.Context, tx Store) (GovernanceConfig, error) {
	cfg, err := tx.LoadConfig(ctx)
	if err == nil {
		return *cfg, nil
	}
	if !errors.Is(err, ErrConfigMissing) {
		return GovernanceConfig{}, err
	}
	catalog, err := s.catalogIn(ctx, tx)
	if err != nil {
		return GovernanceConfig{}, err
	}
	seeded := NewGovernanceConfig(catalog)
	seeded.UpdatedAt = s.now()
	if err := tx.SaveConfig(ctx, seeded, 0); err != nil {
		return GovernanceConfig{}, fmt.Errorf("seed governance config: %w", err)
	}
	return seeded, nil
}

func (s *Service) catalogIn(ctx context.Context, tx Store) (RoleCatalog, error) {
	catalog, err := tx.ListRoles(ctx)
	if err != nil {
		return nil, err
	}
	if len(catalog) > 0 {
		return catalog, nil
	}
	catalog = DefaultRoleCatalog()
	for _, d := range catalog {
		if err := tx.SaveRole(ctx, d); err != nil {
			return nil, fmt.Errorf("seed role %s: %w", d.Abbreviation, err)
		}
	}
	return catalog, nil
}

// UpdateTeam restaffs roles. expectedVersion 0 skips the version check.
// Clamped negative inputs come back as notices.
func (s *Service) UpdateTeam(ctx context.Context, team map[Role]TeamInput, actor string, expectedVersion int64) (GovernanceConfig, []error, error) {
	var next GovernanceConfig
	var notices []error
	err := s.store.WithTx(ctx, func(tx Store) error {
		cfg, err := s.configIn(ctx, tx)
		if err != nil {
			return err
		}
		if expectedVersion != 0 && cfg.Version != expectedVersion {
			return fmt.Errorf("governance config version %d, expected %d: %w", cfg.Version, expectedVersion, ErrConcurrentModification)
		}
		for r := range team {
			if !cfg.HasRole(r) {
				return &InvalidValueError{Kind: "role", Value: string(r), Err: ErrInvalidRole}
			}
		}
		next, notices = cfg.WithTeam(team, actor, s.now())
		return tx.SaveConfig(ctx, next, cfg.Version)
	})
	return next, notices, err
}

// UpdateQuotas replaces both portfolio quotas.
func (s *Service) UpdateQuotas(ctx context.Context, client, internal float64, actor string, expectedVersion int64) (GovernanceConfig, []error, error) {
	var next GovernanceConfig
	var notices []error
	err := s.store.WithTx(ctx, func(tx Store) error {
		cfg, err := s.configIn(ctx, tx)
		if err != nil {
			return err
		}
		if expectedVersion != 0 && cfg.Version != expectedVersion {
			return fmt.Errorf("governance config version %d, expected %d: %w", cfg.Version, expectedVersion, ErrConcurrentModification)
		}
		next, notices = cfg.WithQuotas(client, internal, actor, s.now())
		return tx.SaveConfig(ctx, next, cfg.Version)
	})
	return next, notices, err
}

// =============================================================================
// ADMISSION
// =============================================================================

// Snapshot reads the config and commitments inside one transaction, so a
// concurrent write is seen entirely or not at all.
func (s *Service) Snapshot(ctx context.Context) (GovernanceConfig, []Commitment, error) {
	var (
		cfg         GovernanceConfig
		commitments []Commitment
	)
	err := s.store.WithTx(ctx, func(tx Store) error {
		var err error
		if cfg, err = s.configIn(ctx, tx); err != nil {
			return err
		}
		commitments, err = tx.ListCommitments(ctx)
		return err
	})
	if err != nil {
		return GovernanceConfig{}, nil, err
	}
	return cfg, commitments, nil
}

// Validate runs a speculative admission check. Nothing is written.
func (s *Service) Validate(ctx context.Context, p Proposal) (*ValidationResult, error) {
	cfg, commitments, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if p.AsOf.IsZero() {
		p.AsOf = s.Now()
	}
	return ValidateCapacity(p, commitments, cfg)
}

// Create admits and stores a new commitment. A rejected admission returns
// an *AdmissionError and stores nothing.
func (s *Service) Create(ctx context.Context, c Commitment) (*Commitment, *ValidationResult, error) {
	var res *ValidationResult
	err := s.store.WithTx(ctx, func(tx Store) error {
		cfg, err := s.configIn(ctx, tx)
		if err != nil {
			return err
		}
		commitments, err := tx.ListCommitments(ctx)
		if err != nil {
			return err
		}

		now := s.now()
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		if c.DeliveryMode == "" {
			c.DeliveryMode = DeliveryStandard
		}
		c.Version = 1
		c.CreatedAt, c.UpdatedAt = now, now

		res, err = ValidateCapacity(ProposalFor(c, Day(now)), commitments, cfg)
		if err != nil {
			return err
		}
		if !res.Approved() {
			return &AdmissionError{Result: res}
		}
		return tx.InsertCommitment(ctx, c)
	})
	if err != nil {
		return nil, res, err
	}
	return &c, res, nil
}

// Update admits and stores an edited commitment. c.Version is the version
// the caller read; 0 skips the check. Locked commitments reject changes to
// FTE, dates, duration or portfolio with ErrCommitmentLocked. Edits that
// leave demand unchanged skip admission.
func (s *Service) Update(ctx context.Context, c Commitment) (*Commitment, *ValidationResult, error) {
	var res *ValidationResult
	err := s.store.WithTx(ctx, func(tx Store) error {
		existing, err := tx.GetCommitment(ctx, c.ID)
		if err != nil {
			return err
		}
		if c.Version != 0 && c.Version != existing.Version {
			return fmt.Errorf("commitment %s version %d, expected %d: %w", c.ID, existing.Version, c.Version, ErrConcurrentModification)
		}
		changed := demandChanged(*existing, c)
		if existing.Locked && changed {
			return fmt.Errorf("commitment %s: %w", c.ID, ErrCommitmentLocked)
		}

		c.Locked = existing.Locked
		c.CreatedAt = existing.CreatedAt
		c.UpdatedAt = s.now()
		c.Version = existing.Version + 1
		if c.DeliveryMode == "" {
			c.DeliveryMode = existing.DeliveryMode
		}

		if changed {
			cfg, err := s.configIn(ctx, tx)
			if err != nil {
				return err
			}
			commitments, err := tx.ListCommitments(ctx)
			if err != nil {
				return err
			}
			proposal := ProposalFor(c, Day(c.UpdatedAt))
			proposal.RoleFTE = withoutRetiredRoles(proposal.RoleFTE, existing.RoleFTE, cfg)
			res, err = ValidateCapacity(proposal, commitments, cfg)
			if err != nil {
				return err
			}
			if !res.Approved() {
				return &AdmissionError{Result: res}
			}
		}
		return tx.UpdateCommitment(ctx, c, existing.Version)
	})
	if err != nil {
		return nil, res, err
	}
	return &c, res, nil
}

// SetLocked freezes or releases a commitment's FTE and dates.
func (s *Service) SetLocked(ctx context.Context, id string, locked bool) (*Commitment, error) {
	var out Commitment
	err := s.store.WithTx(ctx, func(tx Store) error {
		c, err := tx.GetCommitment(ctx, id)
		if err != nil {
			return err
		}
		out = *c
		if out.Locked == locked {
			return nil
		}
		out.Locked = locked
		out.UpdatedAt = s.now()
		out.Version = c.Version + 1
		return tx.UpdateCommitment(ctx, out, c.Version)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Commitments lists every stored commitment.
func (s *Service) Commitments(ctx context.Context) ([]Commitment, error) {
	return s.store.ListCommitments(ctx)
}

// Commitment returns one commitment.
func (s *Service) Commitment(ctx context.Context, id string) (*Commitment, error) {
	return s.store.GetCommitment(ctx, id)
}

func demandChanged(old, next Commitment) bool {
	if old.Portfolio != next.Portfolio || old.TentativeDurationWeeks != next.TentativeDurationWeeks {
		return true
	}
	if !sameDate(old.PlannedStart, next.PlannedStart) || !sameDate(old.PlannedEnd, next.PlannedEnd) {
		return true
	}
	for _, r := range old.RoleFTE.Add(next.RoleFTE).Roles() {
		if !old.RoleFTE.Get(r).Equal(next.RoleFTE.Get(r)) {
			return true
		}
	}
	return false
}

// withoutRetiredRoles drops FTE for roles no longer in cfg unless the edit
// raises it, so a deactivated role does not freeze its commitments.
func withoutRetiredRoles(next, old RoleTotals, cfg GovernanceConfig) RoleTotals {
	out := make(RoleTotals, len(next))
	for r, v := range next {
		if !cfg.HasRole(r) && !v.GreaterThan(old.Get(r)) {
			continue
		}
		out[r] = v
	}
	return out
}

func sameDate(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return Day(*a).Equal(Day(*b))
}

// =============================================================================
// ROLE CATALOG
// =============================================================================

// Roles returns the catalog in display order, seeding defaults on first use.
func (s *Service) Roles(ctx context.Context) (RoleCatalog, error) {
	var catalog RoleCatalog
	err := s.store.WithTx(ctx, func(tx Store) error {
		c, err := s.catalogIn(ctx, tx)
		catalog = c
		return err
	})
	return catalog.Sorted(), err
}

// AddRole registers a new role. Active roles join the config at zero heads.
// A zero DisplayOrder places the role after every existing one.
func (s *Service) AddRole(ctx context.Context, def RoleDefinition) error {
	def.Abbreviation = NormalizeRole(string(def.Abbreviation))
	if def.Abbreviation == "" {
		return &InvalidValueError{Kind: "role", Value: "", Err: ErrInvalidRole}
	}
	return s.store.WithTx(ctx, func(tx Store) error {
		catalog, err := s.catalogIn(ctx, tx)
		if err != nil {
			return err
		}
		if _, ok := catalog.Lookup(def.Abbreviation); ok {
			return fmt.Errorf("role %s: %w", def.Abbreviation, ErrDuplicateRole)
		}
		if def.DisplayOrder == 0 {
			for _, d := range catalog {
				if d.DisplayOrder >= def.DisplayOrder {
					def.DisplayOrder = d.DisplayOrder + 1
				}
			}
		}
		if err := tx.SaveRole(ctx, def); err != nil {
			return err
		}
		return s.syncRole(ctx, tx, append(catalog, def), def)
	})
}

// UpdateRole replaces a role definition. Deactivating removes the role from
// capacity arithmetic; reactivating restores it at zero heads.
func (s *Service) UpdateRole(ctx context.Context, def RoleDefinition) error {
	def.Abbreviation = NormalizeRole(string(def.Abbreviation))
	return s.store.WithTx(ctx, func(tx Store) error {
		catalog, err := s.catalogIn(ctx, tx)
		if err != nil {
			return err
		}
		if _, ok := catalog.Lookup(def.Abbreviation); !ok {
			return fmt.Errorf("role %s: %w", def.Abbreviation, ErrRoleNotFound)
		}
		if err := tx.SaveRole(ctx, def); err != nil {
			return err
		}
		for i := range catalog {
			if catalog[i].Abbreviation == def.Abbreviation {
				catalog[i] = def
			}
		}
		return s.syncRole(ctx, tx, catalog, def)
	})
}

func (s *Service) syncRole(ctx context.Context, tx Store, catalog RoleCatalog, def RoleDefinition) error {
	cfg, err := s.configIn(ctx, tx)
	if err != nil {
		return err
	}
	var next GovernanceConfig
	if def.Active {
		next = cfg.WithRole(def, s.now())
	} else {
		next = cfg.WithoutRole(def.Abbreviation, s.now())
	}
	next = next.WithOrder(catalog.ActiveRoles())
	return tx.SaveConfig(ctx, next, cfg.Version)
}

// =============================================================================
// ALERT
// =============================================================================

// Alert builds the governance alert over every stored commitment.
func (s *Service) Alert(ctx context.Context) (GovernanceAlert, error) {
	commitments, err := s.store.ListCommitments(ctx)
	if err != nil {
		return GovernanceAlert{}, err
	}
	cfg, err := s.store.LoadConfig(ctx)
	if errors.Is(err, ErrConfigMissing) {
		return BuildGovernanceAlert(nil, commitments), nil
	}
	if err != nil {
		return GovernanceAlert{}, err
	}
	return BuildGovernanceAlert(cfg, commitments), nil
}

// Reset deletes every record.
func (s *Service) Reset(ctx context.Context) error {
	return s.store.Reset(ctx)
}
