/*
store.go - Persistence interfaces for the capacity engine

PURPOSE:
  Defines the boundary between the pure engine and the storage
  collaborator. The engine never reads storage itself; Service loads a
  snapshot through these interfaces and hands it to the pure functions.

KEY INTERFACES:
  CommitmentStore: Commitments (insert, versioned update, list)
  ConfigStore:     GovernanceConfig snapshots (compare-and-swap on Version)
  RoleStore:       The role catalog
  TxStore:         All of the above inside one atomic transaction

COMPARE-AND-SWAP:
  SaveConfig and UpdateCommitment take the version the caller read. A
  mismatch returns ErrConcurrentModification and writes nothing, so two
  writers can never both believe they published the latest snapshot.

ADMISSION (TOCTOU):
  Service.Create and Service.Update run validate-then-write inside
  WithTx. Implementations must serialize WithTx so two admissions cannot
  both consume the last slice of a portfolio's capacity.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - capacity/store/memory.go: In-memory for tests and demos

SEE ALSO:
  - service.go: Workflows built on these interfaces
*/
package capacity

import "context"

// CommitmentStore persists commitments.
type CommitmentStore interface {
	// ListCommitments returns every commitment ordered by creation time.
	ListCommitments(ctx context.Context) ([]Commitment, error)

	// GetCommitment returns ErrCommitmentNotFound for unknown ids.
	GetCommitment(ctx context.Context, id string) (*Commitment, error)

	// InsertCommitment stores a new commitment.
	InsertCommitment(ctx context.Context, c Commitment) error

	// UpdateCommitment replaces a commitment whose stored version equals
	// expectedVersion.
	UpdateCommitment(ctx context.Context, c Commitment, expectedVersion int) error
}

// ConfigStore persists governance config snapshots.
type ConfigStore interface {
	// LoadConfig returns ErrConfigMissing before the first SaveConfig.
	LoadConfig(ctx context.Context) (*GovernanceConfig, error)

	// SaveConfig publishes cfg if the stored version equals expectedVersion.
	// expectedVersion 0 means no config may exist yet.
	SaveConfig(ctx context.Context, cfg GovernanceConfig, expectedVersion int64) error
}

// RoleStore persists the role catalog.
type RoleStore interface {
	ListRoles(ctx context.Context) (RoleCatalog, error)

	// SaveRole inserts or replaces a role by abbreviation.
	SaveRole(ctx context.Context, r RoleDefinition) error
}

// Store combines every repository.
type Store interface {
	CommitmentStore
	ConfigStore
	RoleStore
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back, otherwise committed.
	WithTx(ctx context.Context, fn func(Store) error) error

	// Reset deletes every record.
	Reset(ctx context.Context) error
}
