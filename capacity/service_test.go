package capacity_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/capacity-engine/capacity"
	"github.com/warp/capacity-engine/capacity/store"
)

func newService(t *testing.T) *capacity.Service {
	t.Helper()
	svc := capacity.NewService(store.NewMemory(), func() time.Time { return asOf })
	_, _, err := svc.UpdateTeam(context.Background(), map[capacity.Role]capacity.TeamInput{
		capacity.RoleFE: {TeamSize: 10, Efficiency: 1},
		capacity.RoleBE: {TeamSize: 4, Efficiency: 1},
	}, "ceo", 0)
	require.NoError(t, err)
	return svc
}

func TestService_ConfigSeededOnFirstUse(t *testing.T) {
	svc := capacity.NewService(store.NewMemory(), nil)

	cfg, err := svc.Config(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), cfg.Version)
	assert.Equal(t, capacity.DefaultRoles, cfg.ActiveRoles())

	roles, err := svc.Roles(context.Background())
	require.NoError(t, err)
	assert.Len(t, roles, 4)
}

func TestService_UpdateQuotas_StaleVersionConflicts(t *testing.T) {
	// GIVEN: Two administrators reading the same version
	ctx := context.Background()
	svc := newService(t)
	cfg, err := svc.Config(ctx)
	require.NoError(t, err)

	// WHEN: Both write against it
	_, _, err = svc.UpdateQuotas(ctx, 0.6, 0.4, "cfo", cfg.Version)
	require.NoError(t, err)
	_, _, err = svc.UpdateTeam(ctx, map[capacity.Role]capacity.TeamInput{capacity.RoleFE: {TeamSize: 1, Efficiency: 1}}, "ceo", cfg.Version)

	// THEN: The second loses the race and nothing partial is visible
	assert.ErrorIs(t, err, capacity.ErrConcurrentModification)
	assert.True(t, capacity.IsRetryable(err))
	after, err := svc.Config(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, after.Roles[capacity.RoleFE].TeamSize)
	assert.Equal(t, "0.6", after.Quota(capacity.PortfolioClient).String())
	assert.Equal(t, cfg.Version+1, after.Version)
}

func TestService_UpdateTeam_UnknownRoleRejected(t *testing.T) {
	svc := newService(t)
	_, _, err := svc.UpdateTeam(context.Background(), map[capacity.Role]capacity.TeamInput{"QA": {TeamSize: 1}}, "ceo", 0)
	assert.ErrorIs(t, err, capacity.ErrInvalidRole)
}

func TestService_CreateRejectedStoresNothing(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	_, res, err := svc.Create(ctx, capacity.Commitment{
		Title:     "Too big",
		Portfolio: capacity.PortfolioClient,
		RoleFTE:   fte(map[capacity.Role]float64{capacity.RoleFE: 6}),
	})

	var admission *capacity.AdmissionError
	require.ErrorAs(t, err, &admission)
	assert.Equal(t, capacity.StatusRejected, res.Status)
	list, err := svc.Commitments(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestService_ConcurrentAdmissionsCannotShareLastSlice(t *testing.T) {
	// GIVEN: FE client capacity 5.0 with 3.0 already committed
	ctx := context.Background()
	svc := newService(t)
	_, _, err := svc.Create(ctx, capacity.Commitment{
		Portfolio:    capacity.PortfolioClient,
		RoleFTE:      fte(map[capacity.Role]float64{capacity.RoleFE: 3}),
		PlannedStart: date(2025, 3, 1),
		PlannedEnd:   date(2025, 3, 31),
	})
	require.NoError(t, err)

	// WHEN: Two proposals of 2.0 each race for the remaining 2.0
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = svc.Create(ctx, capacity.Commitment{
				Portfolio:    capacity.PortfolioClient,
				RoleFTE:      fte(map[capacity.Role]float64{capacity.RoleFE: 2}),
				PlannedStart: date(2025, 3, 10),
				PlannedEnd:   date(2025, 3, 20),
			})
		}(i)
	}
	wg.Wait()

	// THEN: Exactly one is admitted
	admitted := 0
	for _, err := range errs {
		if err == nil {
			admitted++
		} else {
			assert.ErrorIs(t, err, capacity.ErrCapacityExceeded)
		}
	}
	assert.Equal(t, 1, admitted)
}

func TestService_LockedCommitmentRejectsDemandEdits(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	c, _, err := svc.Create(ctx, capacity.Commitment{
		Title:     "Portal",
		Portfolio: capacity.PortfolioInternal,
		RoleFTE:   fte(map[capacity.Role]float64{capacity.RoleBE: 1}),
	})
	require.NoError(t, err)

	locked, err := svc.SetLocked(ctx, c.ID, true)
	require.NoError(t, err)
	assert.True(t, locked.Locked)
	assert.Equal(t, 2, locked.Version)

	// FTE edit is refused
	edit := *locked
	edit.RoleFTE = fte(map[capacity.Role]float64{capacity.RoleBE: 1.5})
	_, _, err = svc.Update(ctx, edit)
	assert.ErrorIs(t, err, capacity.ErrCommitmentLocked)
	assert.True(t, capacity.IsConflict(err))

	// Title edit is allowed and keeps the lock
	rename := *locked
	rename.Title = "Partner portal"
	got, res, err := svc.Update(ctx, rename)
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.True(t, got.Locked)
	assert.Equal(t, 3, got.Version)

	// Unlocking re-enables FTE edits
	unlocked, err := svc.SetLocked(ctx, c.ID, false)
	require.NoError(t, err)
	edit = *unlocked
	edit.RoleFTE = fte(map[capacity.Role]float64{capacity.RoleBE: 1.5})
	got, res, err = svc.Update(ctx, edit)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "75.0%", res.Utilization[capacity.RoleBE].String())
	assert.True(t, got.RoleFTE.Get(capacity.RoleBE).Equal(dec(1.5)))
}

func TestService_UpdateStaleVersionAndMissing(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	c, _, err := svc.Create(ctx, capacity.Commitment{Portfolio: capacity.PortfolioClient})
	require.NoError(t, err)

	stale := *c
	stale.Version = 7
	_, _, err = svc.Update(ctx, stale)
	assert.ErrorIs(t, err, capacity.ErrConcurrentModification)

	_, _, err = svc.Update(ctx, capacity.Commitment{ID: "nope"})
	assert.True(t, capacity.IsNotFound(err))
	_, err = svc.SetLocked(ctx, "nope", true)
	assert.ErrorIs(t, err, capacity.ErrCommitmentNotFound)
}

func TestService_RoleCatalogDrivesConfig(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	require.NoError(t, svc.AddRole(ctx, capacity.RoleDefinition{
		Abbreviation: "qa", Name: "Quality", Active: true, DisplayOrder: 5,
	}))
	err := svc.AddRole(ctx, capacity.RoleDefinition{Abbreviation: "QA", Name: "Again"})
	assert.ErrorIs(t, err, capacity.ErrDuplicateRole)

	cfg, err := svc.Config(ctx)
	require.NoError(t, err)
	assert.Equal(t, []capacity.Role{capacity.RoleFE, capacity.RoleBE, capacity.RoleAI, capacity.RolePM, "QA"}, cfg.ActiveRoles())

	pm, ok := capacity.DefaultRoleCatalog().Lookup(capacity.RolePM)
	require.True(t, ok)
	pm.Active = false
	require.NoError(t, svc.UpdateRole(ctx, pm))

	cfg, err = svc.Config(ctx)
	require.NoError(t, err)
	assert.False(t, cfg.HasRole(capacity.RolePM))

	err = svc.UpdateRole(ctx, capacity.RoleDefinition{Abbreviation: "XX"})
	assert.True(t, errors.Is(err, capacity.ErrRoleNotFound))
}

func TestService_DeactivatedRoleDoesNotFreezeCommitments(t *testing.T) {
	// GIVEN: A commitment staffing FE and BE, then BE is deactivated
	ctx := context.Background()
	svc := newService(t)
	c, _, err := svc.Create(ctx, capacity.Commitment{
		Title:     "Portal",
		Portfolio: capacity.PortfolioInternal,
		RoleFTE:   fte(map[capacity.Role]float64{capacity.RoleFE: 1, capacity.RoleBE: 0.5}),
	})
	require.NoError(t, err)
	be, ok := capacity.DefaultRoleCatalog().Lookup(capacity.RoleBE)
	require.True(t, ok)
	be.Active = false
	require.NoError(t, svc.UpdateRole(ctx, be))

	// WHEN: Editing FE while the stored BE key remains
	edit := *c
	edit.RoleFTE = fte(map[capacity.Role]float64{capacity.RoleFE: 2, capacity.RoleBE: 0.5})
	got, res, err := svc.Update(ctx, edit)

	// THEN: The edit is admitted on the active roles only
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "40.0%", res.Utilization[capacity.RoleFE].String())
	assert.NotContains(t, res.Utilization, capacity.RoleBE)
	assert.True(t, got.RoleFTE.Get(capacity.RoleFE).Equal(dec(2)))

	// Zeroing the retired role is fine, raising it is not
	edit = *got
	edit.RoleFTE = fte(map[capacity.Role]float64{capacity.RoleFE: 2, capacity.RoleBE: 0})
	got, _, err = svc.Update(ctx, edit)
	require.NoError(t, err)

	edit = *got
	edit.RoleFTE = fte(map[capacity.Role]float64{capacity.RoleFE: 2, capacity.RoleBE: 1})
	_, _, err = svc.Update(ctx, edit)
	assert.ErrorIs(t, err, capacity.ErrInvalidRole)
}

// txOnlyStore fails reads made outside WithTx.
type txOnlyStore struct {
	*store.Memory
}

func (s txOnlyStore) ListCommitments(context.Context) ([]capacity.Commitment, error) {
	return nil, errors.New("read outside transaction")
}

func (s txOnlyStore) LoadConfig(context.Context) (*capacity.GovernanceConfig, error) {
	return nil, errors.New("read outside transaction")
}

func TestService_ValidateReadsOneSnapshot(t *testing.T) {
	// GIVEN: A store whose direct reads fail
	ctx := context.Background()
	mem := store.NewMemory()
	seeded := capacity.NewService(mem, func() time.Time { return asOf })
	_, _, err := seeded.UpdateTeam(ctx, map[capacity.Role]capacity.TeamInput{
		capacity.RoleFE: {TeamSize: 10, Efficiency: 1},
	}, "ceo", 0)
	require.NoError(t, err)
	svc := capacity.NewService(txOnlyStore{mem}, func() time.Time { return asOf })

	// WHEN: Validating a proposal
	res, err := svc.Validate(ctx, capacity.Proposal{
		Portfolio: capacity.PortfolioClient,
		RoleFTE:   fte(map[capacity.Role]float64{capacity.RoleFE: 4}),
	})

	// THEN: Config and commitments both came from the transaction
	require.NoError(t, err)
	assert.Equal(t, "80.0%", res.Utilization[capacity.RoleFE].String())
}

func TestService_ValidateUsesClockWhenAsOfUnset(t *testing.T) {
	svc := newService(t)
	res, err := svc.Validate(context.Background(), capacity.Proposal{
		Portfolio: capacity.PortfolioClient,
		RoleFTE:   fte(map[capacity.Role]float64{capacity.RoleFE: 4}),
	})
	require.NoError(t, err)
	assert.Equal(t, asOf, res.Window.Start)
	assert.True(t, res.Approved())
}

func TestService_AlertWithoutConfig(t *testing.T) {
	svc := capacity.NewService(store.NewMemory(), nil)
	alert, err := svc.Alert(context.Background())
	require.NoError(t, err)
	assert.Equal(t, capacity.AlertCritical, alert.Status)
}
