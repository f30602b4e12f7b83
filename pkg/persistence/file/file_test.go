package file

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadmill/leadmill/pkg/models"
	"github.com/leadmill/leadmill/pkg/persistence"
)

func activeEnrollment(id, customerID string) *models.Enrollment {
	return &models.Enrollment{
		ID:         id,
		StoreID:    "store-1",
		WorkflowID: "wf-1",
		CustomerID: customerID,
		Status:     models.EnrollmentStatusActive,
		DedupKey:   models.EnrollmentDedupKey("wf-1", customerID),
	}
}

func TestEnrollmentCreate_DedupCollision(t *testing.T) {
	ctx := context.Background()
	p := NewPersistence(t.TempDir())
	repo := p.EnrollmentRepository()

	require.NoError(t, repo.Create(ctx, activeEnrollment("e1", "cust-1")))

	err := repo.Create(ctx, activeEnrollment("e2", "cust-1"))
	require.Error(t, err)
	assert.True(t, persistence.IsDuplicateEnrollment(err))

	// A different customer does not collide.
	require.NoError(t, repo.Create(ctx, activeEnrollment("e3", "cust-2")))
}

func TestEnrollmentCreate_DedupIgnoresTerminalRows(t *testing.T) {
	ctx := context.Background()
	p := NewPersistence(t.TempDir())
	repo := p.EnrollmentRepository()

	first := activeEnrollment("e1", "cust-1")
	require.NoError(t, repo.Create(ctx, first))

	first.Status = models.EnrollmentStatusCompleted
	require.NoError(t, repo.Update(ctx, first))

	require.NoError(t, repo.Create(ctx, activeEnrollment("e2", "cust-1")))
}

func TestClaimPending_LeaseBlocksSecondClaim(t *testing.T) {
	ctx := context.Background()
	p := NewPersistence(t.TempDir())
	repo := p.EnrollmentRepository()

	require.NoError(t, repo.Create(ctx, activeEnrollment("e1", "cust-1")))

	now := time.Now().UTC()

	claimed, err := repo.ClaimPending(ctx, "store-1", now, 5*time.Minute, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	require.NotNil(t, claimed[0].ProcessingUntil)

	// The lease hides the enrollment from a second claimant.
	claimed, err = repo.ClaimPending(ctx, "store-1", now, 5*time.Minute, 10)
	require.NoError(t, err)
	assert.Empty(t, claimed)

	// An expired lease is reclaimable.
	claimed, err = repo.ClaimPending(ctx, "store-1", now.Add(6*time.Minute), 5*time.Minute, 10)
	require.NoError(t, err)
	assert.Len(t, claimed, 1)
}

func TestClaimPending_RespectsNextStepAt(t *testing.T) {
	ctx := context.Background()
	p := NewPersistence(t.TempDir())
	repo := p.EnrollmentRepository()

	now := time.Now().UTC()
	future := now.Add(time.Hour)

	deferred := activeEnrollment("e1", "cust-1")
	deferred.NextStepAt = &future
	require.NoError(t, repo.Create(ctx, deferred))

	claimed, err := repo.ClaimPending(ctx, "store-1", now, 5*time.Minute, 10)
	require.NoError(t, err)
	assert.Empty(t, claimed)

	claimed, err = repo.ClaimPending(ctx, "store-1", future.Add(time.Minute), 5*time.Minute, 10)
	require.NoError(t, err)
	assert.Len(t, claimed, 1)
}

func TestClaimPending_HonorsLimit(t *testing.T) {
	ctx := context.Background()
	p := NewPersistence(t.TempDir())
	repo := p.EnrollmentRepository()

	for _, id := range []string{"e1", "e2", "e3"} {
		require.NoError(t, repo.Create(ctx, activeEnrollment(id, "cust-"+id)))
	}

	claimed, err := repo.ClaimPending(ctx, "store-1", time.Now().UTC(), 5*time.Minute, 2)
	require.NoError(t, err)
	assert.Len(t, claimed, 2)
}

func TestEnrollmentUpdate_ClearsLease(t *testing.T) {
	ctx := context.Background()
	p := NewPersistence(t.TempDir())
	repo := p.EnrollmentRepository()

	require.NoError(t, repo.Create(ctx, activeEnrollment("e1", "cust-1")))

	claimed, err := repo.ClaimPending(ctx, "store-1", time.Now().UTC(), 5*time.Minute, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	claimed[0].CurrentStep = 1
	require.NoError(t, repo.Update(ctx, claimed[0]))

	loaded, err := repo.GetByID(ctx, "store-1", "e1")
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.CurrentStep)
	assert.Nil(t, loaded.ProcessingUntil)
}

func TestPersistence_SurvivesReload(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	p := NewPersistence(dir)
	require.NoError(t, p.WorkflowRepository().Save(ctx, &models.Workflow{
		ID:          "wf-1",
		StoreID:     "store-1",
		Name:        "Welcome series",
		TriggerType: models.TriggerCustomerCreated,
		Status:      models.WorkflowStatusActive,
	}))
	require.NoError(t, p.EnrollmentRepository().Create(ctx, activeEnrollment("e1", "cust-1")))
	require.NoError(t, p.Close(ctx))

	reloaded := NewPersistence(dir)

	workflow, err := reloaded.WorkflowRepository().GetByID(ctx, "store-1", "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "Welcome series", workflow.Name)

	enrollment, err := reloaded.EnrollmentRepository().GetByID(ctx, "store-1", "e1")
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusActive, enrollment.Status)
}

func TestGetActive(t *testing.T) {
	ctx := context.Background()
	p := NewPersistence(t.TempDir())
	repo := p.EnrollmentRepository()

	found, err := repo.GetActive(ctx, "store-1", "wf-1", "cust-1")
	require.NoError(t, err)
	assert.Nil(t, found)

	require.NoError(t, repo.Create(ctx, activeEnrollment("e1", "cust-1")))

	found, err = repo.GetActive(ctx, "store-1", "wf-1", "cust-1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "e1", found.ID)
}
