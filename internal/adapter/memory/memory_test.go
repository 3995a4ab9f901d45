package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/enrich-service/internal/entity"
	"github.com/user/enrich-service/internal/repository"
)

func TestDatasetRepo(t *testing.T) {
	ctx := context.Background()
	repo := NewDatasetRepo()

	_, err := repo.Find(ctx, "nope")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	ds := &entity.Dataset{ID: "d1", Name: "companies.csv"}
	require.NoError(t, repo.Save(ctx, ds))
	got, err := repo.Find(ctx, "d1")
	require.NoError(t, err)
	assert.Same(t, ds, got)

	require.NoError(t, repo.Delete(ctx, "d1"))
	assert.ErrorIs(t, repo.Delete(ctx, "d1"), repository.ErrNotFound)
}

func TestRunRepo(t *testing.T) {
	ctx := context.Background()
	repo := NewRunRepo()

	run := &entity.Run{ID: "r1", Status: entity.RunRunning, Columns: []string{"a"}}
	require.NoError(t, repo.SaveRun(ctx, run))
	run.Status = entity.RunCompleted
	run.Columns[0] = "changed"

	got, err := repo.FindRun(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, entity.RunRunning, got.Status, "stored copy is independent")
	assert.Equal(t, []string{"a"}, got.Columns)

	require.NoError(t, repo.SaveRows(ctx, "r1", []entity.OutputRow{{Index: 2}, {Index: 0}}))
	require.NoError(t, repo.SaveRows(ctx, "r1", []entity.OutputRow{{Index: 1}, {Index: 2, Outcome: entity.OutcomeOK}}))

	rows, err := repo.FindRows(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []int{0, 1, 2}, []int{rows[0].Index, rows[1].Index, rows[2].Index})
	assert.Equal(t, entity.OutcomeOK, rows[2].Outcome)

	_, err = repo.FindRun(ctx, "r2")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
