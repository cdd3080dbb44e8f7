package inmem_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/profile-projection/modules/projection/domain"
	"github.com/iota-uz/profile-projection/modules/projection/infrastructure/persistence/inmem"
)

func TestInTx_FailureLeavesStoreUntouched(t *testing.T) {
	repo := seedTree(t)
	ctx := context.Background()
	before := repo.Assignments()
	boom := errors.New("boom")

	err := repo.InTx(ctx, func(ctx context.Context) error {
		require.NoError(t, repo.CreateProfile(ctx, profile("u3", domain.ProfileKindUser)))
		require.NoError(t, repo.CreateProfileAssignment(ctx, member("u3", domain.ProfileKindUser, "g1", domain.ObjectTypeGroup)))
		require.NoError(t, repo.DeleteProfileAssignment(ctx, member("u1", domain.ProfileKindUser, "g1", domain.ObjectTypeGroup)))
		require.NoError(t, repo.SaveCalculatedClientSettings(ctx, "u2", []domain.ClientSetting{{Key: "theme"}}))
		require.NoError(t, repo.SaveProjectionState(ctx, domain.ProjectionState{StreamName: "s", EventNumber: 1}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	assert.Equal(t, before, repo.Assignments())
	assert.Equal(t, 5, repo.ProfileCount())
	assert.Empty(t, repo.CalculatedClientSettings("u2"))
	_, ok := repo.ProjectionState("s")
	assert.False(t, ok)

	// the same writes succeed on a second attempt
	require.NoError(t, repo.InTx(ctx, func(ctx context.Context) error {
		if err := repo.CreateProfile(ctx, profile("u3", domain.ProfileKindUser)); err != nil {
			return err
		}
		return repo.CreateProfileAssignment(ctx, member("u3", domain.ProfileKindUser, "g1", domain.ObjectTypeGroup))
	}))
	assert.Equal(t, 6, repo.ProfileCount())
	assert.Len(t, repo.Assignments(), len(before)+1)
}

func TestInTx_WritesVisibleOnlyInsideUntilCommit(t *testing.T) {
	repo := inmem.NewRepository()
	ctx := context.Background()

	require.NoError(t, repo.InTx(ctx, func(txCtx context.Context) error {
		require.NoError(t, repo.CreateTag(txCtx, domain.Tag{ID: "t1", Name: "vip"}))

		_, err := repo.GetTag(txCtx, "t1")
		require.NoError(t, err)
		_, err = repo.GetTag(ctx, "t1")
		require.ErrorIs(t, err, domain.ErrNotFound)
		return nil
	}))

	_, err := repo.GetTag(ctx, "t1")
	require.NoError(t, err)
}

func TestInTx_NestedJoinsOuter(t *testing.T) {
	repo := inmem.NewRepository()
	ctx := context.Background()
	boom := errors.New("boom")

	err := repo.InTx(ctx, func(ctx context.Context) error {
		require.NoError(t, repo.InTx(ctx, func(ctx context.Context) error {
			return repo.CreateProfile(ctx, profile("u1", domain.ProfileKindUser))
		}))
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, repo.ProfileCount())
}

func TestInTx_UnitsAreSerialized(t *testing.T) {
	repo := inmem.NewRepository()
	entered := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		_ = repo.InTx(context.Background(), func(context.Context) error {
			close(entered)
			time.Sleep(20 * time.Millisecond)
			return nil
		})
	}()
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	err := repo.InTx(ctx, func(context.Context) error { return nil })
	require.ErrorIs(t, err, context.DeadlineExceeded)
	<-done
}
