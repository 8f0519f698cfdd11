package credential

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "civitas/pkg/domain"
	"civitas/pkg/platform/sentinel"
)

func TestInMemoryStore(t *testing.T) {
	ctx := context.Background()
	alice := id.AccountID(uuid.New())
	bob := id.AccountID(uuid.New())
	mintedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("mint allocates sequential ids and bumps counters", func(t *testing.T) {
		store := NewInMemoryStore()

		first, err := store.Mint(ctx, alice, mintedAt)
		require.NoError(t, err)
		second, err := store.Mint(ctx, alice, mintedAt)
		require.NoError(t, err)

		assert.Equal(t, id.CredentialID(0), first.ID)
		assert.Equal(t, id.CredentialID(1), second.ID)

		counters, err := store.Counters(ctx)
		require.NoError(t, err)
		assert.Equal(t, id.CredentialID(2), counters.NextID)
		assert.Equal(t, uint64(2), counters.TotalSupply)
	})

	t.Run("burn keeps the id counter", func(t *testing.T) {
		store := NewInMemoryStore()
		minted, err := store.Mint(ctx, alice, mintedAt)
		require.NoError(t, err)

		require.NoError(t, store.Burn(ctx, minted.ID))

		_, err = store.Get(ctx, minted.ID)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)

		counters, err := store.Counters(ctx)
		require.NoError(t, err)
		assert.Equal(t, id.CredentialID(1), counters.NextID)
		assert.Equal(t, uint64(0), counters.TotalSupply)
	})

	t.Run("burn of a missing id reports not found", func(t *testing.T) {
		store := NewInMemoryStore()
		err := store.Burn(ctx, id.CredentialID(9))
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("transfer re-checks the owner", func(t *testing.T) {
		store := NewInMemoryStore()
		minted, err := store.Mint(ctx, alice, mintedAt)
		require.NoError(t, err)

		err = store.Transfer(ctx, bob, alice, minted.ID)
		assert.ErrorIs(t, err, sentinel.ErrConflict)

		require.NoError(t, store.Transfer(ctx, alice, bob, minted.ID))
		cred, err := store.Get(ctx, minted.ID)
		require.NoError(t, err)
		assert.Equal(t, bob, cred.Owner)
	})

	t.Run("transfer clears the per-credential approval", func(t *testing.T) {
		store := NewInMemoryStore()
		minted, err := store.Mint(ctx, alice, mintedAt)
		require.NoError(t, err)

		require.NoError(t, store.SetApproval(ctx, minted.ID, bob))
		require.NoError(t, store.Transfer(ctx, alice, bob, minted.ID))

		approved, err := store.Approved(ctx, minted.ID)
		require.NoError(t, err)
		assert.True(t, approved.IsZero())
	})

	t.Run("operators toggle per owner", func(t *testing.T) {
		store := NewInMemoryStore()

		require.NoError(t, store.SetOperator(ctx, alice, bob, true))
		ok, err := store.IsOperator(ctx, alice, bob)
		require.NoError(t, err)
		assert.True(t, ok)

		// Direction matters.
		ok, err = store.IsOperator(ctx, bob, alice)
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, store.SetOperator(ctx, alice, bob, false))
		ok, err = store.IsOperator(ctx, alice, bob)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("receiver registration round-trips and clears", func(t *testing.T) {
		store := NewInMemoryStore()

		endpoint, err := store.Receiver(ctx, alice)
		require.NoError(t, err)
		assert.Empty(t, endpoint)

		require.NoError(t, store.SetReceiver(ctx, alice, "http://receiver.test/hook"))
		endpoint, err = store.Receiver(ctx, alice)
		require.NoError(t, err)
		assert.Equal(t, "http://receiver.test/hook", endpoint)

		require.NoError(t, store.SetReceiver(ctx, alice, ""))
		endpoint, err = store.Receiver(ctx, alice)
		require.NoError(t, err)
		assert.Empty(t, endpoint)
	})

	t.Run("owner index lists in id order", func(t *testing.T) {
		store := NewInMemoryStore()
		for range 3 {
			_, err := store.Mint(ctx, alice, mintedAt)
			require.NoError(t, err)
		}
		_, err := store.Mint(ctx, bob, mintedAt)
		require.NoError(t, err)

		creds, err := store.CredentialsOf(ctx, alice)
		require.NoError(t, err)
		require.Len(t, creds, 3)
		for i, cred := range creds {
			assert.Equal(t, id.CredentialID(uint64(i)), cred.ID)
		}

		balance, err := store.BalanceOf(ctx, alice)
		require.NoError(t, err)
		assert.Equal(t, 3, balance)
	})
}

func TestMemoryTx(t *testing.T) {
	tx := NewMemoryTx()

	t.Run("propagates the callback error", func(t *testing.T) {
		sentinelErr := errors.New("boom")
		err := tx.RunInTx(context.Background(), func(context.Context) error {
			return sentinelErr
		})
		assert.ErrorIs(t, err, sentinelErr)
	})

	t.Run("runs the callback with the caller's context", func(t *testing.T) {
		type key struct{}
		ctx := context.WithValue(context.Background(), key{}, "value")
		err := tx.RunInTx(ctx, func(inner context.Context) error {
			assert.Equal(t, "value", inner.Value(key{}))
			return nil
		})
		assert.NoError(t, err)
	})
}
