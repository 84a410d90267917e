package connect

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPendingStore_CreateAndGet(t *testing.T) {
	s := NewPendingStore()

	req := s.Create("org-1", "bankdata")
	assert.NotEmpty(t, req.Token)
	assert.Equal(t, StateProviderSelected, req.State)
	assert.Equal(t, "org-1", req.OrgID)
	assert.True(t, req.ExpiresAt.After(req.CreatedAt))

	got, ok := s.Get(req.Token)
	require.True(t, ok)
	assert.Equal(t, req.Token, got.Token)
}

func TestPendingStore_UnknownToken(t *testing.T) {
	s := NewPendingStore()
	_, ok := s.Get("nope")
	assert.False(t, ok)

	err := s.Update("nope", func(*PendingRequest) error { return nil })
	assert.ErrorIs(t, err, ErrRequestNotFound)
}

func TestPendingStore_Expiry(t *testing.T) {
	s := NewPendingStore()
	current := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return current }

	req := s.Create("org-1", "bankdata")

	// Just inside the TTL
	current = current.Add(pendingTTL - time.Second)
	_, ok := s.Get(req.Token)
	assert.True(t, ok)

	// Past the TTL the handshake is gone
	current = current.Add(2 * time.Second)
	_, ok = s.Get(req.Token)
	assert.False(t, ok)
}

func TestPendingStore_UpdateRefreshesExpiry(t *testing.T) {
	s := NewPendingStore()
	current := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return current }

	req := s.Create("org-1", "bankdata")

	// Touch the handshake ten minutes in
	current = current.Add(10 * time.Minute)
	err := s.Update(req.Token, func(r *PendingRequest) error {
		r.Country = "GB"
		return nil
	})
	require.NoError(t, err)

	// 20 minutes after creation, but only 10 after the update: still alive
	current = current.Add(10 * time.Minute)
	got, ok := s.Get(req.Token)
	require.True(t, ok)
	assert.Equal(t, "GB", got.Country)
}

func TestPendingStore_UpdateErrorDoesNotRefresh(t *testing.T) {
	s := NewPendingStore()
	current := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return current }

	req := s.Create("org-1", "bankdata")
	before := req.ExpiresAt

	err := s.Update(req.Token, func(*PendingRequest) error {
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)

	got, ok := s.Get(req.Token)
	require.True(t, ok)
	assert.Equal(t, before, got.ExpiresAt)
}

func TestPendingStore_Delete(t *testing.T) {
	s := NewPendingStore()
	req := s.Create("org-1", "bankdata")

	s.Delete(req.Token)
	_, ok := s.Get(req.Token)
	assert.False(t, ok)
}
