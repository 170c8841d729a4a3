package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nestfeed/internal/remote"
	"nestfeed/internal/remote/memory"
	"nestfeed/pkg/derrors"
)

// watch subscribes and forwards every delivered credential onto a channel so
// tests can assert on the stream without racing the dispatcher goroutine.
func watch(c *memory.Credentials) (<-chan *remote.Credential, func()) {
	events := make(chan *remote.Credential, 16)
	unsubscribe := c.OnCredentialChange(func(cred *remote.Credential) {
		events <- cred
	})
	return events, unsubscribe
}

func next(t *testing.T, events <-chan *remote.Credential) *remote.Credential {
	t.Helper()
	select {
	case cred := <-events:
		return cred
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for credential event")
		return nil
	}
}

func TestSubscribeDeliversCurrentStateFirst(t *testing.T) {
	c := memory.NewCredentials("k")
	events, unsubscribe := watch(c)
	defer unsubscribe()

	assert.Nil(t, next(t, events), "no credential yet")
}

func TestCreateSignsInAndNotifies(t *testing.T) {
	c := memory.NewCredentials("k")
	events, unsubscribe := watch(c)
	defer unsubscribe()
	next(t, events)

	cred, err := c.Create(context.Background(), "a@x.com", "secret1")
	require.NoError(t, err)
	assert.NotEmpty(t, cred.Identity)
	assert.Equal(t, "a@x.com", cred.Email)
	assert.NotEmpty(t, cred.Token)

	got := next(t, events)
	require.NotNil(t, got)
	assert.Equal(t, cred.Identity, got.Identity)
}

func TestDuplicateEmailRejected(t *testing.T) {
	c := memory.NewCredentials("k")
	_, err := c.Create(context.Background(), "a@x.com", "secret1")
	require.NoError(t, err)

	_, err = c.Create(context.Background(), "a@x.com", "other")
	require.Error(t, err)
	assert.True(t, derrors.HasCode(err, derrors.CodeAuth))
}

func TestVerifyLifecycle(t *testing.T) {
	c := memory.NewCredentials("k")
	ctx := context.Background()
	created, err := c.Create(ctx, "a@x.com", "secret1")
	require.NoError(t, err)
	require.NoError(t, c.Invalidate(ctx))

	events, unsubscribe := watch(c)
	defer unsubscribe()
	assert.Nil(t, next(t, events))

	cred, err := c.Verify(ctx, "a@x.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, created.Identity, cred.Identity, "identity is stable across sign-ins")

	got := next(t, events)
	require.NotNil(t, got)
	assert.Equal(t, created.Identity, got.Identity)
}

func TestVerifyFailureLeavesStateUntouched(t *testing.T) {
	c := memory.NewCredentials("k")
	ctx := context.Background()
	_, err := c.Create(ctx, "a@x.com", "secret1")
	require.NoError(t, err)

	events, unsubscribe := watch(c)
	defer unsubscribe()
	require.NotNil(t, next(t, events))

	_, err = c.Verify(ctx, "a@x.com", "wrong")
	require.Error(t, err)
	assert.True(t, derrors.HasCode(err, derrors.CodeAuth))

	_, err = c.Verify(ctx, "nobody@x.com", "secret1")
	require.Error(t, err)
	assert.True(t, derrors.HasCode(err, derrors.CodeAuth))

	select {
	case cred := <-events:
		t.Fatalf("unexpected credential event after failed verify: %v", cred)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestInvalidateNotifiesNil(t *testing.T) {
	c := memory.NewCredentials("k")
	ctx := context.Background()
	_, err := c.Create(ctx, "a@x.com", "secret1")
	require.NoError(t, err)

	events, unsubscribe := watch(c)
	defer unsubscribe()
	require.NotNil(t, next(t, events))

	require.NoError(t, c.Invalidate(ctx))
	assert.Nil(t, next(t, events))
}

func TestUnsubscribeWaitsForInFlightCallback(t *testing.T) {
	c := memory.NewCredentials("k")

	inCallback := false
	unsubscribe := c.OnCredentialChange(func(*remote.Credential) {
		inCallback = true
		time.Sleep(20 * time.Millisecond)
		inCallback = false
	})

	_, err := c.Create(context.Background(), "a@x.com", "secret1")
	require.NoError(t, err)

	unsubscribe()
	assert.False(t, inCallback, "unsubscribe returned while a callback was running")
}

func TestParseIdentityRoundTrip(t *testing.T) {
	c := memory.NewCredentials("signing-key")
	cred, err := c.Create(context.Background(), "a@x.com", "secret1")
	require.NoError(t, err)

	identity, err := c.ParseIdentity(cred.Token)
	require.NoError(t, err)
	assert.Equal(t, cred.Identity, identity)

	other := memory.NewCredentials("different-key")
	_, err = other.ParseIdentity(cred.Token)
	require.Error(t, err)
	assert.True(t, derrors.HasCode(err, derrors.CodeAuth))
}
