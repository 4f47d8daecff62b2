package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/raga-mitra/raga_mitra/internal/logging"
)

func testSession(token string) Session {
	return Session{
		Token:     token,
		User:      User{ID: "u1", Phone: "+911234567890"},
		ExpiresAt: time.Now().Add(time.Hour),
	}
}

func TestActivateIsIdempotent(t *testing.T) {
	store := NewMemoryStore()
	boot := NewBootstrap(store, logging.Discard())
	var events []Event
	boot.Subscribe(func(ev Event) { events = append(events, ev) })

	ctx := context.Background()
	require.NoError(t, boot.Activate(ctx, testSession("t1")))
	first, _ := boot.Current()
	require.NoError(t, boot.Activate(ctx, testSession("t1")))
	second, ok := boot.Current()

	require.True(t, ok)
	require.Equal(t, first, second)
	require.Equal(t, 1, store.Saves)
	require.Len(t, events, 1)
	require.Equal(t, LoggedIn, events[0].Kind)

	require.NoError(t, boot.Activate(ctx, testSession("t2")))
	require.Equal(t, 2, store.Saves)
	require.Len(t, events, 2)
}

func TestLogoutNotifiesAndUnsubscribe(t *testing.T) {
	boot := NewBootstrap(NewMemoryStore(), logging.Discard())
	var kinds []EventKind
	cancel := boot.Subscribe(func(ev Event) { kinds = append(kinds, ev.Kind) })

	ctx := context.Background()
	require.NoError(t, boot.Activate(ctx, testSession("t1")))
	require.NoError(t, boot.Logout(ctx))
	require.NoError(t, boot.Logout(ctx))
	require.Equal(t, []EventKind{LoggedIn, LoggedOut}, kinds)

	cancel()
	require.NoError(t, boot.Activate(ctx, testSession("t2")))
	require.Len(t, kinds, 2)

	_, ok := boot.Current()
	require.True(t, ok)
}

func TestFileStoreRestore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	ctx := context.Background()

	boot := NewBootstrap(NewFileStore(path), logging.Discard())
	_, ok, err := boot.Restore(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, boot.Activate(ctx, testSession("t1")))
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	restored, ok, err := NewBootstrap(NewFileStore(path), logging.Discard()).Restore(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "t1", restored.Token)
	require.Equal(t, "+911234567890", restored.User.Phone)
	require.False(t, restored.IssuedAt.IsZero())

	require.NoError(t, boot.Logout(ctx))
	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err))
}

func TestRestoreDropsExpiredSession(t *testing.T) {
	store := NewMemoryStore()
	expired := testSession("old")
	expired.ExpiresAt = time.Now().Add(-time.Minute)
	require.NoError(t, store.Save(context.Background(), expired))

	boot := NewBootstrap(store, logging.Discard())
	_, ok, err := boot.Restore(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
	_, err = store.Load(context.Background())
	require.ErrorIs(t, err, ErrNoSession)
}
