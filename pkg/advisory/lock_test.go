package advisory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryLock(t *testing.T) {
	var l Lock
	require.True(t, l.TryLock())
	assert.False(t, l.TryLock())
	l.Unlock()
	assert.True(t, l.TryLock())
	l.Unlock()
}

func TestLockContextTimeout(t *testing.T) {
	var l Lock
	require.True(t, l.TryLock())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, l.LockContext(ctx), context.DeadlineExceeded)
}

func TestLockContextWaits(t *testing.T) {
	var l Lock
	require.True(t, l.TryLock())
	go func() {
		time.Sleep(5 * time.Millisecond)
		l.Unlock()
	}()
	require.NoError(t, l.LockContext(context.Background()))
	assert.False(t, l.TryLock())
	l.Unlock()
}

func TestUnlockUnlocked(t *testing.T) {
	var l Lock
	assert.Panics(t, l.Unlock)
}
