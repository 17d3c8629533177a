package monitor

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SteelMorgan/logstream/internal/domain"
)

func TestSetCurrentFileClearsPosition(t *testing.T) {
	s := NewState()
	snap := snapOf("hello\n")
	_, ok := s.StartMonitoring("/a.log", &snap)
	require.True(t, ok)

	s.SetCurrentFile("/b.log")

	fs := s.Snapshot()
	assert.Equal(t, "/b.log", fs.CurrentFile)
	assert.Zero(t, fs.CurrentOffset)
	assert.Nil(t, fs.InitialHash)
	assert.True(t, fs.LastModified.IsZero())
}

func TestStartMonitoring(t *testing.T) {
	s := NewState()
	snap := snapOf("existing line\n")

	sess, ok := s.StartMonitoring("/a.log", &snap)
	require.True(t, ok)
	assert.False(t, sess.Resumed)
	assert.Equal(t, snap.Size, sess.Offset, "fresh sessions start at end of file")

	t.Run("idempotent while running", func(t *testing.T) {
		_, ok := s.StartMonitoring("/a.log", &snap)
		assert.False(t, ok)
	})

	var resumed Session
	t.Run("resume keeps offset and bumps generation", func(t *testing.T) {
		s.StopMonitoring()
		assert.False(t, s.IsActive(sess))

		var ok bool
		resumed, ok = s.StartMonitoring("/a.log", nil)
		require.True(t, ok)
		assert.True(t, resumed.Resumed)
		assert.Equal(t, sess.Offset, resumed.Offset)
		assert.Greater(t, resumed.Generation, sess.Generation)
		assert.False(t, s.IsActive(sess), "old loop must see it is stale")
		assert.True(t, s.IsActive(resumed))
	})

	t.Run("other path ends the session", func(t *testing.T) {
		s.SetCurrentFile("/b.log")
		assert.False(t, s.IsActive(resumed))
		assert.False(t, s.Snapshot().IsRunning)
		current, ok := s.CurrentFile()
		assert.True(t, ok)
		assert.Equal(t, "/b.log", current)
	})
}

func TestEndMonitoringOnlyForCurrentGeneration(t *testing.T) {
	s := NewState()
	first, _ := s.StartMonitoring("/a.log", nil)
	s.StopMonitoring()
	second, _ := s.StartMonitoring("/a.log", nil)

	s.EndMonitoring(first)
	assert.True(t, s.IsActive(second))

	s.EndMonitoring(second)
	assert.False(t, s.Snapshot().IsRunning)
}

func TestReconcileTruncation(t *testing.T) {
	s := NewState()
	initial := snapOf("line one\nline two\n")
	sess, _ := s.StartMonitoring("/a.log", &initial)

	change, offset, ok := s.Reconcile(sess, snapOf("line"), false)
	require.True(t, ok)
	assert.Equal(t, Truncated, change)
	assert.Zero(t, offset)
	assert.Equal(t, snapOf("line").Digest(), *s.Snapshot().InitialHash)
}

func TestReconcileContentChanged(t *testing.T) {
	s := NewState()
	initial := snapOf("first\n")
	sess, _ := s.StartMonitoring("/a.log", &initial)

	change, offset, ok := s.Reconcile(sess, snapOf("rotated content\n"), false)
	require.True(t, ok)
	assert.Equal(t, ContentChanged, change)
	assert.Zero(t, offset)
}

func TestReconcileSkippedWhileLoaderOwnsOffset(t *testing.T) {
	s := NewState()
	initial := snapOf("a\n")
	sess, _ := s.StartMonitoring("/a.log", &initial)

	_, _, err := s.AcquireForLoad("/a.log", false)
	require.NoError(t, err)

	_, _, ok := s.Reconcile(sess, snapOf("a\nb\n"), false)
	assert.False(t, ok)
	assert.False(t, s.CommitRead(sess, 2, 2))

	s.ReleaseLoader()
	_, _, ok = s.Reconcile(sess, snapOf("a\nb\n"), false)
	assert.True(t, ok)
}

func TestCommitReadCompareAndSwap(t *testing.T) {
	s := NewState()
	initial := snapOf("a\n")
	sess, _ := s.StartMonitoring("/a.log", &initial)

	assert.True(t, s.CommitRead(sess, 2, 4))
	assert.Equal(t, uint64(6), s.Snapshot().CurrentOffset)

	assert.False(t, s.CommitRead(sess, 2, 4), "stale offset must be rejected")
	assert.Equal(t, uint64(6), s.Snapshot().CurrentOffset)
}

func TestAcquireForLoad(t *testing.T) {
	s := NewState()
	initial := snapOf("0123456789")
	s.StartMonitoring("/a.log", &initial)

	lease, start, err := s.AcquireForLoad("/a.log", false)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), start)
	assert.True(t, s.Held(lease))

	_, _, err = s.AcquireForLoad("/a.log", false)
	assert.ErrorIs(t, err, domain.ErrLoadInProgress)
	s.ReleaseLoader()
	assert.False(t, s.Held(lease))

	_, start, err = s.AcquireForLoad("/a.log", true)
	require.NoError(t, err)
	assert.Zero(t, start)
	s.ReleaseLoader()

	lease, _, err = s.AcquireForLoad("/a.log", false)
	require.NoError(t, err)
	s.AdvanceOffset(lease, 5)
	s.ReleaseLoader()

	_, start, err = s.AcquireForLoad("/other.log", false)
	require.NoError(t, err)
	assert.Zero(t, start)
	assert.Nil(t, s.Snapshot().InitialHash)
	s.ReleaseLoader()
}

func TestReconcileLoad(t *testing.T) {
	s := NewState()
	lease, _, err := s.AcquireForLoad("/a.log", false)
	require.NoError(t, err)

	start, reset, ok := s.ReconcileLoad(lease, snapOf("abc\n"))
	require.True(t, ok)
	assert.True(t, reset, "no stored identity counts as a reset")
	assert.Zero(t, start)
	require.NotNil(t, s.Snapshot().InitialHash)

	require.True(t, s.AdvanceOffset(lease, 4))
	s.ReleaseLoader()

	lease, _, err = s.AcquireForLoad("/a.log", false)
	require.NoError(t, err)
	start, reset, ok = s.ReconcileLoad(lease, snapOf("abc\ndef\n"))
	require.True(t, ok)
	assert.False(t, reset, "same identity, file grew")
	assert.Equal(t, uint64(4), start)

	start, reset, ok = s.ReconcileLoad(lease, snapOf("xyz\n"))
	require.True(t, ok)
	assert.True(t, reset)
	assert.Zero(t, start)

	s.SetCurrentFile("/b.log")
	_, _, ok = s.ReconcileLoad(lease, snapOf("xyz\n"))
	assert.False(t, ok)
	assert.False(t, s.AdvanceOffset(lease, 1))
	s.ReleaseLoader()
}

func TestSetCurrentFileRevokesLeaseForSamePath(t *testing.T) {
	s := NewState()
	lease, _, err := s.AcquireForLoad("/a.log", true)
	require.NoError(t, err)
	_, _, ok := s.ReconcileLoad(lease, snapOf("0123456789"))
	require.True(t, ok)
	require.True(t, s.AdvanceOffset(lease, 4))

	s.SetCurrentFile("/a.log")

	assert.False(t, s.Held(lease))
	assert.False(t, s.AdvanceOffset(lease, 6))
	s.ResetContent(lease, snapOf("x"))

	fs := s.Snapshot()
	assert.Equal(t, "/a.log", fs.CurrentFile)
	assert.Zero(t, fs.CurrentOffset)
	assert.Nil(t, fs.InitialHash)
	s.ReleaseLoader()
}

func TestResetContent(t *testing.T) {
	s := NewState()
	lease, _, err := s.AcquireForLoad("/a.log", false)
	require.NoError(t, err)
	s.AdvanceOffset(lease, 42)

	s.ResetContent(Lease{Path: "/a.log"}, snapOf("x"))
	assert.Equal(t, uint64(42), s.Snapshot().CurrentOffset, "foreign lease is ignored")

	s.ResetContent(lease, snapOf("x"))
	fs := s.Snapshot()
	assert.Zero(t, fs.CurrentOffset)
	require.NotNil(t, fs.InitialHash)
	s.ReleaseLoader()
}

func TestConcurrentResetsDoNotLoseUpdates(t *testing.T) {
	s := NewState()
	initial := snapOf("0123456789")
	sess, _ := s.StartMonitoring("/a.log", &initial)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Reconcile(sess, snapOf("0"), false)
		}()
	}
	wg.Wait()

	fs := s.Snapshot()
	assert.Zero(t, fs.CurrentOffset)
	assert.Equal(t, snapOf("0").Digest(), *fs.InitialHash)
}

func TestLoadingState(t *testing.T) {
	l := NewLoadingState()
	assert.False(t, l.IsLoading())
	assert.False(t, l.Cancel(), "nothing to cancel")

	tok, err := l.Begin()
	require.NoError(t, err)
	assert.True(t, l.IsLoading())

	_, err = l.Begin()
	assert.ErrorIs(t, err, domain.ErrLoadInProgress)

	assert.True(t, l.Cancel())
	assert.True(t, tok.IsSignalled())
	assert.False(t, l.Cancel(), "already signalled")
	assert.True(t, l.IsLoading(), "flag stays until the loader exits")

	l.Finish(NewCancelToken())
	assert.True(t, l.IsLoading(), "foreign token must not clear the flag")

	l.Finish(tok)
	assert.False(t, l.IsLoading())

	_, err = l.Begin()
	assert.NoError(t, err)
}
