package journal

import (
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// addStore is a minimal Store: each payload is a decimal number added
// to a running sum.
type addStore struct {
	sum      int64
	failNext bool
}

func (s *addStore) Apply(payload []byte) (int64, error) {
	if s.failNext {
		s.failNext = false
		return 0, errors.New("apply refused")
	}
	n, err := strconv.ParseInt(string(payload), 10, 64)
	if err != nil {
		return 0, err
	}
	s.sum += n
	return s.sum, nil
}

func (s *addStore) Snapshot() ([]byte, error) {
	return []byte(strconv.FormatInt(s.sum, 10)), nil
}

func (s *addStore) Restore(snapshot []byte) error {
	n, err := strconv.ParseInt(string(snapshot), 10, 64)
	if err != nil {
		return err
	}
	s.sum = n
	return nil
}

func openTestJournal(t *testing.T, path string, store *addStore) *Executor[int64] {
	t.Helper()
	e, err := Open(path, store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func TestExecutor_ExecuteAppliesInOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	store := &addStore{}
	e := openTestJournal(t, path, store)

	res, err := e.Execute("add", []byte("5"))
	require.NoError(t, err)
	assert.Equal(t, int64(5), res)

	res, err = e.Execute("add", []byte("7"))
	require.NoError(t, err)
	assert.Equal(t, int64(12), res)

	assert.Equal(t, int64(2), e.Seq())
}

func TestExecutor_RestartReplaysIdenticalState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	store := &addStore{}
	e := openTestJournal(t, path, store)

	for _, p := range []string{"1", "2", "3", "4"} {
		_, err := e.Execute("add", []byte(p))
		require.NoError(t, err)
	}
	require.NoError(t, e.Close())

	reopened := &addStore{}
	e2 := openTestJournal(t, path, reopened)
	assert.Equal(t, int64(10), reopened.sum)
	assert.Equal(t, int64(4), e2.Seq())

	// the reopened journal keeps appending from where it left off
	_, err := e2.Execute("add", []byte("5"))
	require.NoError(t, err)
	assert.Equal(t, int64(5), e2.Seq())
	assert.Equal(t, int64(15), reopened.sum)
}

func TestExecutor_SnapshotTruncatesAndReplays(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	store := &addStore{}
	e := openTestJournal(t, path, store)

	for _, p := range []string{"10", "20"} {
		_, err := e.Execute("add", []byte(p))
		require.NoError(t, err)
	}
	require.NoError(t, e.TakeSnapshot())

	_, err := e.Execute("add", []byte("30"))
	require.NoError(t, err)
	require.NoError(t, e.Close())

	// only the snapshot plus the tail come back
	reopened := &addStore{}
	e2 := openTestJournal(t, path, reopened)
	assert.Equal(t, int64(60), reopened.sum)
	assert.Equal(t, int64(3), e2.Seq())

	// the truncated commands are really gone
	var n int
	require.NoError(t, e2.db.QueryRow(`SELECT COUNT(*) FROM commands`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestExecutor_SnapshotIsRepeatable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	store := &addStore{}
	e := openTestJournal(t, path, store)

	_, err := e.Execute("add", []byte("1"))
	require.NoError(t, err)

	// two snapshots at the same seq must not conflict
	require.NoError(t, e.TakeSnapshot())
	require.NoError(t, e.TakeSnapshot())
}

func TestExecutor_ApplyFailureLeavesSeqBehind(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	store := &addStore{}
	e := openTestJournal(t, path, store)

	_, err := e.Execute("add", []byte("1"))
	require.NoError(t, err)

	store.failNext = true
	_, err = e.Execute("add", []byte("2"))
	require.Error(t, err)

	// the store never saw the command and the position did not advance;
	// the caller is expected to abort the process here
	assert.Equal(t, int64(1), store.sum)
	assert.Equal(t, int64(1), e.Seq())
}

func TestExecutor_ViewSeesAppliedState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	store := &addStore{}
	e := openTestJournal(t, path, store)

	_, err := e.Execute("add", []byte("9"))
	require.NoError(t, err)

	var seen int64
	e.View(func() { seen = store.sum })
	assert.Equal(t, int64(9), seen)
}

func TestOpen_BadPathFails(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing", "sub", "test.db"),
		&addStore{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.Error(t, err)
}
