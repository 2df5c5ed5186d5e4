package filestore

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func openStore(t *testing.T, opts Options) (*Store, *fakeClock, string) {
	t.Helper()
	dir := t.TempDir()
	clock := newFakeClock()
	opts.Now = clock.Now
	s, err := Open(dir, opts)
	require.NoError(t, err)
	return s, clock, dir
}

func TestStore_PutGet(t *testing.T) {
	s, clock, _ := openStore(t, Options{})
	ctx := context.Background()

	ref, err := s.Put(ctx, []byte("code,name\nUSD,Dollar\n"), Meta{Name: "currencies.csv", ContentType: "text/csv"}, time.Hour)
	require.NoError(t, err)
	assert.NotEmpty(t, ref)

	obj, err := s.Get(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "code,name\nUSD,Dollar\n", string(obj.Data))
	assert.Equal(t, ref, obj.Meta.Ref)
	assert.Equal(t, "currencies.csv", obj.Meta.Name)
	assert.Equal(t, int64(21), obj.Meta.Size)
	assert.NotEmpty(t, obj.Meta.Checksum)
	assert.Equal(t, clock.Now().Add(time.Hour), obj.Meta.ExpiresAt)
}

func TestStore_RefsAreNeverReused(t *testing.T) {
	s, _, _ := openStore(t, Options{})
	ctx := context.Background()

	a, err := s.Put(ctx, []byte("same"), Meta{}, 0)
	require.NoError(t, err)
	b, err := s.Put(ctx, []byte("same"), Meta{}, 0)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	require.NoError(t, s.Delete(ctx, a))
	c, err := s.Put(ctx, []byte("other"), Meta{}, 0)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestStore_GetUnknown(t *testing.T) {
	s, _, _ := openStore(t, Options{})
	ctx := context.Background()

	for _, ref := range []string{"", "0b8f0a7e-5d2c-4f7a-9d55-0d7f3c1c2e11", "../../etc/passwd"} {
		_, err := s.Get(ctx, ref)
		assert.ErrorIs(t, err, ErrNotFound, "ref %q", ref)
	}
}

func TestStore_ExpiredIsNeverServed(t *testing.T) {
	s, clock, _ := openStore(t, Options{CacheSize: 8, CacheTTL: time.Hour, CacheMaxObjectBytes: 1024})
	ctx := context.Background()

	ref, err := s.Put(ctx, []byte("report"), Meta{}, 2*time.Hour)
	require.NoError(t, err)

	_, err = s.Get(ctx, ref)
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)

	_, err = s.Get(ctx, ref)
	assert.ErrorIs(t, err, ErrExpired)
	_, err = s.Stat(ctx, ref)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestStore_ZeroTTLNeverExpires(t *testing.T) {
	s, clock, _ := openStore(t, Options{})
	ctx := context.Background()

	ref, err := s.Put(ctx, []byte("x"), Meta{}, 0)
	require.NoError(t, err)

	clock.Advance(24 * 365 * time.Hour)
	_, err = s.Get(ctx, ref)
	assert.NoError(t, err)
}

func TestStore_DeleteIsIdempotent(t *testing.T) {
	s, _, dir := openStore(t, Options{})
	ctx := context.Background()

	ref, err := s.Put(ctx, []byte("x"), Meta{}, time.Hour)
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, ref))
	require.NoError(t, s.Delete(ctx, ref))

	_, err = s.Get(ctx, ref)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoFileExists(t, filepath.Join(dir, ref+dataSuffix))
	assert.NoFileExists(t, filepath.Join(dir, ref+metaSuffix))
}

func TestStore_SweepExpired(t *testing.T) {
	s, clock, dir := openStore(t, Options{})
	ctx := context.Background()

	short, err := s.Put(ctx, []byte("short"), Meta{}, time.Minute)
	require.NoError(t, err)
	long, err := s.Put(ctx, []byte("long"), Meta{}, time.Hour)
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)

	n, err := s.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoFileExists(t, filepath.Join(dir, short+dataSuffix))

	_, err = s.Get(ctx, short)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get(ctx, long)
	assert.NoError(t, err)

	n, err = s.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStore_SweepConcurrentWithPut(t *testing.T) {
	s, clock, _ := openStore(t, Options{})
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		_, err := s.Put(ctx, []byte("old"), Meta{}, time.Second)
		require.NoError(t, err)
	}
	clock.Advance(time.Minute)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		refs []string
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ref, err := s.Put(ctx, []byte("new"), Meta{}, time.Hour)
			assert.NoError(t, err)
			mu.Lock()
			refs = append(refs, ref)
			mu.Unlock()
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := s.SweepExpired(ctx)
		assert.NoError(t, err)
	}()
	wg.Wait()

	_, err := s.SweepExpired(ctx)
	require.NoError(t, err)

	assert.Equal(t, 20, s.Len())
	for _, ref := range refs {
		obj, err := s.Get(ctx, ref)
		require.NoError(t, err)
		assert.Equal(t, "new", string(obj.Data))
	}
}

func TestStore_OpenRebuildsIndex(t *testing.T) {
	s, clock, dir := openStore(t, Options{})
	ctx := context.Background()

	ref, err := s.Put(ctx, []byte("persisted"), Meta{Kind: KindExport, Owner: "currencies", Name: "a.csv"}, time.Hour)
	require.NoError(t, err)
	orphan, err := s.Put(ctx, []byte("orphan"), Meta{}, time.Hour)
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(dir, orphan+dataSuffix)))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "leftover"+tmpSuffix), []byte("x"), 0o600))

	reopened, err := Open(dir, Options{Now: clock.Now})
	require.NoError(t, err)

	obj, err := reopened.Get(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "persisted", string(obj.Data))
	assert.Equal(t, "a.csv", obj.Meta.Name)
	assert.Equal(t, KindExport, obj.Meta.Kind)
	assert.Equal(t, "currencies", obj.Meta.Owner)

	_, err = reopened.Get(ctx, orphan)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoFileExists(t, filepath.Join(dir, orphan+metaSuffix))
	assert.NoFileExists(t, filepath.Join(dir, "leftover"+tmpSuffix))
}

func TestStore_ChecksumVerifiedOnDiskRead(t *testing.T) {
	s, _, dir := openStore(t, Options{})
	ctx := context.Background()

	ref, err := s.Put(ctx, []byte("original"), Meta{}, 0)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ref+dataSuffix), []byte("tampered"), 0o600))

	_, err = s.Get(ctx, ref)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checksum mismatch")
}

func TestStore_CacheServesSmallObjects(t *testing.T) {
	s, _, dir := openStore(t, Options{CacheSize: 4, CacheTTL: time.Minute, CacheMaxObjectBytes: 16})
	ctx := context.Background()

	small, err := s.Put(ctx, []byte("small"), Meta{}, 0)
	require.NoError(t, err)
	large, err := s.Put(ctx, []byte("this payload is larger than sixteen bytes"), Meta{}, 0)
	require.NoError(t, err)

	// Removing the data files shows which reads still come from memory.
	require.NoError(t, os.Remove(filepath.Join(dir, small+dataSuffix)))
	require.NoError(t, os.Remove(filepath.Join(dir, large+dataSuffix)))

	obj, err := s.Get(ctx, small)
	require.NoError(t, err)
	assert.Equal(t, "small", string(obj.Data))

	_, err = s.Get(ctx, large)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_CancelledContext(t *testing.T) {
	s, _, _ := openStore(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Put(ctx, []byte("x"), Meta{}, 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSweeper_RunOnce(t *testing.T) {
	s, clock, _ := openStore(t, Options{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := s.Put(ctx, []byte("x"), Meta{}, time.Minute)
		require.NoError(t, err)
	}
	clock.Advance(time.Hour)

	sweeper := NewSweeper(s, time.Hour)
	assert.Equal(t, 3, sweeper.RunOnce(ctx))
	assert.Equal(t, 0, sweeper.RunOnce(ctx))
}

func TestSweeper_RunStopsOnCancel(t *testing.T) {
	s, _, _ := openStore(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		NewSweeper(s, 10*time.Millisecond).Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
}
