package manager

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"commandForge/internal/apperr"
	"commandForge/internal/models"
	"commandForge/internal/ssh"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPollInterval = 10 * time.Millisecond

func newTestRegistry(t *testing.T, dialer ssh.Dialer) *Registry {
	t.Helper()
	r := NewRegistry(dialer, ssh.Options{
		PollInterval: testPollInterval,
		DialTimeout:  time.Second,
		LogsDir:      t.TempDir(),
	}, zerolog.Nop())
	t.Cleanup(func() { r.Close() })
	return r
}

func profileFor(host string) models.ConnectionProfile {
	return models.ConnectionProfile{Host: host, User: "admin", Password: "secret"}
}

func waitForQueued(t *testing.T, r *Registry, h Handle, n int) {
	t.Helper()
	s, err := r.Session(h)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return s.Output().Len() >= n }, 2*time.Second, time.Millisecond)
}

func TestCreateRegistersSession(t *testing.T) {
	r := newTestRegistry(t, newFakeDialer())

	h, err := r.Create(context.Background(), profileFor("alpha"), &recordingSink{})
	require.NoError(t, err)
	assert.NotEmpty(t, h)
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, []Handle{h}, r.Handles())

	s, err := r.Session(h)
	require.NoError(t, err)
	assert.True(t, s.Connected())
	assert.Equal(t, "alpha", s.Profile().Host)
}

func TestCreateFailureRegistersNothing(t *testing.T) {
	d := newFakeDialer()
	d.refuse["down"] = errors.New("connection refused")
	r := newTestRegistry(t, d)

	h, err := r.Create(context.Background(), profileFor("down"), &recordingSink{})
	require.Error(t, err)
	assert.True(t, apperr.IsType(err, apperr.ConnectionError))
	assert.Empty(t, h)
	assert.Zero(t, r.Len())
}

func TestUnknownHandleIsNotFound(t *testing.T) {
	r := newTestRegistry(t, newFakeDialer())
	missing := Handle("missing")

	assert.True(t, apperr.IsType(r.SendCommand(missing, "ls"), apperr.NotFound))
	assert.True(t, apperr.IsType(r.Interrupt(missing), apperr.NotFound))
	_, err := r.RecallPrevious(missing)
	assert.True(t, apperr.IsType(err, apperr.NotFound))
	_, err = r.RecallNext(missing)
	assert.True(t, apperr.IsType(err, apperr.NotFound))
	_, err = r.Session(missing)
	assert.True(t, apperr.IsType(err, apperr.NotFound))

	assert.NoError(t, r.Destroy(missing))
}

func TestSendCommandEchoesRecordsAndWrites(t *testing.T) {
	d := newFakeDialer()
	r := newTestRegistry(t, d)
	sink := &recordingSink{}

	h, err := r.Create(context.Background(), profileFor("alpha"), sink)
	require.NoError(t, err)

	require.NoError(t, r.SetInput(h, "uname -a"))
	require.NoError(t, r.SendCommand(h, "uname -a"))
	require.NoError(t, r.SendCommand(h, ""))

	assert.Equal(t, []string{"uname -a"}, sink.texts(ChunkSent))
	assert.Equal(t, []string{"uname -a\r\n"}, d.channel("alpha").written())

	history, err := r.History(h)
	require.NoError(t, err)
	assert.Equal(t, []string{"uname -a"}, history)

	input, err := r.Input(h)
	require.NoError(t, err)
	assert.Empty(t, input)
}

func TestRecallWalksHistoryPerSession(t *testing.T) {
	r := newTestRegistry(t, newFakeDialer())

	a, err := r.Create(context.Background(), profileFor("alpha"), nil)
	require.NoError(t, err)
	b, err := r.Create(context.Background(), profileFor("beta"), nil)
	require.NoError(t, err)

	for _, cmd := range []string{"a", "b", "c"} {
		require.NoError(t, r.SendCommand(a, cmd))
	}
	require.NoError(t, r.SendCommand(b, "other"))

	var got []string
	for _, step := range []func(Handle) (string, error){
		r.RecallPrevious, r.RecallPrevious, r.RecallPrevious, r.RecallPrevious,
		r.RecallNext, r.RecallNext, r.RecallNext,
	} {
		text, err := step(a)
		require.NoError(t, err)
		got = append(got, text)
	}
	assert.Equal(t, []string{"c", "b", "a", "a", "b", "c", ""}, got)

	text, err := r.RecallPrevious(b)
	require.NoError(t, err)
	assert.Equal(t, "other", text)

	input, err := r.Input(b)
	require.NoError(t, err)
	assert.Equal(t, "other", input)
}

func TestDestroyClosesAndUnregisters(t *testing.T) {
	d := newFakeDialer()
	r := newTestRegistry(t, d)

	h, err := r.Create(context.Background(), profileFor("alpha"), nil)
	require.NoError(t, err)
	s, err := r.Session(h)
	require.NoError(t, err)

	require.NoError(t, r.Destroy(h))
	require.NoError(t, r.Destroy(h))

	assert.Zero(t, r.Len())
	assert.Equal(t, ssh.StateClosed, s.State())
}

func TestInterruptReachesSession(t *testing.T) {
	d := newFakeDialer()
	r := newTestRegistry(t, d)

	h, err := r.Create(context.Background(), profileFor("alpha"), nil)
	require.NoError(t, err)
	require.NoError(t, r.Interrupt(h))
	assert.Equal(t, []string{"\x03"}, d.channel("alpha").written())
}

func TestDrainDueDeliversInOrderToDisplayAndLog(t *testing.T) {
	d := newFakeDialer()
	r := newTestRegistry(t, d)
	sink := &recordingSink{}

	h, err := r.Create(context.Background(), profileFor("alpha"), sink)
	require.NoError(t, err)

	ch := d.channel("alpha")
	ch.feed("one\r\n")
	ch.feed("\x1b[1mtwo\x1b[0m\r\n")
	ch.feed("three\r\n")
	waitForQueued(t, r, h, 3)

	r.DrainDue()

	assert.Equal(t, []string{"one\n", "two\n", "three\n"}, sink.texts(ChunkOutput))
	assert.Equal(t, 1, sink.scrolls)

	s, err := r.Session(h)
	require.NoError(t, err)
	data, err := os.ReadFile(s.Log().Path())
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\nthree\n", string(data))

	// Nothing new queued: no further display calls.
	r.DrainDue()
	assert.Len(t, sink.texts(ChunkOutput), 3)
}

func TestDrainDueIsolatesFailingDisplay(t *testing.T) {
	d := newFakeDialer()
	r := newTestRegistry(t, d)

	var mu sync.Mutex
	reported := map[Handle]error{}
	r.OnSinkError(func(h Handle, err error) {
		mu.Lock()
		reported[h] = err
		mu.Unlock()
	})

	broken := &recordingSink{explode: true}
	healthy := &recordingSink{}
	bad, err := r.Create(context.Background(), profileFor("bad"), broken)
	require.NoError(t, err)
	good, err := r.Create(context.Background(), profileFor("good"), healthy)
	require.NoError(t, err)

	d.channel("bad").feed("boom\n")
	d.channel("good").feed("fine\n")
	waitForQueued(t, r, bad, 1)
	waitForQueued(t, r, good, 1)

	r.DrainDue()

	assert.Equal(t, []string{"fine\n"}, healthy.texts(ChunkOutput))

	// The transcript still gets what the broken display never showed.
	s, err := r.Session(bad)
	require.NoError(t, err)
	data, err := os.ReadFile(s.Log().Path())
	require.NoError(t, err)
	assert.Equal(t, "boom\n", string(data))
	assert.Zero(t, s.Output().Len())

	mu.Lock()
	defer mu.Unlock()
	require.Contains(t, reported, bad)
	assert.NotContains(t, reported, good)
	assert.True(t, apperr.IsType(reported[bad], apperr.SinkError))
}

func TestDrainDueSkipsClosedLog(t *testing.T) {
	d := newFakeDialer()
	r := newTestRegistry(t, d)
	sink := &recordingSink{}

	var reports int
	r.OnSinkError(func(Handle, error) { reports++ })

	h, err := r.Create(context.Background(), profileFor("alpha"), sink)
	require.NoError(t, err)
	s, err := r.Session(h)
	require.NoError(t, err)

	d.channel("alpha").feed("late\n")
	waitForQueued(t, r, h, 1)
	require.NoError(t, s.Log().Close())

	r.DrainDue()
	assert.Equal(t, []string{"late\n"}, sink.texts(ChunkOutput))
	assert.Zero(t, reports)
}

func TestDispatcherRunDrainsUntilCancelled(t *testing.T) {
	d := newFakeDialer()
	r := newTestRegistry(t, d)
	sink := &recordingSink{}

	_, err := r.Create(context.Background(), profileFor("alpha"), sink)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		NewDispatcher(r, 5*time.Millisecond, zerolog.Nop()).Run(ctx)
	}()

	d.channel("alpha").feed("tick\n")
	require.Eventually(t, func() bool {
		return strings.Join(sink.texts(ChunkOutput), "") == "tick\n"
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop")
	}
}

func TestCloseDestroysAll(t *testing.T) {
	r := newTestRegistry(t, newFakeDialer())
	for _, host := range []string{"a", "b", "c"} {
		_, err := r.Create(context.Background(), profileFor(host), nil)
		require.NoError(t, err)
	}
	require.NoError(t, r.Close())
	assert.Zero(t, r.Len())
	assert.Empty(t, r.Handles())
}

// gatedSink holds its first Append until release is closed.
type gatedSink struct {
	recordingSink
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *gatedSink) Append(c Chunk) {
	first := false
	s.once.Do(func() { first = true })
	if first {
		close(s.entered)
		<-s.release
	}
	s.recordingSink.Append(c)
}

func TestConcurrentDrainDueKeepsOrder(t *testing.T) {
	d := newFakeDialer()
	r := newTestRegistry(t, d)
	sink := &gatedSink{entered: make(chan struct{}), release: make(chan struct{})}

	h, err := r.Create(context.Background(), profileFor("host"), sink)
	require.NoError(t, err)
	s, err := r.Session(h)
	require.NoError(t, err)

	d.channel("host").feed("first\n")
	waitForQueued(t, r, h, 1)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		r.DrainDue()
	}()
	<-sink.entered

	d.channel("host").feed("second\n")
	waitForQueued(t, r, h, 1)
	go func() {
		defer wg.Done()
		r.DrainDue()
	}()

	// Give the second drain a chance to overtake if nothing serializes it.
	time.Sleep(20 * time.Millisecond)
	close(sink.release)
	wg.Wait()

	assert.Equal(t, []string{"first\n", "second\n"}, sink.texts(ChunkOutput))
	data, err := os.ReadFile(s.Log().Path())
	require.NoError(t, err)
	assert.Equal(t, "first\nsecond\n", string(data))
}
