package telegram

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tIKOOC/telegram-voice/src/types"
)

// fakeClient is an in-memory Client for lifecycle and retry tests.
type fakeClient struct {
	mu           sync.Mutex
	connectCalls int
	closeCalls   int
	alive        bool
	connectErr   error
	connectDelay time.Duration

	// sendErrs is consumed one per SendMessage call; nil means success.
	sendErrs []error
	// dropAfterSend drops the transport when a send fails.
	dropAfterSend bool
	sendCalls     int
}

func (f *fakeClient) Connect(ctx context.Context) (types.UserInfo, error) {
	f.mu.Lock()
	f.connectCalls++
	delay := f.connectDelay
	err := f.connectErr
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return types.UserInfo{}, ctx.Err()
		}
	}
	if err != nil {
		return types.UserInfo{}, err
	}
	f.mu.Lock()
	f.alive = true
	f.mu.Unlock()
	return types.UserInfo{ID: 42, FirstName: "Test", Username: "testuser"}, nil
}

func (f *fakeClient) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCalls++
	f.alive = false
	return nil
}

func (f *fakeClient) Alive() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alive
}

func (f *fakeClient) SendMessage(_ context.Context, _ int64, _ string) (types.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	call := f.sendCalls
	f.sendCalls++
	if call < len(f.sendErrs) && f.sendErrs[call] != nil {
		if f.dropAfterSend {
			f.alive = false
		}
		return types.SendResult{}, f.sendErrs[call]
	}
	return types.SendResult{MessageID: 1000 + call}, nil
}

func (f *fakeClient) Me(context.Context) (types.UserInfo, error) {
	return types.UserInfo{ID: 42}, nil
}

func (f *fakeClient) Dialogs(context.Context, int) ([]types.ChatSummary, error) {
	return nil, nil
}

func (f *fakeClient) History(context.Context, int64, int) ([]types.MessageSummary, error) {
	return nil, nil
}

func (f *fakeClient) sent() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sendCalls
}

func testConfig() Config {
	return Config{APIID: 12345, APIHash: "hash"}
}

// newTestManager wires a manager around fake and records every sleep
// instead of actually waiting.
func newTestManager(t *testing.T, fake *fakeClient) (*Manager, *[]time.Duration) {
	t.Helper()
	var factoryCalls int32
	m := NewManager(testConfig(), func() (Client, error) {
		atomic.AddInt32(&factoryCalls, 1)
		return fake, nil
	}, zerolog.Nop())

	sleeps := &[]time.Duration{}
	m.sleep = func(_ context.Context, d time.Duration) error {
		*sleeps = append(*sleeps, d)
		return nil
	}
	return m, sleeps
}

func TestInitializeConcurrentSingleConnection(t *testing.T) {
	fake := &fakeClient{connectDelay: 20 * time.Millisecond}
	var factoryCalls int32
	m := NewManager(testConfig(), func() (Client, error) {
		atomic.AddInt32(&factoryCalls, 1)
		return fake, nil
	}, zerolog.Nop())

	const n = 10
	clients := make([]Client, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := m.Initialize(context.Background())
			require.NoError(t, err)
			clients[i] = c
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&factoryCalls), "factory must run once")
	assert.Equal(t, 1, fake.connectCalls, "exactly one connection attempt")
	for i := 1; i < n; i++ {
		assert.Same(t, clients[0], clients[i], "all callers resolve to the same client")
	}
	assert.True(t, m.IsConnected())
}

func TestInitializeMissingCredentials(t *testing.T) {
	m := NewManager(Config{}, func() (Client, error) {
		t.Fatal("factory must not run without credentials")
		return nil, nil
	}, zerolog.Nop())

	_, err := m.Initialize(context.Background())
	require.Error(t, err)
	assert.Equal(t, ErrConfiguration, CodeOf(err))
}

func TestInitializeTimeout(t *testing.T) {
	fake := &fakeClient{connectDelay: time.Second}
	cfg := testConfig()
	cfg.ConnectTimeout = 20 * time.Millisecond
	m := NewManager(cfg, func() (Client, error) { return fake, nil }, zerolog.Nop())

	_, err := m.Initialize(context.Background())
	require.Error(t, err)
	assert.Equal(t, ErrTimeout, CodeOf(err))
	assert.Equal(t, 1, fake.closeCalls, "failed client must be closed")
	assert.False(t, m.Ready())
}

func TestSendMessageSafeNotConnected(t *testing.T) {
	fake := &fakeClient{}
	m, sleeps := newTestManager(t, fake)

	_, err := m.SendMessageSafe(context.Background(), 7, "hi", 3)
	require.Error(t, err)
	assert.True(t, IsNotConnected(err))
	assert.Zero(t, fake.sent(), "no provider call when disconnected")
	assert.Empty(t, *sleeps, "no retry sleep when disconnected")
}

func TestSendMessageSafeSuccess(t *testing.T) {
	fake := &fakeClient{}
	m, sleeps := newTestManager(t, fake)
	_, err := m.Initialize(context.Background())
	require.NoError(t, err)

	res, err := m.SendMessageSafe(context.Background(), 7, "hi", 3)
	require.NoError(t, err)
	assert.Equal(t, 1000, res.MessageID)
	assert.Equal(t, 1, fake.sent())
	assert.Empty(t, *sleeps)
}

func TestSendMessageSafeFloodWaitCapped(t *testing.T) {
	fake := &fakeClient{sendErrs: []error{FloodWaitError(400 * time.Second), nil}}
	m, sleeps := newTestManager(t, fake)
	_, err := m.Initialize(context.Background())
	require.NoError(t, err)

	res, err := m.SendMessageSafe(context.Background(), 7, "hi", 3)
	require.NoError(t, err)
	assert.Equal(t, 1001, res.MessageID)
	require.Len(t, *sleeps, 1)
	assert.Equal(t, 300*time.Second, (*sleeps)[0], "flood wait capped at five minutes")
}

func TestSendMessageSafeExponentialBackoff(t *testing.T) {
	boom := errors.New("boom")
	fake := &fakeClient{sendErrs: []error{boom, boom, boom}}
	m, sleeps := newTestManager(t, fake)
	_, err := m.Initialize(context.Background())
	require.NoError(t, err)

	_, err = m.SendMessageSafe(context.Background(), 7, "hi", 3)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom, "last provider error surfaces")
	assert.Equal(t, 3, fake.sent(), "exactly maxRetries attempts")
	// No sleep after the final attempt.
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *sleeps)
}

func TestSendMessageSafeDisconnectMidRetry(t *testing.T) {
	boom := errors.New("boom")
	fake := &fakeClient{sendErrs: []error{boom, boom, boom}, dropAfterSend: true}
	m, _ := newTestManager(t, fake)
	_, err := m.Initialize(context.Background())
	require.NoError(t, err)

	m.sleep = func(context.Context, time.Duration) error {
		t.Fatal("must fail fast without sleeping")
		return nil
	}

	_, err = m.SendMessageSafe(context.Background(), 7, "hi", 3)
	require.Error(t, err)
	assert.True(t, IsNotConnected(err))
	assert.Equal(t, 1, fake.sent(), "no further attempts after disconnect")
}

func TestDisconnectAndReinitialize(t *testing.T) {
	fake := &fakeClient{}
	var factoryCalls int32
	m := NewManager(testConfig(), func() (Client, error) {
		atomic.AddInt32(&factoryCalls, 1)
		return fake, nil
	}, zerolog.Nop())

	_, err := m.Initialize(context.Background())
	require.NoError(t, err)
	assert.True(t, m.IsConnected())

	m.Disconnect()
	m.Disconnect()
	assert.False(t, m.IsConnected())
	assert.False(t, m.Ready())
	assert.Equal(t, 1, fake.closeCalls, "second disconnect is a no-op")

	_, err = m.Client()
	assert.True(t, IsNotConnected(err))

	_, err = m.Initialize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&factoryCalls), "reinitialize builds a fresh client")
}

func TestDisconnectBeforeInitialize(t *testing.T) {
	m, _ := newTestManager(t, &fakeClient{})
	m.Disconnect()
	assert.False(t, m.IsConnected())
}
