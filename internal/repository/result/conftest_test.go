package result

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/kailas-cloud/cvgen/internal/domain"
	domresult "github.com/kailas-cloud/cvgen/internal/domain/result"
)

// mockStore implements the consumer interface for tests.
// Without an override each method works against an in-memory keyspace.
type mockStore struct {
	mu     sync.Mutex
	hashes map[string]map[string]string
	kv     map[string][]byte
	sets   map[string]map[string]struct{}
	zsets  map[string]map[string]float64

	hsetFn   func(ctx context.Context, key string, fields map[string]string) error
	existsFn func(ctx context.Context, key string) (bool, error)
	setNXFn  func(ctx context.Context, key string, value []byte) (bool, error)
	zTopFn   func(ctx context.Context, key string, n int) ([]string, error)
	sAddErr  error
	zAddErr  error
}

func (m *mockStore) HSet(ctx context.Context, key string, fields map[string]string) error {
	if m.hsetFn != nil {
		return m.hsetFn(ctx, key, fields)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hashes[key]
	if !ok {
		h = make(map[string]string)
		m.hashes[key] = h
	}
	for k, v := range fields {
		h[k] = v
	}
	return nil
}

func (m *mockStore) HGetAll(_ context.Context, key string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string)
	for k, v := range m.hashes[key] {
		out[k] = v
	}
	return out, nil
}

func (m *mockStore) HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error) {
	out := make([]map[string]string, len(keys))
	for i, k := range keys {
		out[i], _ = m.HGetAll(ctx, k)
	}
	return out, nil
}

func (m *mockStore) Del(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.hashes, key)
	delete(m.kv, key)
	return nil
}

func (m *mockStore) Exists(ctx context.Context, key string) (bool, error) {
	if m.existsFn != nil {
		return m.existsFn(ctx, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.hashes[key]
	return ok, nil
}

func (m *mockStore) SetNX(ctx context.Context, key string, value []byte) (bool, error) {
	if m.setNXFn != nil {
		return m.setNXFn(ctx, key, value)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.kv[key]; ok {
		return false, nil
	}
	m.kv[key] = value
	return true, nil
}

func (m *mockStore) SAdd(_ context.Context, key string, members ...string) error {
	if m.sAddErr != nil {
		return m.sAddErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sets[key]
	if !ok {
		s = make(map[string]struct{})
		m.sets[key] = s
	}
	for _, v := range members {
		s[v] = struct{}{}
	}
	return nil
}

func (m *mockStore) SMembers(_ context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.sets[key]))
	for v := range m.sets[key] {
		out = append(out, v)
	}
	return out, nil
}

func (m *mockStore) ZAdd(_ context.Context, key string, score float64, member string) error {
	if m.zAddErr != nil {
		return m.zAddErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	z, ok := m.zsets[key]
	if !ok {
		z = make(map[string]float64)
		m.zsets[key] = z
	}
	z[member] = score
	return nil
}

func (m *mockStore) ZTop(ctx context.Context, key string, n int) ([]string, error) {
	if m.zTopFn != nil {
		return m.zTopFn(ctx, key, n)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	members := make([]string, 0, len(m.zsets[key]))
	for v := range m.zsets[key] {
		members = append(members, v)
	}
	z := m.zsets[key]
	sort.Slice(members, func(i, j int) bool { return z[members[i]] > z[members[j]] })
	if len(members) > n {
		members = members[:n]
	}
	return members, nil
}

const (
	testSession = "6f1c2a34-9a0b-4c1d-8e2f-3a4b5c6d7e8f"
	testProbe   = "def-1"
)

var testStart = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// newTestRepo returns a repo with one known definition, a stepping clock and sequential ids.
func newTestRepo(t *testing.T) (*Repo, *mockStore) {
	t.Helper()
	ms := &mockStore{
		hashes: map[string]map[string]string{
			"cvgen:probe:def:" + testProbe: {"id": testProbe},
			"cvgen:probe:def:def-2":        {"id": "def-2"},
		},
		kv:    make(map[string][]byte),
		sets:  make(map[string]map[string]struct{}),
		zsets: make(map[string]map[string]float64),
	}
	repo := New(ms, domain.NewKeyspace(""))

	var mu sync.Mutex
	tick, seq := 0, 0
	repo.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		tick++
		return testStart.Add(time.Duration(tick) * time.Second)
	}
	repo.newID = func() string {
		mu.Lock()
		defer mu.Unlock()
		seq++
		return "res-" + strconv.Itoa(seq)
	}
	return repo, ms
}

func passResult(sessionID, probeID string) domresult.Result {
	return domresult.Pass(sessionID, probeID, testStart, testStart.Add(150*time.Millisecond))
}

func failResult(sessionID, probeID string) domresult.Result {
	return domresult.Fail(sessionID, probeID, testStart, testStart.Add(20*time.Millisecond),
		"unhealthy", domresult.Raw{Error: `status "degraded"`})
}
