package session

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedPrompter replays canned wizard answers.
type scriptedPrompter struct {
	profiles  [][2]string
	keep      bool
	password  string
	prompted  int
	continued int
}

func (p *scriptedPrompter) NewProfile() (string, string, error) {
	i := p.prompted
	if i >= len(p.profiles) {
		i = len(p.profiles) - 1
	}
	p.prompted++
	return p.profiles[i][0], p.profiles[i][1], nil
}

func (p *scriptedPrompter) ContinueSession(string) (bool, error) {
	p.continued++
	return p.keep, nil
}

func (p *scriptedPrompter) Password() (string, error) {
	return p.password, nil
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	cfg := viper.New()
	cfg.Set("session.path", filepath.Join(t.TempDir(), "session.toml"))
	store, err := NewStore(cfg)
	require.NoError(t, err)
	return store
}

func fixedNow() time.Time {
	return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
}

func TestResolve_FirstRunCreatesProfile(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	prompter := &scriptedPrompter{profiles: [][2]string{{"alice", "hunter2"}}}

	identity, err := Resolve(store, prompter, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, "alice", identity)

	p, ok, err := store.Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "alice", p.Username)
	assert.Equal(t, fixedNow().Unix(), p.LastActive)
}

func TestResolve_RejectsShortPassword(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	prompter := &scriptedPrompter{profiles: [][2]string{
		{"alice", "abc"},
		{"alice", "abcd"},
	}}

	identity, err := Resolve(store, prompter, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, "alice", identity)
	assert.Equal(t, 2, prompter.prompted)
}

func TestResolve_RejectsEmptyUsername(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	prompter := &scriptedPrompter{profiles: [][2]string{
		{"  ", "hunter2"},
		{"alice", "hunter2"},
	}}

	identity, err := Resolve(store, prompter, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, "alice", identity)
}

func TestResolve_FreshProfileSkipsPrompts(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	fresh := Profile{Username: "alice", Password: "hunter2"}
	fresh.Touch(fixedNow().Add(-Expiry / 2))
	require.NoError(t, store.Save(fresh))

	prompter := &scriptedPrompter{}
	identity, err := Resolve(store, prompter, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, "alice", identity)
	assert.Zero(t, prompter.prompted)
	assert.Zero(t, prompter.continued)
}

func TestResolve_ExpiredWithRightPassword(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	stale := Profile{Username: "alice", Password: "hunter2"}
	stale.Touch(fixedNow().Add(-Expiry - time.Minute))
	require.NoError(t, store.Save(stale))

	prompter := &scriptedPrompter{keep: true, password: "hunter2"}
	identity, err := Resolve(store, prompter, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, "alice", identity)
	assert.Equal(t, 1, prompter.continued)

	p, _, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, fixedNow().Unix(), p.LastActive, "LastActive should refresh")
}

func TestResolve_ExpiredWithWrongPasswordStartsOver(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	stale := Profile{Username: "alice", Password: "hunter2"}
	stale.Touch(fixedNow().Add(-2 * Expiry))
	require.NoError(t, store.Save(stale))

	prompter := &scriptedPrompter{
		keep:     true,
		password: "wrong",
		profiles: [][2]string{{"bob", "secret99"}},
	}
	identity, err := Resolve(store, prompter, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, "bob", identity)
}

func TestResolve_ExpiredDeclinedStartsOver(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	stale := Profile{Username: "alice", Password: "hunter2"}
	stale.Touch(fixedNow().Add(-2 * Expiry))
	require.NoError(t, store.Save(stale))

	prompter := &scriptedPrompter{
		keep:     false,
		profiles: [][2]string{{"carol", "secret99"}},
	}
	identity, err := Resolve(store, prompter, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, "carol", identity)
}

func TestProfile_ExpiryBoundary(t *testing.T) {
	t.Parallel()

	var p Profile
	p.Touch(fixedNow())

	assert.False(t, p.Expired(fixedNow().Add(Expiry)), "exactly 30 minutes idle is still fresh")
	assert.True(t, p.Expired(fixedNow().Add(Expiry+time.Second)))
}

func TestStore_LoadMissing(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	_, ok, err := store.Load()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_ClearIsIdempotent(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	require.NoError(t, store.Clear())
	require.NoError(t, store.Save(Profile{Username: "alice", Password: "hunter2"}))
	require.NoError(t, store.Clear())
	require.NoError(t, store.Clear())

	_, ok, err := store.Load()
	require.NoError(t, err)
	assert.False(t, ok)
}
