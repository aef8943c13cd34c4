package snapshot

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/callproxy/internal/approval"
	"github.com/ppiankov/callproxy/internal/model"
	"github.com/ppiankov/callproxy/internal/principal"
	"github.com/ppiankov/callproxy/internal/settings"
)

var (
	t0       = time.Date(2026, 3, 4, 5, 6, 7, 891011, time.UTC)
	delegate = principal.MustFromBytes([]byte{0x0a})
	ledger   = principal.MustFromBytes([]byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x02, 0x01, 0x01})
)

func sampleState(t *testing.T) *State {
	t.Helper()
	amount, err := model.ParseAmount("18446744073709551616")
	require.NoError(t, err)
	resolved := t0.Add(time.Minute)

	return &State{
		Version: Version,
		SavedAt: t0,
		Settings: FromSettings(settings.Values{
			DefaultLifetime: 48 * time.Hour,
			Mode:            model.ValidateUpdate,
			Denylist:        map[principal.ID]string{principal.Anonymous: "anonymous", ledger: "ledger"},
		}),
		Delegations: []model.Delegation{{
			Delegate: delegate,
			Scope: []model.TargetScope{{
				Target: ledger,
				Methods: map[string]model.MethodSpec{
					"withdraw": {Name: "withdraw", Type: model.Update, KeyOperation: true},
				},
			}},
			GrantedAt: t0,
			ExpiresAt: t0.Add(time.Hour),
		}},
		Queue: FromQueue([]approval.Entry{
			{
				Hash:        "aa",
				Requester:   delegate,
				CreatedAt:   t0,
				Payload:     model.CallRequest{Target: ledger, Method: "withdraw", Args: []byte{0x01}, Amount: amount},
				Disposition: approval.Approved{Outcome: model.Outcome{Return: []byte{0x01}}},
				ResolvedAt:  &resolved,
			},
			{
				Hash:        "bb",
				Requester:   delegate,
				CreatedAt:   t0,
				Payload:     model.CallRequest{Target: ledger, Method: "withdraw"},
				Disposition: approval.Pending{},
			},
		}),
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	in := sampleState(t)
	data, err := Marshal(in)
	require.NoError(t, err)

	out, err := Unmarshal(data)
	require.NoError(t, err)

	assert.True(t, out.SavedAt.Equal(in.SavedAt), "saved_at keeps nanoseconds")
	assert.Equal(t, in.Settings.DefaultLifetime, out.Settings.DefaultLifetime)
	assert.Equal(t, model.ValidateUpdate, out.Settings.Mode)
	assert.Equal(t, in.Settings.Denylist, out.Settings.Denylist)

	require.Len(t, out.Delegations, 1)
	d := out.Delegations[0]
	assert.Equal(t, delegate, d.Delegate)
	assert.True(t, d.ExpiresAt.Equal(t0.Add(time.Hour)))
	assert.True(t, d.Scope[0].Methods["withdraw"].KeyOperation)

	entries, err := out.QueueEntries()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "18446744073709551616", entries[0].Payload.Amount.String())
	approved, ok := entries[0].Disposition.(approval.Approved)
	require.True(t, ok)
	assert.Equal(t, []byte{0x01}, approved.Outcome.Return)
	assert.IsType(t, approval.Pending{}, entries[1].Disposition)
	assert.Nil(t, entries[1].ResolvedAt)

	v := out.Settings.Values()
	assert.Equal(t, "ledger", v.Denylist[ledger])
}

func TestMarshalDeterministic(t *testing.T) {
	a, err := Marshal(sampleState(t))
	require.NoError(t, err)
	b, err := Marshal(sampleState(t))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestUnmarshalRejectsVersion(t *testing.T) {
	s := sampleState(t)
	s.Version = 99
	data, err := Marshal(s)
	require.NoError(t, err)
	_, err = Unmarshal(data)
	assert.Error(t, err)
}

func TestFileStore(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(filepath.Join(t.TempDir(), "nested", "state.cbor"))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, got, "missing file yields no snapshot")

	require.NoError(t, store.Save(ctx, sampleState(t)))
	got, err = store.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Len(t, got.Queue, 2)
}

func TestSQLiteStoreKeepsLatest(t *testing.T) {
	ctx := context.Background()
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	defer store.Close()

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	for i := 0; i < keepSnapshots+3; i++ {
		s := sampleState(t)
		s.Settings.DefaultLifetime = time.Duration(i) * time.Hour
		require.NoError(t, store.Save(ctx, s))
	}

	got, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, time.Duration(keepSnapshots+2)*time.Hour, got.Settings.DefaultLifetime)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, keepSnapshots, n)
}

func TestSQLiteStoreFailedSaveReleasesConnection(t *testing.T) {
	ctx := context.Background()
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	defer store.Close()

	_, err = store.db.Exec(`CREATE TRIGGER reject_insert BEFORE INSERT ON snapshots
		BEGIN SELECT RAISE(ABORT, 'read only'); END`)
	require.NoError(t, err)

	err = store.Save(ctx, sampleState(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to insert snapshot")

	// The store has a single connection; an open transaction would block here.
	countCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	n, err := store.Count(countCtx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = store.db.Exec(`DROP TRIGGER reject_insert`)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, sampleState(t)))
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	s, err := Open("file:" + filepath.Join(dir, "state.cbor"))
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)

	s, err = Open("sqlite:" + filepath.Join(dir, "state.db"))
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	require.NoError(t, s.Close())

	_, err = Open("redis:localhost")
	assert.Error(t, err)
	_, err = Open("state.cbor")
	assert.Error(t, err)
}

func TestSaverSaveAndRun(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "state.cbor"))
	st := sampleState(t)

	var exports atomic.Int32
	s := NewSaver(store, func() *State {
		exports.Add(1)
		return st
	}, nil)

	require.NoError(t, s.Save(context.Background()))
	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Len(t, loaded.Delegations, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx, 10*time.Millisecond)
		close(done)
	}()
	require.Eventually(t, func() bool { return exports.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done

	// zero interval disables the loop
	before := exports.Load()
	s.Run(context.Background(), 0)
	assert.Equal(t, before, exports.Load())
}
