package mongo

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inquiryflow/db"
	"inquiryflow/inquiry"
)

func newTestStore(t *testing.T) (*Store, context.Context) {
	t.Helper()
	uri := os.Getenv("MONGO_URI_TEST")
	if uri == "" {
		t.Skip("MONGO_URI_TEST not set; skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	t.Cleanup(cancel)

	dbName := fmt.Sprintf("inquiryflow_test_%d", time.Now().UnixNano())
	client, database, err := db.ConnectMongo(ctx, uri, dbName)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = database.Drop(context.Background())
		_ = db.DisconnectMongo(client)
	})

	store := New(database)
	require.NoError(t, store.EnsureIndexes(ctx))
	return store, ctx
}

func details() inquiry.Details {
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	return inquiry.Details{
		Name:          "Garden wall",
		CreatedAt:     created,
		Deadline:      created.Add(72 * time.Hour),
		Service:       "Masonry",
		ContactNumber: "+6590000000",
	}
}

func TestStore_SequentialIDs(t *testing.T) {
	store, ctx := newTestStore(t)

	first, err := store.Create(ctx, details(), inquiry.Unassigned{})
	require.NoError(t, err)
	second, err := store.Create(ctx, details(), inquiry.Unassigned{})
	require.NoError(t, err)

	assert.EqualValues(t, 1, first.ID)
	assert.EqualValues(t, 2, second.ID)

	got, err := store.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, details(), got.Details)
}

func TestStore_SlotResponsesSurviveStorage(t *testing.T) {
	store, ctx := newTestStore(t)
	created, err := store.Create(ctx, details(), inquiry.Unassigned{})
	require.NoError(t, err)

	at := time.Date(2024, 5, 1, 11, 0, 0, 0, time.UTC)
	no, yes := false, true
	fr := inquiry.FreelancerRequested{CoordinatorID: "PB-PC0001"}
	fr.Slots[0] = &inquiry.Slot{FreelancerID: "PB-FR0001", RequestedAt: at, Countdown: time.Second}
	fr.Slots[1] = &inquiry.Slot{FreelancerID: "PB-FR0002", RequestedAt: at, Countdown: time.Second, Response: &no}
	fr.Slots[2] = &inquiry.Slot{FreelancerID: "PB-FR0003", RequestedAt: at, Countdown: time.Second, Response: &yes}

	version, err := store.CompareAndSwap(ctx, created.ID, created.Version, fr)
	require.NoError(t, err)
	assert.EqualValues(t, 2, version)

	got, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, inquiry.Status(fr), got.Status)
	assert.EqualValues(t, 2, got.Version)

	list, err := store.ListByStatus(ctx, inquiry.LabelFreelancerRequested)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestStore_VersionGuard(t *testing.T) {
	store, ctx := newTestStore(t)
	created, err := store.Create(ctx, details(), inquiry.Unassigned{})
	require.NoError(t, err)

	const racers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.CompareAndSwap(ctx, created.ID, created.Version, inquiry.CoordinatorAccepted{CoordinatorID: "PB-PC0001"})
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, inquiry.ErrVersionConflict)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)

	assert.ErrorIs(t, store.Delete(ctx, created.ID, created.Version), inquiry.ErrVersionConflict)
	require.NoError(t, store.Delete(ctx, created.ID, created.Version+1))
	_, err = store.Get(ctx, created.ID)
	assert.ErrorIs(t, err, inquiry.ErrNotFound)
}
