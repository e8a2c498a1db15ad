package sqlite

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inquiryflow/auth"
	"inquiryflow/inquiry"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func details() inquiry.Details {
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	return inquiry.Details{
		Name:          "Kitchen refit",
		Description:   "Replace cabinets",
		CreatedAt:     created,
		Deadline:      created.Add(48 * time.Hour),
		Service:       "Carpentry",
		ContactNumber: "+6591234567",
		DeliveryArea:  "North",
		Reference:     true,
	}
}

func TestStore_CreateGetList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a, err := store.Create(ctx, details(), inquiry.Unassigned{})
	require.NoError(t, err)
	b, err := store.Create(ctx, details(), inquiry.CoordinatorAccepted{CoordinatorID: "PB-PC0001"})
	require.NoError(t, err)
	c, err := store.Create(ctx, details(), inquiry.Unassigned{})
	require.NoError(t, err)

	assert.EqualValues(t, 1, a.Version)
	assert.Less(t, a.ID, b.ID)

	got, err := store.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, details(), got.Details)
	assert.Equal(t, inquiry.Status(inquiry.Unassigned{}), got.Status)

	list, err := store.ListByStatus(ctx, inquiry.LabelUnassigned)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, a.ID, list[0].ID)
	assert.Equal(t, c.ID, list[1].ID)

	_, err = store.Get(ctx, 999)
	assert.ErrorIs(t, err, inquiry.ErrNotFound)
}

func TestStore_CompareAndSwap(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created, err := store.Create(ctx, details(), inquiry.Unassigned{})
	require.NoError(t, err)

	requested := inquiry.CoordinatorRequested{
		CoordinatorID: "PB-PC0001",
		RequestedAt:   time.Date(2024, 5, 1, 10, 5, 0, 0, time.UTC),
		Countdown:     30 * time.Second,
	}
	version, err := store.CompareAndSwap(ctx, created.ID, created.Version, requested)
	require.NoError(t, err)
	assert.EqualValues(t, 2, version)

	_, err = store.CompareAndSwap(ctx, created.ID, created.Version, inquiry.Unassigned{})
	assert.ErrorIs(t, err, inquiry.ErrVersionConflict)

	_, err = store.CompareAndSwap(ctx, 42, 1, inquiry.Unassigned{})
	assert.ErrorIs(t, err, inquiry.ErrNotFound)

	got, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, inquiry.Status(requested), got.Status)
	assert.EqualValues(t, 2, got.Version)

	moved, err := store.ListByStatus(ctx, inquiry.LabelCoordinatorRequested)
	require.NoError(t, err)
	assert.Len(t, moved, 1)
}

func TestStore_ConcurrentWritersOneWinner(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created, err := store.Create(ctx, details(), inquiry.Unassigned{})
	require.NoError(t, err)

	const racers = 10
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
			if err != nil {
				assert.ErrorIs(t, err, inquiry.ErrVersionConflict)
				return
			}
			mu.Lock()
			wins++
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestStore_Delete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created, err := store.Create(ctx, details(), inquiry.Unassigned{})
	require.NoError(t, err)

	assert.ErrorIs(t, store.Delete(ctx, created.ID, 7), inquiry.ErrVersionConflict)
	require.NoError(t, store.Delete(ctx, created.ID, created.Version))
	assert.ErrorIs(t, store.Delete(ctx, created.ID, created.Version), inquiry.ErrNotFound)
}

func TestStore_ServesInquiryService(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	svc := inquiry.NewService(store, nil)

	admin := inquiry.Caller{ID: "PB-AM0001", Role: auth.RoleAdmin}
	res, err := svc.Apply(ctx, admin, inquiry.CreateInquiry{AdminID: admin.ID, Details: details()})
	require.NoError(t, err)

	res, err = svc.Apply(ctx, admin, inquiry.RequestCoordinator{
		AdminID:       admin.ID,
		InquiryID:     res.Inquiry.ID,
		CoordinatorID: "PB-PC0001",
		Countdown:     time.Minute,
	})
	require.NoError(t, err)
	assert.Equal(t, inquiry.LabelCoordinatorRequested, res.Inquiry.Status.Label())
	assert.EqualValues(t, 2, res.Inquiry.Version)
}
