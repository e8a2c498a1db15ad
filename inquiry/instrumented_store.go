package inquiry

import (
	"context"
	"time"

	"inquiryflow/metrics"
)

// InstrumentedStore records call counts and latency for another Store.
type InstrumentedStore struct {
	next   Store
	driver string
}

func NewInstrumentedStore(next Store, driver string) *InstrumentedStore {
	return &InstrumentedStore{next: next, driver: driver}
}

func (s *InstrumentedStore) Get(ctx context.Context, id int64) (Inquiry, error) {
	start := time.Now()
	inq, err := s.next.Get(ctx, id)
	metrics.RecordStoreOperation(s.driver, "get", err, time.Since(start))
	return inq, err
}

func (s *InstrumentedStore) ListByStatus(ctx context.Context, label Label) ([]Inquiry, error) {
	start := time.Now()
	list, err := s.next.ListByStatus(ctx, label)
	metrics.RecordStoreOperation(s.driver, "list", err, time.Since(start))
	return list, err
}

func (s *InstrumentedStore) Create(ctx context.Context, details Details, status Status) (Inquiry, error) {
	start := time.Now()
	inq, err := s.next.Create(ctx, details, status)
	metrics.RecordStoreOperation(s.driver, "create", err, time.Since(start))
	return inq, err
}

func (s *InstrumentedStore) CompareAndSwap(ctx context.Context, id, expectedVersion int64, next Status) (int64, error) {
	start := time.Now()
	v, err := s.next.CompareAndSwap(ctx, id, expectedVersion, next)
	metrics.RecordStoreOperation(s.driver, "cas", err, time.Since(start))
	return v, err
}

func (s *InstrumentedStore) Delete(ctx context.Context, id, expectedVersion int64) error {
	start := time.Now()
	err := s.next.Delete(ctx, id, expectedVersion)
	metrics.RecordStoreOperation(s.driver, "delete", err, time.Since(start))
	return err
}
