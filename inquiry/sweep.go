package inquiry

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"inquiryflow/auth"
	"inquiryflow/metrics"
)

// Sources reported with expiry metrics.
const (
	ExpirySourceSweep = "sweep"
	ExpirySourceTask  = "task"
)

const sweepConcurrency = 4

// Implicit is a rejection owed by a party whose countdown lapsed, phrased as
// the action that party would have sent.
type Implicit struct {
	Action Action
	Caller Caller
}

// ImplicitRejections lists the rejections the Slot Timer Policy implies for
// inq at now, in slot order.
func ImplicitRejections(inq Inquiry, now time.Time) []Implicit {
	switch st := inq.Status.(type) {
	case CoordinatorRequested:
		if !IsCoordinatorRequestExpired(st, now) {
			return nil
		}
		return []Implicit{{
			Action: RejectAsCoordinator{CoordinatorID: st.CoordinatorID, InquiryID: inq.ID},
			Caller: Caller{ID: st.CoordinatorID, Role: auth.RoleCoordinator},
		}}
	case FreelancerRequested:
		var out []Implicit
		for _, idx := range ExpiredSlots(st, now) {
			id := st.Slots[idx].FreelancerID
			out = append(out, Implicit{
				Action: RejectAsFreelancer{FreelancerID: id, InquiryID: inq.ID},
				Caller: Caller{ID: id, Role: auth.RoleFreelancer},
			})
		}
		return out
	default:
		return nil
	}
}

// ExpireInquiry materialises every implicit rejection currently owed on id
// and returns how many were applied. A party that answered in the meantime
// simply drops out on the next read.
func (s *Service) ExpireInquiry(ctx context.Context, id int64, source string) (int, error) {
	applied := 0
	// each pass resolves at least one slot or the coordinator request
	for pass := 0; pass <= MaxSlots; pass++ {
		inq, err := s.store.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			return applied, nil
		}
		if err != nil {
			return applied, err
		}
		owed := ImplicitRejections(inq, s.engine.Now())
		if len(owed) == 0 {
			return applied, nil
		}

		imp := owed[0]
		_, err = s.Apply(ctx, imp.Caller, imp.Action)
		switch {
		case err == nil:
			applied++
			metrics.RecordExpiry(expiryKind(imp.Action), source)
		case errors.Is(err, ErrIllegalTransition), errors.Is(err, ErrNotRequested):
			// raced with an explicit response or another expirer
		default:
			return applied, err
		}
	}
	return applied, nil
}

func expiryKind(a Action) string {
	if _, ok := a.(RejectAsCoordinator); ok {
		return "coordinator"
	}
	return "slot"
}

// SweepExpired scans every inquiry with a live countdown and expires what
// is due. It returns the number of implicit rejections applied.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	start := time.Now()
	defer func() { metrics.RecordSweep(time.Since(start)) }()

	var due []int64
	now := s.engine.Now()
	for _, label := range []Label{LabelCoordinatorRequested, LabelFreelancerRequested} {
		list, err := s.store.ListByStatus(ctx, label)
		if err != nil {
			return 0, err
		}
		for _, inq := range list {
			if len(ImplicitRejections(inq, now)) > 0 {
				due = append(due, inq.ID)
			}
		}
	}
	if len(due) == 0 {
		return 0, nil
	}

	var total atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sweepConcurrency)
	for _, id := range due {
		g.Go(func() error {
			n, err := s.ExpireInquiry(gctx, id, ExpirySourceSweep)
			total.Add(int64(n))
			return err
		})
	}
	err := g.Wait()
	if n := total.Load(); n > 0 {
		s.logger.Printf("sweep: expired %d pending requests across %d inquiries", n, len(due))
	}
	return int(total.Load()), err
}

// RunSweeper calls SweepExpired every interval until ctx is done. Sweep
// errors are logged and the loop carries on.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepExpired(ctx); err != nil && ctx.Err() == nil {
				s.logger.Printf("sweep: %v", err)
			}
		}
	}
}
