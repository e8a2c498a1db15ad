package actors

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"inquiryflow/inquiry"
)

// Member is a registered employee and a token issued for it.
type Member struct {
	ID    string
	Token string
}

// Crew is the shared cast every actor draws on.
type Crew struct {
	Svc          *inquiry.Service
	Stats        *Stats
	Admin        Member
	Coordinators []Member
	Freelancers  []Member
}

// Stats counts actor outcomes across a run.
type Stats struct {
	Applied     atomic.Int64
	Rejected    atomic.Int64
	Conflicts   atomic.Int64
	Missing     atomic.Int64
	Disconnects atomic.Int64
	Failures    atomic.Int64
	Expired     atomic.Int64

	lastFailure atomic.Value
}

// Record files err under the outcome it represents. Engine refusals,
// exhausted retries and vanished inquiries are expected under contention.
func (s *Stats) Record(ctx context.Context, err error) {
	switch {
	case err == nil:
		s.Applied.Add(1)
	case ctx.Err() != nil:
	case inquiry.IsEngineError(err):
		s.Rejected.Add(1)
	case errors.Is(err, inquiry.ErrVersionConflict):
		s.Conflicts.Add(1)
	case errors.Is(err, inquiry.ErrNotFound):
		s.Missing.Add(1)
	case isDisconnect(err):
		s.Disconnects.Add(1)
	default:
		s.Failures.Add(1)
		s.lastFailure.Store(err.Error())
	}
}

// LastFailure returns the most recent unclassified error text.
func (s *Stats) LastFailure() string {
	v, _ := s.lastFailure.Load().(string)
	return v
}

func (s *Stats) String() string {
	return fmt.Sprintf("applied=%d rejected=%d conflicts=%d missing=%d disconnects=%d failures=%d expired=%d",
		s.Applied.Load(), s.Rejected.Load(), s.Conflicts.Load(), s.Missing.Load(),
		s.Disconnects.Load(), s.Failures.Load(), s.Expired.Load())
}

// chaos kills backends mid-statement
func isDisconnect(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "57P01" || strings.HasPrefix(pgErr.Code, "08")
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "conn closed") || strings.Contains(msg, "connection reset")
}

func countdown(rng *rand.Rand) time.Duration {
	return time.Duration(300+rng.Intn(1700)) * time.Millisecond
}

func pause(rng *rand.Rand, base, jitter int) {
	time.Sleep(time.Duration(base+rng.Intn(jitter)) * time.Millisecond)
}

func stopped(ctx context.Context, stop <-chan struct{}) bool {
	select {
	case <-ctx.Done():
		return true
	case <-stop:
		return true
	default:
		return false
	}
}

// pickWhere lists inquiries in label and returns a random one accepted by keep.
func pickWhere(ctx context.Context, c *Crew, rng *rand.Rand, label inquiry.Label, keep func(inquiry.Inquiry) bool) (inquiry.Inquiry, bool) {
	list, err := c.Svc.ListByStatus(ctx, label)
	if err != nil {
		c.Stats.Record(ctx, err)
		return inquiry.Inquiry{}, false
	}
	var matched []inquiry.Inquiry
	for _, inq := range list {
		if keep == nil || keep(inq) {
			matched = append(matched, inq)
		}
	}
	if len(matched) == 0 {
		return inquiry.Inquiry{}, false
	}
	return matched[rng.Intn(len(matched))], true
}

func (c *Crew) apply(ctx context.Context, m Member, action inquiry.Action) {
	_, err := c.Svc.ApplyWithToken(ctx, m.Token, action)
	c.Stats.Record(ctx, err)
}

// Admin creates inquiries, hands them to coordinators (again, once a request
// lapses), tags and resolves assigned work, and now and then deletes an
// unassigned inquiry.
func Admin(ctx context.Context, c *Crew, seed int64, stop <-chan struct{}) error {
	rng := rand.New(rand.NewSource(seed))
	me := c.Admin
	for !stopped(ctx, stop) {
		switch n := rng.Intn(10); {
		case n < 3:
			c.apply(ctx, me, inquiry.CreateInquiry{
				AdminID: me.ID,
				Details: inquiry.Details{
					Name:          fmt.Sprintf("Stress %d", rng.Intn(1_000_000)),
					Service:       "Cleaning",
					ContactNumber: "+6590000000",
					DeliveryArea:  "Central",
				},
			})
		case n < 6:
			if inq, ok := pickWhere(ctx, c, rng, inquiry.LabelUnassigned, nil); ok {
				coord := c.Coordinators[rng.Intn(len(c.Coordinators))]
				c.apply(ctx, me, inquiry.RequestCoordinator{
					AdminID:       me.ID,
					InquiryID:     inq.ID,
					CoordinatorID: coord.ID,
					Countdown:     countdown(rng),
				})
			}
		case n < 7:
			now := c.Svc.Now()
			if inq, ok := pickWhere(ctx, c, rng, inquiry.LabelCoordinatorRequested, func(inq inquiry.Inquiry) bool {
				return inquiry.IsCoordinatorRequestExpired(inq.Status.(inquiry.CoordinatorRequested), now)
			}); ok {
				coord := c.Coordinators[rng.Intn(len(c.Coordinators))]
				c.apply(ctx, me, inquiry.RequestCoordinator{
					AdminID:       me.ID,
					InquiryID:     inq.ID,
					CoordinatorID: coord.ID,
					Countdown:     countdown(rng),
				})
			} else if inq, ok := pickWhere(ctx, c, rng, inquiry.LabelUnassigned, nil); ok {
				c.apply(ctx, me, inquiry.DeleteInquiry{AdminID: me.ID, InquiryID: inq.ID})
			}
		case n < 9:
			if inq, ok := pickWhere(ctx, c, rng, inquiry.LabelFreelancerAssigned, nil); ok {
				c.apply(ctx, me, inquiry.UpdateTags{
					AdminID:   me.ID,
					InquiryID: inq.ID,
					Tags:      inquiry.NewTagSet(fmt.Sprintf("batch-%d", rng.Intn(4))),
				})
			}
		default:
			if inq, ok := pickWhere(ctx, c, rng, inquiry.LabelFreelancerAssigned, nil); ok {
				c.apply(ctx, me, inquiry.MarkResolved{AdminID: me.ID, InquiryID: inq.ID, Tags: inquiry.NewTagSet("done")})
			}
		}
		pause(rng, 10, 30)
	}
	return nil
}

// Coordinator answers its own requests and staffs accepted inquiries,
// assigning the first freelancer that accepts.
func Coordinator(ctx context.Context, c *Crew, me Member, seed int64, stop <-chan struct{}) error {
	rng := rand.New(rand.NewSource(seed))
	for !stopped(ctx, stop) {
		if inq, ok := pickWhere(ctx, c, rng, inquiry.LabelCoordinatorRequested, func(inq inquiry.Inquiry) bool {
			return inq.Status.(inquiry.CoordinatorRequested).CoordinatorID == me.ID
		}); ok {
			switch n := rng.Intn(10); {
			case n < 5:
				c.apply(ctx, me, inquiry.AcceptAsCoordinator{CoordinatorID: me.ID, InquiryID: inq.ID})
			case n < 7:
				c.apply(ctx, me, inquiry.RejectAsCoordinator{CoordinatorID: me.ID, InquiryID: inq.ID})
			default:
				c.requestFreelancer(ctx, me, rng, inq.ID)
			}
		}

		if inq, ok := pickWhere(ctx, c, rng, inquiry.LabelCoordinatorAccepted, func(inq inquiry.Inquiry) bool {
			return inq.Status.(inquiry.CoordinatorAccepted).CoordinatorID == me.ID
		}); ok {
			c.requestFreelancer(ctx, me, rng, inq.ID)
		}

		if inq, ok := pickWhere(ctx, c, rng, inquiry.LabelFreelancerRequested, func(inq inquiry.Inquiry) bool {
			return inq.Status.(inquiry.FreelancerRequested).CoordinatorID == me.ID
		}); ok {
			c.staff(ctx, me, rng, inq)
		}
		pause(rng, 15, 30)
	}
	return nil
}

func (c *Crew) requestFreelancer(ctx context.Context, me Member, rng *rand.Rand, id int64) {
	fr := c.Freelancers[rng.Intn(len(c.Freelancers))]
	c.apply(ctx, me, inquiry.RequestFreelancer{
		CoordinatorID: me.ID,
		InquiryID:     id,
		FreelancerID:  fr.ID,
		Countdown:     countdown(rng),
	})
}

func (c *Crew) staff(ctx context.Context, me Member, rng *rand.Rand, inq inquiry.Inquiry) {
	st := inq.Status.(inquiry.FreelancerRequested)
	now := c.Svc.Now()
	for _, slot := range st.Slots {
		if slot == nil {
			continue
		}
		if r := inquiry.EffectiveResponse(*slot, now); r != nil && *r {
			c.apply(ctx, me, inquiry.AssignFreelancer{CoordinatorID: me.ID, InquiryID: inq.ID, FreelancerID: slot.FreelancerID})
			return
		}
	}
	if _, free := st.NextFree(); !free {
		return
	}
	// occasionally re-request a holder to exercise the duplicate guard
	if rng.Intn(10) > 0 {
		c.requestFreelancer(ctx, me, rng, inq.ID)
		return
	}
	for _, slot := range st.Slots {
		if slot != nil {
			c.apply(ctx, me, inquiry.RequestFreelancer{
				CoordinatorID: me.ID,
				InquiryID:     inq.ID,
				FreelancerID:  slot.FreelancerID,
				Countdown:     countdown(rng),
			})
			return
		}
	}
}

// Freelancer answers open requests addressed to it.
func Freelancer(ctx context.Context, c *Crew, me Member, seed int64, stop <-chan struct{}) error {
	rng := rand.New(rand.NewSource(seed))
	for !stopped(ctx, stop) {
		inq, ok := pickWhere(ctx, c, rng, inquiry.LabelFreelancerRequested, func(inq inquiry.Inquiry) bool {
			st := inq.Status.(inquiry.FreelancerRequested)
			idx := st.IndexOf(me.ID)
			return idx >= 0 && st.Slots[idx].Response == nil
		})
		if ok {
			if rng.Intn(10) < 4 {
				c.apply(ctx, me, inquiry.AcceptAsFreelancer{FreelancerID: me.ID, InquiryID: inq.ID})
			} else {
				c.apply(ctx, me, inquiry.RejectAsFreelancer{FreelancerID: me.ID, InquiryID: inq.ID})
			}
		}
		pause(rng, 20, 40)
	}
	return nil
}

// Sweeper materialises lapsed countdowns the way the worker does.
func Sweeper(ctx context.Context, c *Crew, stop <-chan struct{}) error {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-stop:
			return nil
		case <-ticker.C:
			n, err := c.Svc.SweepExpired(ctx)
			c.Stats.Expired.Add(int64(n))
			if err != nil {
				c.Stats.Record(ctx, err)
			}
		}
	}
}
