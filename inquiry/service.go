package inquiry

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"inquiryflow/auth"
	"inquiryflow/db"
	"inquiryflow/metrics"
)

// Resolver turns a bearer token into the caller it was issued to.
type Resolver interface {
	ResolveCaller(token string) (string, auth.Role, error)
}

// ExpiryScheduler arranges for an inquiry to be re-examined at a deadline.
type ExpiryScheduler interface {
	ScheduleExpiry(ctx context.Context, inquiryID int64, at time.Time) error
}

// Result is what a successful Apply produced.
type Result struct {
	Inquiry Inquiry
	From    Label
	Deleted bool
}

// Service runs the read, decide, compare-and-swap loop around the engine.
type Service struct {
	store      Store
	engine     *Engine
	logger     *log.Logger
	maxRetries int
	resolver   Resolver
	scheduler  ExpiryScheduler
}

// NewService wires a store with a wall-clock engine. A nil logger means log.Default().
func NewService(store Store, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		store:      store,
		engine:     NewEngine(),
		logger:     logger,
		maxRetries: db.DefaultMaxRetries,
	}
}

// WithClock overrides the engine clock.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.engine.WithClock(now)
	return s
}

// WithMaxRetries bounds how many times a version conflict is retried.
func (s *Service) WithMaxRetries(n int) *Service {
	if n >= 0 {
		s.maxRetries = n
	}
	return s
}

func (s *Service) WithResolver(r Resolver) *Service {
	s.resolver = r
	return s
}

// WithScheduler enables push expiry for new countdowns.
func (s *Service) WithScheduler(sch ExpiryScheduler) *Service {
	s.scheduler = sch
	return s
}

// Now reads the service clock at persisted precision.
func (s *Service) Now() time.Time {
	return s.engine.Now()
}

// Get returns a single inquiry.
func (s *Service) Get(ctx context.Context, id int64) (Inquiry, error) {
	return s.store.Get(ctx, id)
}

// ListByStatus returns every inquiry currently carrying label.
func (s *Service) ListByStatus(ctx context.Context, label Label) ([]Inquiry, error) {
	return s.store.ListByStatus(ctx, label)
}

// ApplyWithToken resolves the token and applies the action as that caller.
func (s *Service) ApplyWithToken(ctx context.Context, token string, action Action) (Result, error) {
	if s.resolver == nil {
		return Result{}, errorf(ErrAuthentication, "no resolver configured")
	}
	id, role, err := s.resolver.ResolveCaller(token)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrAuthentication, err)
	}
	return s.Apply(ctx, Caller{ID: id, Role: role}, action)
}

// Apply decides and persists one action. Version conflicts re-read the
// inquiry and re-run the decision from scratch; engine errors are returned
// as-is and never retried.
func (s *Service) Apply(ctx context.Context, caller Caller, action Action) (Result, error) {
	start := time.Now()
	if action == nil {
		return Result{}, errorf(ErrInvalidAction, "nil action")
	}

	var result Result
	op := func() error {
		var err error
		if create, ok := action.(CreateInquiry); ok {
			result, err = s.create(ctx, caller, create)
		} else {
			result, err = s.transition(ctx, caller, action)
		}
		if errors.Is(err, ErrVersionConflict) {
			metrics.RecordVersionConflict()
			s.logger.Printf("inquiry %d: version conflict on %s, retrying", action.Target(), action.Label())
		}
		return err
	}
	err := db.WithRetries(ctx, op, s.maxRetries, func(err error) bool {
		return errors.Is(err, ErrVersionConflict)
	})
	metrics.RecordTransition(string(action.Label()), ErrorKind(err), time.Since(start))
	if err != nil {
		return Result{}, err
	}

	to := "deleted"
	if !result.Deleted {
		to = string(result.Inquiry.Status.Label())
	}
	s.logger.Printf("inquiry %d: %s %s -> %s by %s", result.Inquiry.ID, action.Label(), result.From, to, caller.ID)

	s.schedule(ctx, action, result)
	return result, nil
}

func (s *Service) create(ctx context.Context, caller Caller, action CreateInquiry) (Result, error) {
	now := s.engine.Now()
	if action.Details.CreatedAt.IsZero() {
		action.Details.CreatedAt = now
	}
	action.Details.CreatedAt = action.Details.CreatedAt.UTC().Truncate(time.Millisecond)
	if !action.Details.Deadline.IsZero() {
		action.Details.Deadline = action.Details.Deadline.UTC().Truncate(time.Millisecond)
	}

	out, err := s.engine.Apply(nil, action, caller)
	if err != nil {
		return Result{}, err
	}
	inq, err := s.store.Create(ctx, action.Details, out.Status)
	if err != nil {
		return Result{}, err
	}
	return Result{Inquiry: inq}, nil
}

func (s *Service) transition(ctx context.Context, caller Caller, action Action) (Result, error) {
	inq, err := s.store.Get(ctx, action.Target())
	if errors.Is(err, ErrNotFound) {
		// let the engine report authorization failures ahead of existence
		_, err = s.engine.Apply(nil, action, caller)
		return Result{}, err
	}
	if err != nil {
		return Result{}, err
	}

	out, err := s.engine.Apply(inq.Status, action, caller)
	if err != nil {
		return Result{}, err
	}

	from := inq.Status.Label()
	if out.Deleted {
		if err := s.store.Delete(ctx, inq.ID, inq.Version); err != nil {
			return Result{}, err
		}
		return Result{Inquiry: inq, From: from, Deleted: true}, nil
	}

	version, err := s.store.CompareAndSwap(ctx, inq.ID, inq.Version, out.Status)
	if err != nil {
		return Result{}, err
	}
	inq.Status = out.Status
	inq.Version = version
	return Result{Inquiry: inq, From: from}, nil
}

// schedule pushes the new countdown to the expiry scheduler. Failures are
// logged only: lazy expiry still holds without the push.
func (s *Service) schedule(ctx context.Context, action Action, result Result) {
	if s.scheduler == nil || result.Deleted {
		return
	}
	switch action.(type) {
	case RequestCoordinator, RequestFreelancer:
	default:
		return
	}
	deadline, ok := NextDeadline(result.Inquiry.Status)
	if !ok {
		return
	}
	if a, ok := action.(RequestFreelancer); ok {
		if st, ok := result.Inquiry.Status.(FreelancerRequested); ok {
			if idx := st.IndexOf(a.FreelancerID); idx >= 0 {
				deadline = st.Slots[idx].Deadline()
			}
		}
	}
	if err := s.scheduler.ScheduleExpiry(ctx, result.Inquiry.ID, deadline); err != nil {
		s.logger.Printf("inquiry %d: schedule expiry at %s: %v", result.Inquiry.ID, deadline.Format(time.RFC3339), err)
	}
}
