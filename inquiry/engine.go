package inquiry

import (
	"time"

	"inquiryflow/auth"
)

// Outcome is the result of a legal transition. Deleted is set only for
// DeleteInquiry, in which case Status is nil.
type Outcome struct {
	Status  Status
	Deleted bool
}

// Engine decides transitions. It holds no mutable state and is safe for
// concurrent use; the clock is the only dependency.
type Engine struct {
	now func() time.Time
}

// NewEngine builds an engine on the wall clock.
func NewEngine() *Engine {
	return &Engine{now: time.Now}
}

// WithClock replaces the engine clock, mainly for tests.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Now returns the engine clock reading truncated to milliseconds, the
// precision every timestamp is persisted at.
func (e *Engine) Now() time.Time {
	return e.now().UTC().Truncate(time.Millisecond)
}

// Apply validates action against current on behalf of caller and returns
// the next status. current is nil only for CreateInquiry. Apply never
// mutates current and never returns both an outcome and an error.
func (e *Engine) Apply(current Status, action Action, caller Caller) (Outcome, error) {
	if action == nil {
		return Outcome{}, errorf(ErrInvalidAction, "nil action")
	}
	if err := authorize(action, caller); err != nil {
		return Outcome{}, err
	}

	if a, ok := action.(CreateInquiry); ok {
		if current != nil {
			return Outcome{}, errorf(ErrIllegalTransition, "inquiry already exists")
		}
		if err := a.Details.Validate(); err != nil {
			return Outcome{}, err
		}
		return Outcome{Status: Unassigned{}}, nil
	}
	if current == nil {
		return Outcome{}, errorf(ErrNotFound, "%s targets inquiry %d", action.Label(), action.Target())
	}

	now := e.Now()
	var (
		next Status
		err  error
	)
	switch a := action.(type) {
	case RequestCoordinator:
		next, err = requestCoordinator(current, a, now)
	case AcceptAsCoordinator:
		next, err = acceptAsCoordinator(current, a, now)
	case RejectAsCoordinator:
		next, err = rejectAsCoordinator(current, a)
	case RequestFreelancer:
		next, err = requestFreelancer(current, a, now)
	case AcceptAsFreelancer:
		next, err = acceptAsFreelancer(current, a, now)
	case RejectAsFreelancer:
		next, err = rejectAsFreelancer(current, a, now)
	case AssignFreelancer:
		next, err = assignFreelancer(current, a, now)
	case UpdateTags:
		next, err = updateTags(current, a)
	case MarkResolved:
		next, err = markResolved(current, a)
	case DeleteInquiry:
		if _, ok := current.(Unassigned); !ok {
			return Outcome{}, illegal(current, action)
		}
		return Outcome{Deleted: true}, nil
	default:
		return Outcome{}, errorf(ErrInvalidAction, "unsupported action %T", action)
	}
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Status: next}, nil
}

// requiredRole is the only role allowed to submit each action.
func requiredRole(action Action) (auth.Role, bool) {
	switch action.(type) {
	case CreateInquiry, RequestCoordinator, UpdateTags, MarkResolved, DeleteInquiry:
		return auth.RoleAdmin, true
	case AcceptAsCoordinator, RejectAsCoordinator, RequestFreelancer, AssignFreelancer:
		return auth.RoleCoordinator, true
	case AcceptAsFreelancer, RejectAsFreelancer:
		return auth.RoleFreelancer, true
	default:
		return "", false
	}
}

func authorize(action Action, caller Caller) error {
	role, ok := requiredRole(action)
	if !ok {
		return errorf(ErrInvalidAction, "unsupported action %T", action)
	}
	if caller.ID == "" {
		return errorf(ErrAuthorization, "anonymous caller")
	}
	if caller.Role != role {
		return errorf(ErrAuthorization, "%s requires role %s, caller %s is %s", action.Label(), role, caller.ID, caller.Role)
	}
	if action.Actor() != caller.ID {
		return errorf(ErrAuthorization, "%s submitted as %q by caller %q", action.Label(), action.Actor(), caller.ID)
	}
	return nil
}

func illegal(current Status, action Action) error {
	return errorf(ErrIllegalTransition, "%s not allowed from %s", action.Label(), current.Label())
}

func requestCoordinator(current Status, a RequestCoordinator, now time.Time) (Status, error) {
	if a.CoordinatorID == "" {
		return nil, errorf(ErrInvalidAction, "coordinator id required")
	}
	if a.Countdown <= 0 {
		return nil, errorf(ErrInvalidAction, "countdown must be positive")
	}
	switch st := current.(type) {
	case Unassigned:
	case CoordinatorRequested:
		// a lapsed request already reads as the coordinator's reject
		if !IsCoordinatorRequestExpired(st, now) {
			return nil, illegal(current, a)
		}
	default:
		return nil, illegal(current, a)
	}
	return CoordinatorRequested{
		CoordinatorID: a.CoordinatorID,
		RequestedAt:   now,
		Countdown:     a.Countdown.Truncate(time.Millisecond),
	}, nil
}

func acceptAsCoordinator(current Status, a AcceptAsCoordinator, now time.Time) (Status, error) {
	st, ok := current.(CoordinatorRequested)
	if !ok {
		return nil, illegal(current, a)
	}
	if st.CoordinatorID != a.CoordinatorID {
		return nil, errorf(ErrAuthorization, "inquiry %d was requested from %s", a.InquiryID, st.CoordinatorID)
	}
	if IsCoordinatorRequestExpired(st, now) {
		return nil, errorf(ErrIllegalTransition, "coordinator request expired at %s", st.Deadline().Format(time.RFC3339))
	}
	return CoordinatorAccepted{CoordinatorID: st.CoordinatorID}, nil
}

// Rejecting an expired request is allowed: it materialises the implicit reject.
func rejectAsCoordinator(current Status, a RejectAsCoordinator) (Status, error) {
	st, ok := current.(CoordinatorRequested)
	if !ok {
		return nil, illegal(current, a)
	}
	if st.CoordinatorID != a.CoordinatorID {
		return nil, errorf(ErrAuthorization, "inquiry %d was requested from %s", a.InquiryID, st.CoordinatorID)
	}
	return Unassigned{}, nil
}

func requestFreelancer(current Status, a RequestFreelancer, now time.Time) (Status, error) {
	if a.FreelancerID == "" {
		return nil, errorf(ErrInvalidAction, "freelancer id required")
	}
	if a.Countdown <= 0 {
		return nil, errorf(ErrInvalidAction, "countdown must be positive")
	}

	slot := &Slot{
		FreelancerID: a.FreelancerID,
		RequestedAt:  now,
		Countdown:    a.Countdown.Truncate(time.Millisecond),
	}

	switch st := current.(type) {
	case CoordinatorRequested:
		if st.CoordinatorID != a.CoordinatorID {
			return nil, errorf(ErrAuthorization, "inquiry %d was requested from %s", a.InquiryID, st.CoordinatorID)
		}
		if IsCoordinatorRequestExpired(st, now) {
			return nil, errorf(ErrIllegalTransition, "coordinator request expired at %s", st.Deadline().Format(time.RFC3339))
		}
		next := FreelancerRequested{CoordinatorID: st.CoordinatorID}
		next.Slots[0] = slot
		return next, nil
	case CoordinatorAccepted:
		if st.CoordinatorID != a.CoordinatorID {
			return nil, errorf(ErrAuthorization, "inquiry %d is owned by %s", a.InquiryID, st.CoordinatorID)
		}
		next := FreelancerRequested{CoordinatorID: st.CoordinatorID}
		next.Slots[0] = slot
		return next, nil
	case FreelancerRequested:
		if st.CoordinatorID != a.CoordinatorID {
			return nil, errorf(ErrAuthorization, "inquiry %d is owned by %s", a.InquiryID, st.CoordinatorID)
		}
		idx, ok := st.NextFree()
		if !ok && AllRejected(st, now) {
			// every slot is spent; the round restarts as if the revert had been written
			next := FreelancerRequested{CoordinatorID: st.CoordinatorID}
			next.Slots[0] = slot
			return next, nil
		}
		if st.IndexOf(a.FreelancerID) >= 0 {
			return nil, errorf(ErrIllegalTransition, "freelancer %s already requested", a.FreelancerID)
		}
		if !ok {
			return nil, errorf(ErrSlotExhausted, "inquiry %d already holds %d requests", a.InquiryID, MaxSlots)
		}
		next := st.clone().(FreelancerRequested)
		next.Slots[idx] = slot
		return next, nil
	default:
		return nil, illegal(current, a)
	}
}

func acceptAsFreelancer(current Status, a AcceptAsFreelancer, now time.Time) (Status, error) {
	st, ok := current.(FreelancerRequested)
	if !ok {
		return nil, illegal(current, a)
	}
	idx := st.IndexOf(a.FreelancerID)
	if idx < 0 {
		return nil, errorf(ErrNotRequested, "freelancer %s holds no slot on inquiry %d", a.FreelancerID, a.InquiryID)
	}
	slot := *st.Slots[idx]
	if slot.Response != nil {
		return nil, errorf(ErrIllegalTransition, "freelancer %s already responded", a.FreelancerID)
	}
	if IsExpired(slot, now) {
		return nil, errorf(ErrIllegalTransition, "request to %s expired at %s", a.FreelancerID, slot.Deadline().Format(time.RFC3339))
	}
	next := st.clone().(FreelancerRequested)
	next.Slots[idx].Response = boolPtr(true)
	return next, nil
}

// Once every filled slot reads as rejected the inquiry falls back to its
// coordinator so a fresh round of requests can start.
func rejectAsFreelancer(current Status, a RejectAsFreelancer, now time.Time) (Status, error) {
	st, ok := current.(FreelancerRequested)
	if !ok {
		return nil, illegal(current, a)
	}
	idx := st.IndexOf(a.FreelancerID)
	if idx < 0 {
		return nil, errorf(ErrNotRequested, "freelancer %s holds no slot on inquiry %d", a.FreelancerID, a.InquiryID)
	}
	if st.Slots[idx].Response != nil {
		return nil, errorf(ErrIllegalTransition, "freelancer %s already responded", a.FreelancerID)
	}
	next := st.clone().(FreelancerRequested)
	next.Slots[idx].Response = boolPtr(false)
	if AllRejected(next, now) {
		return CoordinatorAccepted{CoordinatorID: st.CoordinatorID}, nil
	}
	return next, nil
}

func assignFreelancer(current Status, a AssignFreelancer, now time.Time) (Status, error) {
	st, ok := current.(FreelancerRequested)
	if !ok {
		return nil, illegal(current, a)
	}
	if st.CoordinatorID != a.CoordinatorID {
		return nil, errorf(ErrAuthorization, "inquiry %d is owned by %s", a.InquiryID, st.CoordinatorID)
	}
	idx := st.IndexOf(a.FreelancerID)
	if idx < 0 {
		return nil, errorf(ErrIllegalTransition, "freelancer %s was never requested", a.FreelancerID)
	}
	if r := EffectiveResponse(*st.Slots[idx], now); r == nil || !*r {
		return nil, errorf(ErrIllegalTransition, "freelancer %s has not accepted", a.FreelancerID)
	}
	return FreelancerAssigned{
		CoordinatorID: st.CoordinatorID,
		FreelancerID:  a.FreelancerID,
	}, nil
}

func updateTags(current Status, a UpdateTags) (Status, error) {
	st, ok := current.(FreelancerAssigned)
	if !ok {
		return nil, illegal(current, a)
	}
	st.Tags = NewTagSet(a.Tags...)
	return st, nil
}

func markResolved(current Status, a MarkResolved) (Status, error) {
	st, ok := current.(FreelancerAssigned)
	if !ok {
		return nil, illegal(current, a)
	}
	return InquiryResolved{
		CoordinatorID: st.CoordinatorID,
		FreelancerID:  st.FreelancerID,
		Tags:          st.Tags.Union(a.Tags),
	}, nil
}
