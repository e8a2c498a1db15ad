package inquiry

import (
	"context"
	"testing"
	"time"
)

func TestImplicitRejections(t *testing.T) {
	st := FreelancerRequested{CoordinatorID: coordID}
	st.Slots[0] = &Slot{FreelancerID: fl1, RequestedAt: epoch, Countdown: ms(1000)}
	st.Slots[1] = answeredSlot(fl2, epoch, true)
	st.Slots[2] = &Slot{FreelancerID: fl3, RequestedAt: epoch, Countdown: ms(5000)}
	inq := Inquiry{ID: 4, Status: st}

	if got := ImplicitRejections(inq, epoch); len(got) != 0 {
		t.Fatalf("nothing should be owed yet, got %d", len(got))
	}
	got := ImplicitRejections(inq, epoch.Add(ms(1000)))
	if len(got) != 1 {
		t.Fatalf("expected one implicit rejection, got %d", len(got))
	}
	want := RejectAsFreelancer{FreelancerID: fl1, InquiryID: 4}
	if got[0].Action != Action(want) || got[0].Caller != freelancer(fl1) {
		t.Fatalf("unexpected implicit %#v", got[0])
	}

	cr := Inquiry{ID: 5, Status: CoordinatorRequested{CoordinatorID: coordID, RequestedAt: epoch, Countdown: ms(1000)}}
	got = ImplicitRejections(cr, epoch.Add(ms(1000)))
	if len(got) != 1 || got[0].Action != Action(RejectAsCoordinator{CoordinatorID: coordID, InquiryID: 5}) {
		t.Fatalf("unexpected coordinator implicit %#v", got)
	}
}

func TestService_SweepExpiresLapsedRequests(t *testing.T) {
	f := newServiceFixture()
	ctx := context.Background()

	// inquiry a: every freelancer lapses
	a := f.seedAccepted(t)
	f.apply(t, coordinator, RequestFreelancer{CoordinatorID: coordID, InquiryID: a, FreelancerID: fl1, Countdown: ms(1000)})
	f.apply(t, coordinator, RequestFreelancer{CoordinatorID: coordID, InquiryID: a, FreelancerID: fl2, Countdown: ms(2000)})

	// inquiry b: one lapses, one accepted
	b := f.seedAccepted(t)
	f.apply(t, coordinator, RequestFreelancer{CoordinatorID: coordID, InquiryID: b, FreelancerID: fl1, Countdown: ms(1000)})
	f.apply(t, coordinator, RequestFreelancer{CoordinatorID: coordID, InquiryID: b, FreelancerID: fl2, Countdown: ms(60000)})
	f.apply(t, freelancer(fl2), AcceptAsFreelancer{FreelancerID: fl2, InquiryID: b})

	// inquiry c: coordinator never answers
	c := f.apply(t, admin, CreateInquiry{AdminID: adminID, Details: sampleDetails()}).Inquiry.ID
	f.apply(t, admin, RequestCoordinator{AdminID: adminID, InquiryID: c, CoordinatorID: coordID, Countdown: ms(1500)})

	f.clock.Advance(ms(2000))
	n, err := f.svc.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	// rejecting fl1 on a already leaves every slot lapsed, so a reverts in one step
	if n != 3 {
		t.Fatalf("expected 3 implicit rejections, got %d", n)
	}

	got, _ := f.store.Get(ctx, a)
	if got.Status.Label() != LabelCoordinatorAccepted {
		t.Fatalf("inquiry a: expected CoordinatorAccepted, got %s", got.Status.Label())
	}
	got, _ = f.store.Get(ctx, b)
	fr, ok := got.Status.(FreelancerRequested)
	if !ok {
		t.Fatalf("inquiry b: expected FreelancerRequested, got %s", got.Status.Label())
	}
	if fr.Slots[0].Response == nil || *fr.Slots[0].Response {
		t.Fatal("inquiry b: lapsed slot should read false")
	}
	got, _ = f.store.Get(ctx, c)
	if got.Status.Label() != LabelUnassigned {
		t.Fatalf("inquiry c: expected Unassigned, got %s", got.Status.Label())
	}

	n, err = f.svc.SweepExpired(ctx)
	if err != nil || n != 0 {
		t.Fatalf("second sweep should be a no-op, got %d, %v", n, err)
	}
}

func TestService_ExpireInquiryIgnoresMissing(t *testing.T) {
	f := newServiceFixture()
	n, err := f.svc.ExpireInquiry(context.Background(), 42, ExpirySourceTask)
	if err != nil || n != 0 {
		t.Fatalf("expected no-op, got %d, %v", n, err)
	}
}

func TestService_RunSweeperStopsWithContext(t *testing.T) {
	f := newServiceFixture()
	id := f.seedAccepted(t)
	f.apply(t, coordinator, RequestFreelancer{CoordinatorID: coordID, InquiryID: id, FreelancerID: fl1, Countdown: ms(1000)})
	f.clock.Advance(ms(1000))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.svc.RunSweeper(ctx, 5*time.Millisecond)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		inq, err := f.store.Get(context.Background(), id)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if inq.Status.Label() == LabelCoordinatorAccepted {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("sweeper never expired the slot, status %s", inq.Status.Label())
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
}
