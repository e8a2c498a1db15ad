package expiry_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"inquiryflow/auth"
	"inquiryflow/expiry"
	"inquiryflow/inquiry"
)

var quiet = log.New(io.Discard, "", 0)

// --- Mocks ---

type MockExpirer struct {
	mock.Mock
}

func (m *MockExpirer) ExpireInquiry(ctx context.Context, id int64, source string) (int, error) {
	args := m.Called(ctx, id, source)
	return args.Int(0), args.Error(1)
}

type recordingEnqueuer struct {
	tasks []*asynq.Task
	opts  [][]asynq.Option
	err   error
}

func (r *recordingEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.tasks = append(r.tasks, task)
	r.opts = append(r.opts, opts)
	return &asynq.TaskInfo{ID: fmt.Sprintf("task-%d", len(r.tasks)), Queue: expiry.QueueName}, nil
}

func optionValue(opts []asynq.Option, typ asynq.OptionType) (interface{}, bool) {
	for _, o := range opts {
		if o.Type() == typ {
			return o.Value(), true
		}
	}
	return nil, false
}

// --- Scheduler ---

func TestScheduler_EnqueuesAtDeadline(t *testing.T) {
	enq := &recordingEnqueuer{}
	s := expiry.NewScheduler(enq, quiet)
	at := time.Date(2024, 5, 1, 10, 0, 30, 0, time.UTC)

	require.NoError(t, s.ScheduleExpiry(context.Background(), 7, at))
	require.Len(t, enq.tasks, 1)
	assert.Equal(t, expiry.TypeInquiryExpire, enq.tasks[0].Type())

	var payload expiry.Payload
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &payload))
	assert.EqualValues(t, 7, payload.InquiryID)
	assert.True(t, payload.Deadline.Equal(at))

	processAt, ok := optionValue(enq.opts[0], asynq.ProcessAtOpt)
	require.True(t, ok)
	assert.True(t, processAt.(time.Time).Equal(at))

	queue, ok := optionValue(enq.opts[0], asynq.QueueOpt)
	require.True(t, ok)
	assert.Equal(t, expiry.QueueName, queue)

	id, ok := optionValue(enq.opts[0], asynq.TaskIDOpt)
	require.True(t, ok)
	assert.Equal(t, expiry.TaskID(7, at), id)
}

func TestScheduler_DuplicateIsNotAnError(t *testing.T) {
	enq := &recordingEnqueuer{err: asynq.ErrTaskIDConflict}
	s := expiry.NewScheduler(enq, quiet)
	assert.NoError(t, s.ScheduleExpiry(context.Background(), 1, time.Now()))
}

func TestScheduler_PropagatesEnqueueFailure(t *testing.T) {
	boom := errors.New("redis down")
	s := expiry.NewScheduler(&recordingEnqueuer{err: boom}, quiet)
	err := s.ScheduleExpiry(context.Background(), 1, time.Now())
	assert.ErrorIs(t, err, boom)
}

func TestTaskID_StablePerDeadline(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, expiry.TaskID(3, at), expiry.TaskID(3, at))
	assert.NotEqual(t, expiry.TaskID(3, at), expiry.TaskID(3, at.Add(time.Millisecond)))
	assert.NotEqual(t, expiry.TaskID(3, at), expiry.TaskID(4, at))
}

// --- Processor ---

func TestHandleExpireTask_Success(t *testing.T) {
	svc := new(MockExpirer)
	deadline := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	p := expiry.NewProcessor(svc, quiet).WithClock(func() time.Time { return deadline.Add(time.Second) })

	svc.On("ExpireInquiry", mock.Anything, int64(12), inquiry.ExpirySourceTask).Return(1, nil)

	task, err := expiry.NewTask(12, deadline)
	require.NoError(t, err)
	assert.NoError(t, p.HandleExpireTask(context.Background(), task))
	svc.AssertExpectations(t)
}

func TestHandleExpireTask_BadPayloadSkipsRetry(t *testing.T) {
	svc := new(MockExpirer)
	p := expiry.NewProcessor(svc, quiet)

	err := p.HandleExpireTask(context.Background(), asynq.NewTask(expiry.TypeInquiryExpire, []byte("{not json")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	b, _ := json.Marshal(expiry.Payload{InquiryID: 0})
	err = p.HandleExpireTask(context.Background(), asynq.NewTask(expiry.TypeInquiryExpire, b))
	assert.ErrorIs(t, err, asynq.SkipRetry)
	svc.AssertNotCalled(t, "ExpireInquiry", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleExpireTask_DeletedInquiry(t *testing.T) {
	svc := new(MockExpirer)
	p := expiry.NewProcessor(svc, quiet)
	svc.On("ExpireInquiry", mock.Anything, int64(5), inquiry.ExpirySourceTask).Return(0, inquiry.NotFound(5))

	task, _ := expiry.NewTask(5, time.Now().Add(-time.Minute))
	assert.NoError(t, p.HandleExpireTask(context.Background(), task))
}

func TestHandleExpireTask_EarlyDeliveryRetries(t *testing.T) {
	svc := new(MockExpirer)
	deadline := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	p := expiry.NewProcessor(svc, quiet).WithClock(func() time.Time { return deadline.Add(-50 * time.Millisecond) })
	svc.On("ExpireInquiry", mock.Anything, int64(9), inquiry.ExpirySourceTask).Return(0, nil)

	task, _ := expiry.NewTask(9, deadline)
	err := p.HandleExpireTask(context.Background(), task)
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestHandleExpireTask_StoreFailureRetries(t *testing.T) {
	svc := new(MockExpirer)
	p := expiry.NewProcessor(svc, quiet)
	boom := errors.New("connection reset")
	svc.On("ExpireInquiry", mock.Anything, int64(2), inquiry.ExpirySourceTask).Return(0, boom)

	task, _ := expiry.NewTask(2, time.Now())
	assert.ErrorIs(t, p.HandleExpireTask(context.Background(), task), boom)
}

// End to end through the real service: the scheduler records the slot
// deadline, and running the task after it rejects the silent freelancer.
func TestExpiry_ServiceRoundTrip(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	enq := &recordingEnqueuer{}
	store := inquiry.NewMemoryStore()
	svc := inquiry.NewService(store, quiet).WithClock(clock).WithScheduler(expiry.NewScheduler(enq, quiet))

	admin := inquiry.Caller{ID: "PB-AM0001", Role: auth.RoleAdmin}
	coord := inquiry.Caller{ID: "PB-PC0001", Role: auth.RoleCoordinator}

	created, err := svc.Apply(ctx, admin, inquiry.CreateInquiry{AdminID: admin.ID, Details: inquiry.Details{
		Name: "Roof leak", CreatedAt: now, Service: "Roofing", ContactNumber: "+6580000000",
	}})
	require.NoError(t, err)
	id := created.Inquiry.ID

	_, err = svc.Apply(ctx, admin, inquiry.RequestCoordinator{AdminID: admin.ID, InquiryID: id, CoordinatorID: coord.ID, Countdown: time.Minute})
	require.NoError(t, err)
	_, err = svc.Apply(ctx, coord, inquiry.AcceptAsCoordinator{CoordinatorID: coord.ID, InquiryID: id})
	require.NoError(t, err)
	_, err = svc.Apply(ctx, coord, inquiry.RequestFreelancer{CoordinatorID: coord.ID, InquiryID: id, FreelancerID: "PB-FR0001", Countdown: 10 * time.Second})
	require.NoError(t, err)

	require.Len(t, enq.tasks, 2)
	last := enq.tasks[1]

	now = now.Add(11 * time.Second)
	p := expiry.NewProcessor(svc, quiet).WithClock(clock)
	require.NoError(t, p.HandleExpireTask(ctx, last))

	got, err := svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, inquiry.Status(inquiry.CoordinatorAccepted{CoordinatorID: coord.ID}), got.Status)
}
