// Package expiry pushes countdown deadlines onto an asynq queue so an
// inquiry is re-examined the moment a slot or coordinator request lapses,
// instead of waiting for the next read or sweep.
package expiry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"inquiryflow/inquiry"
)

const (
	TypeInquiryExpire = "inquiry:expire"
	QueueName         = "expiry"

	maxRetry = 5
)

// taskNamespace scopes the deterministic task ids.
var taskNamespace = uuid.MustParse("6f1d2a4c-8b7e-4e0f-9a51-3c2d7e6b9f10")

// Payload identifies which inquiry to re-examine and when it falls due.
type Payload struct {
	InquiryID int64     `json:"inquiry_id"`
	Deadline  time.Time `json:"deadline"`
}

// NewTask builds the expire task for one deadline.
func NewTask(inquiryID int64, deadline time.Time) (*asynq.Task, error) {
	b, err := json.Marshal(Payload{InquiryID: inquiryID, Deadline: deadline.UTC()})
	if err != nil {
		return nil, fmt.Errorf("expiry: marshal payload: %w", err)
	}
	return asynq.NewTask(TypeInquiryExpire, b), nil
}

// TaskID is stable for an (inquiry, deadline) pair so rescheduling the same
// countdown is a no-op.
func TaskID(inquiryID int64, deadline time.Time) string {
	name := fmt.Sprintf("%d:%d", inquiryID, deadline.UnixMilli())
	return uuid.NewSHA1(taskNamespace, []byte(name)).String()
}

// Enqueuer is the part of *asynq.Client the scheduler uses.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Scheduler implements inquiry.ExpiryScheduler on top of asynq.
type Scheduler struct {
	client Enqueuer
	logger *log.Logger
}

var _ inquiry.ExpiryScheduler = (*Scheduler)(nil)

func NewScheduler(client Enqueuer, logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.Default()
	}
	return &Scheduler{client: client, logger: logger}
}

func (s *Scheduler) ScheduleExpiry(ctx context.Context, inquiryID int64, at time.Time) error {
	task, err := NewTask(inquiryID, at)
	if err != nil {
		return err
	}
	info, err := s.client.EnqueueContext(ctx, task,
		asynq.ProcessAt(at),
		asynq.Queue(QueueName),
		asynq.TaskID(TaskID(inquiryID, at)),
		asynq.MaxRetry(maxRetry),
	)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return nil
		}
		return fmt.Errorf("expiry: enqueue inquiry %d: %w", inquiryID, err)
	}
	s.logger.Printf("scheduled expiry check %s for inquiry %d at %s", info.ID, inquiryID, at.UTC().Format(time.RFC3339))
	return nil
}

// Expirer issues the implicit rejections that are due on one inquiry.
type Expirer interface {
	ExpireInquiry(ctx context.Context, id int64, source string) (int, error)
}

// Processor handles expire tasks.
type Processor struct {
	svc    Expirer
	logger *log.Logger
	now    func() time.Time
}

func NewProcessor(svc Expirer, logger *log.Logger) *Processor {
	if logger == nil {
		logger = log.Default()
	}
	return &Processor{svc: svc, logger: logger, now: time.Now}
}

// WithClock overrides the clock used to detect early deliveries.
func (p *Processor) WithClock(now func() time.Time) *Processor {
	p.now = now
	return p
}

func (p *Processor) HandleExpireTask(ctx context.Context, t *asynq.Task) error {
	var payload Payload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("expiry: unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.InquiryID <= 0 {
		return fmt.Errorf("expiry: invalid inquiry id %d: %w", payload.InquiryID, asynq.SkipRetry)
	}

	n, err := p.svc.ExpireInquiry(ctx, payload.InquiryID, inquiry.ExpirySourceTask)
	if err != nil {
		if errors.Is(err, inquiry.ErrNotFound) {
			p.logger.Printf("inquiry %d gone before expiry check", payload.InquiryID)
			return nil
		}
		return fmt.Errorf("expiry: inquiry %d: %w", payload.InquiryID, err)
	}
	// Redis and local clocks can disagree by a little; retry rather than
	// drop a task that arrived before its deadline.
	if n == 0 && p.now().Before(payload.Deadline) {
		return fmt.Errorf("expiry: inquiry %d not due until %s", payload.InquiryID, payload.Deadline.Format(time.RFC3339Nano))
	}
	return nil
}

// Mux routes expire tasks to the processor.
func (p *Processor) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeInquiryExpire, p.HandleExpireTask)
	return mux
}

// RedisOpt derives asynq connection options from a go-redis client.
func RedisOpt(rdb *redis.Client) asynq.RedisClientOpt {
	opts := rdb.Options()
	return asynq.RedisClientOpt{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}
}

func NewClient(rdb *redis.Client) *asynq.Client {
	return asynq.NewClient(RedisOpt(rdb))
}

// NewServer returns an asynq server consuming only the expiry queue.
func NewServer(rdb *redis.Client, concurrency int, logger *log.Logger) *asynq.Server {
	if logger == nil {
		logger = log.Default()
	}
	return asynq.NewServer(RedisOpt(rdb), asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{QueueName: 1},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			logger.Printf("task %s failed: payload=%s err=%v", task.Type(), string(task.Payload()), err)
		}),
	})
}
