package feedback

import (
	"context"
	"time"

	"github.com/MarcoPoloResearchLab/satisfaction/internal/calendar"
	"github.com/MarcoPoloResearchLab/satisfaction/internal/events"
	"github.com/MarcoPoloResearchLab/satisfaction/internal/localstore"
	"github.com/MarcoPoloResearchLab/satisfaction/internal/remote"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

var noOpLogger = zap.NewNop()

// Outcome is the classified result of one submission.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeQueued    Outcome = "queued"
	OutcomeDenied    Outcome = "denied"
)

// ConnectivityState reports whether the kiosk currently believes it is online.
type ConnectivityState interface {
	Online() bool
}

// Publisher receives pending-count and notice updates.
type Publisher interface {
	Publish(topic events.Topic, payload any)
}

type ServiceConfig struct {
	Remote       remote.Inserter
	Table        string
	Store        localstore.Store
	Connectivity ConnectivityState
	Notices      *NoticeBoard
	Publisher    Publisher
	Clock        func() time.Time
	Location     *time.Location
	Logger       *zap.Logger
}

// Service submits taps to the remote store, parks the ones that fail transiently in the
// local queue, and replays the queue on demand.
type Service struct {
	remote       remote.Inserter
	table        string
	queue        *Queue
	ids          *IDMinter
	connectivity ConnectivityState
	notices      *NoticeBoard
	publisher    Publisher
	clock        func() time.Time
	location     *time.Location
	logger       *zap.Logger

	submitting *semaphore.Weighted
	flushing   *semaphore.Weighted
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Remote == nil {
		return nil, newServiceError(opServiceNew, "missing_remote", errMissingRemote)
	}
	if cfg.Store == nil {
		return nil, newServiceError(opServiceNew, "missing_store", errMissingStore)
	}
	if cfg.Table == "" {
		return nil, newServiceError(opServiceNew, "missing_table", errMissingTable)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	location := cfg.Location
	if location == nil {
		location = time.Local
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	notices := cfg.Notices
	if notices == nil {
		notices = NewNoticeBoard(clock)
	}

	return &Service{
		remote:       cfg.Remote,
		table:        cfg.Table,
		queue:        NewQueue(cfg.Store, logger),
		ids:          NewIDMinter(cfg.Store, logger),
		connectivity: cfg.Connectivity,
		notices:      notices,
		publisher:    cfg.Publisher,
		clock:        clock,
		location:     location,
		logger:       logger,
		submitting:   semaphore.NewWeighted(1),
		flushing:     semaphore.NewWeighted(1),
	}, nil
}

type Result struct {
	Outcome Outcome `json:"outcome"`
	Notice  Notice  `json:"notice"`
	Event   Event   `json:"event"`
}

// FlushReport summarises one pass over the pending queue.
type FlushReport struct {
	Attempted int  `json:"attempted"`
	Sent      int  `json:"sent"`
	Remaining int  `json:"remaining"`
	Denied    bool `json:"denied"`
	Skipped   bool `json:"skipped"`
}

// Submit records a tap made at clickTime. Remote failures are classified into the
// Result: access-policy rejections are denied and discarded, everything else is queued.
// Errors are returned only for bad input, an overlapping submission, or a queue that
// cannot be written.
func (s *Service) Submit(ctx context.Context, grade Grade, clickTime time.Time) (Result, error) {
	if !grade.Valid() {
		return Result{}, newServiceError(opSubmit, "invalid_grade", ErrInvalidGrade)
	}
	if !s.submitting.TryAcquire(1) {
		return Result{}, newServiceError(opSubmit, "in_flight", ErrSubmissionInFlight)
	}
	defer s.submitting.Release(1)

	// Local state outlives the caller: a dropped request must not lose the tap.
	durable := context.WithoutCancel(ctx)
	online := s.online()
	event := NewEvent(s.ids.Mint(durable, clickTime), grade, clickTime, s.location)

	err := s.persist(ctx, event)
	if err == nil {
		notice := NoticeThanks
		if !online {
			notice = NoticeRecordedWillSync
		}
		return s.announce(Result{Outcome: OutcomeSucceeded, Notice: notice, Event: event}), nil
	}

	if IsPermissionDenied(err) {
		s.logger.Error("feedback rejected by access policy",
			zap.String("operation", opSubmit),
			zap.Int64("id", event.ID),
			zap.String("grade", grade.String()),
			zap.Error(err))
		return s.announce(Result{Outcome: OutcomeDenied, Notice: NoticeDenied, Event: event}), nil
	}

	entry := QueuedEvent{Grade: grade, QueuedAt: calendar.FormatISO(clickTime), ID: event.ID}
	if isDuplicateKey(err) {
		entry.ID = 0
	}
	pending, queueErr := s.queue.Append(durable, entry)
	if queueErr != nil {
		s.logError(opSubmit, "enqueue_failed", queueErr, zap.Int64("id", event.ID))
		return Result{}, newServiceError(opSubmit, "enqueue_failed", queueErr)
	}
	s.logger.Info("feedback queued for later delivery",
		zap.Int64("id", event.ID),
		zap.Bool("believed_online", online),
		zap.Int("pending", pending),
		zap.Error(err))
	s.publishPending(pending)
	return s.announce(Result{Outcome: OutcomeQueued, Notice: NoticeQueuedOffline, Event: event}), nil
}

// Flush replays the pending queue in tap order. Sent entries are removed, transient
// failures stay for the next pass, and the first access-policy rejection stops the pass
// leaving that entry and everything after it queued. An overlapping call is skipped.
func (s *Service) Flush(ctx context.Context) (FlushReport, error) {
	if !s.flushing.TryAcquire(1) {
		return FlushReport{Skipped: true}, nil
	}
	defer s.flushing.Release(1)

	snapshot := s.queue.Load(ctx)
	if len(snapshot) == 0 {
		return FlushReport{}, nil
	}

	report := FlushReport{}
	sent := make([]bool, len(snapshot))
	for index, entry := range snapshot {
		if ctx.Err() != nil {
			break
		}
		report.Attempted++
		err := s.replay(ctx, entry)
		if err == nil {
			sent[index] = true
			report.Sent++
			continue
		}
		if IsPermissionDenied(err) {
			report.Denied = true
			s.logger.Error("pending feedback rejected by access policy",
				zap.String("operation", opFlush),
				zap.Int("position", index),
				zap.Int("pending", len(snapshot)-report.Sent),
				zap.Error(err))
			s.post(NoticePendingDenied)
			break
		}
		s.logger.Debug("pending feedback still undeliverable",
			zap.Int("position", index),
			zap.String("queued_at", entry.QueuedAt),
			zap.Error(err))
	}

	if report.Sent == 0 {
		report.Remaining = s.queue.Len(ctx)
		s.publishPending(report.Remaining)
		return report, nil
	}

	remaining, err := s.queue.Commit(context.WithoutCancel(ctx), snapshot, sent)
	if err != nil {
		s.logError(opFlush, "commit_failed", err, zap.Int("sent", report.Sent))
		return report, newServiceError(opFlush, "commit_failed", err)
	}
	report.Remaining = remaining
	s.logger.Info("pending feedback flushed",
		zap.Int("sent", report.Sent),
		zap.Int("remaining", remaining),
		zap.Bool("denied", report.Denied))
	s.publishPending(remaining)
	return report, nil
}

// PendingCount returns the number of queued taps.
func (s *Service) PendingCount(ctx context.Context) int {
	return s.queue.Len(ctx)
}

// Notice returns the message currently shown to visitors, if any.
func (s *Service) Notice() (Notice, bool) {
	return s.notices.Current()
}

// replay sends a queued entry using its original tap time as the creation time.
func (s *Service) replay(ctx context.Context, entry QueuedEvent) error {
	createdAt, err := calendar.ParseISO(entry.QueuedAt)
	if err != nil {
		s.logger.Warn("pending entry has no usable tap time, using now",
			zap.String("queued_at", entry.QueuedAt))
		createdAt = s.clock()
	}
	id := entry.ID
	if id == 0 {
		id = s.ids.Mint(context.WithoutCancel(ctx), createdAt)
	}
	event := NewEvent(id, entry.Grade, createdAt, s.location)

	err = s.persist(ctx, event)
	if err != nil && entry.ID != 0 && isDuplicateKey(err) {
		s.logger.Info("pending feedback already stored", zap.Int64("id", id))
		return nil
	}
	return err
}

func (s *Service) persist(ctx context.Context, event Event) error {
	_, err := s.remote.Insert(ctx, s.table, event.Row())
	return err
}

func (s *Service) online() bool {
	if s.connectivity == nil {
		return true
	}
	return s.connectivity.Online()
}

func (s *Service) announce(result Result) Result {
	s.post(result.Notice)
	return result
}

func (s *Service) post(notice Notice) {
	s.notices.Post(notice)
	if s.publisher != nil {
		s.publisher.Publish(events.TopicNotice, notice)
	}
}

func (s *Service) publishPending(count int) {
	if s.publisher != nil {
		s.publisher.Publish(events.TopicPendingCount, count)
	}
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("feedback service error", attrs...)
}
