package service

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quothlabs/quoth/internal/domain/activity"
	"github.com/quothlabs/quoth/internal/port/database"
)

const activityBufferSize = 1024

// ActivityService is the fire-and-forget event recorder. Log never
// blocks the caller; events are dropped when the buffer is full and the
// drop is counted.
type ActivityService struct {
	store   database.Store
	logger  *slog.Logger
	events  chan *activity.Event
	dropped atomic.Int64
	done    chan struct{}
	once    sync.Once
}

// NewActivityService creates the recorder and starts its writer.
func NewActivityService(store database.Store, logger *slog.Logger) *ActivityService {
	s := &ActivityService{
		store:  store,
		logger: logger,
		events: make(chan *activity.Event, activityBufferSize),
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

// Log enqueues an event. Never blocks; a full buffer drops the event.
func (s *ActivityService) Log(e *activity.Event) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	select {
	case s.events <- e:
	default:
		s.dropped.Add(1)
	}
}

// Dropped returns the number of events lost to backpressure.
func (s *ActivityService) Dropped() int64 {
	return s.dropped.Load()
}

func (s *ActivityService) run() {
	defer close(s.done)
	for e := range s.events {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.store.InsertActivityEvent(ctx, e); err != nil {
			s.logger.Warn("activity write failed", "event_type", e.Type, "error", err)
		}
		cancel()
	}
}

// Close drains the buffer and stops the writer.
func (s *ActivityService) Close() {
	s.once.Do(func() {
		close(s.events)
		<-s.done
		if n := s.dropped.Load(); n > 0 {
			s.logger.Warn("activity events dropped", "count", n)
		}
	})
}
