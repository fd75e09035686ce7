// Package notify turns social events into deduplicated notification records
// and hands them to delivery sinks.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"engagement-service/internal/clock"
	"engagement-service/internal/metrics"
	"engagement-service/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const dispatchTimeout = 10 * time.Second

type Store interface {
	InsertNotification(ctx context.Context, n *models.Notification) (bool, error)
	ListNotifications(ctx context.Context, recipientID uuid.UUID, limit int) ([]models.Notification, error)
	MarkNotificationRead(ctx context.Context, recipientID, id uuid.UUID) error
}

// Enqueuer delivers a stored notification. Delivery is best effort.
type Enqueuer interface {
	Enqueue(ctx context.Context, n models.Notification) error
}

type Event struct {
	Kind        models.NotificationKind
	ActorID     uuid.UUID
	RecipientID uuid.UUID
	Subject     *models.Subject
	// Bucket separates events that share a subject but must each notify,
	// e.g. two comments on the same post.
	Bucket string
}

// DedupKey is kind:actor:recipient:subjectType:subjectID[:bucket].
func (e Event) DedupKey() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	b.WriteByte(':')
	b.WriteString(e.ActorID.String())
	b.WriteByte(':')
	b.WriteString(e.RecipientID.String())
	b.WriteByte(':')
	if e.Subject != nil {
		b.WriteString(string(e.Subject.Type))
		b.WriteByte(':')
		b.WriteString(e.Subject.ID.String())
	} else {
		b.WriteByte(':')
	}
	if e.Bucket != "" {
		b.WriteByte(':')
		b.WriteString(e.Bucket)
	}
	return b.String()
}

type Notifier struct {
	store       Store
	sinks       []Enqueuer
	clock       clock.Clock
	logger      *zap.Logger
	concurrency int
	wg          sync.WaitGroup
}

func New(store Store, clk clock.Clock, logger *zap.Logger, concurrency int, sinks ...Enqueuer) *Notifier {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Notifier{
		store:       store,
		sinks:       sinks,
		clock:       clk,
		logger:      logger,
		concurrency: concurrency,
	}
}

// Notify stores the notification unless the actor is the recipient or an
// identical notification already exists. It reports whether a record was created.
func (n *Notifier) Notify(ctx context.Context, ev Event) (bool, error) {
	if ev.RecipientID == uuid.Nil || ev.ActorID == uuid.Nil {
		return false, fmt.Errorf("notification %s: %w", ev.Kind, models.ErrInvalid)
	}
	if ev.ActorID == ev.RecipientID {
		metrics.NotificationsTotal.WithLabelValues(string(ev.Kind), "self").Inc()
		return false, nil
	}

	rec := models.Notification{
		RecipientID: ev.RecipientID,
		ActorID:     ev.ActorID,
		Kind:        ev.Kind,
		Subject:     ev.Subject,
		DedupKey:    ev.DedupKey(),
		CreatedAt:   n.clock.Now(),
	}
	created, err := n.store.InsertNotification(ctx, &rec)
	if err != nil {
		metrics.NotificationsTotal.WithLabelValues(string(ev.Kind), "failed").Inc()
		return false, fmt.Errorf("store notification %s: %w", rec.DedupKey, err)
	}
	if !created {
		metrics.NotificationsTotal.WithLabelValues(string(ev.Kind), "duplicate").Inc()
		return false, nil
	}
	metrics.NotificationsTotal.WithLabelValues(string(ev.Kind), "created").Inc()

	for _, sink := range n.sinks {
		if err := sink.Enqueue(ctx, rec); err != nil {
			n.logger.Warn("notification delivery failed",
				zap.String("notification_id", rec.ID.String()),
				zap.String("recipient_id", rec.RecipientID.String()),
				zap.Error(err))
		}
	}
	return true, nil
}

// FanOut notifies every event's recipient concurrently. One failing
// recipient does not stop the others; all failures are logged and joined.
func (n *Notifier) FanOut(ctx context.Context, events ...Event) (int, error) {
	var (
		g       errgroup.Group
		mu      sync.Mutex
		created int
		errs    []error
	)
	g.SetLimit(n.concurrency)
	for _, ev := range events {
		g.Go(func() error {
			ok, err := n.Notify(ctx, ev)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				n.logger.Warn("notification failed",
					zap.String("kind", string(ev.Kind)),
					zap.String("actor_id", ev.ActorID.String()),
					zap.String("recipient_id", ev.RecipientID.String()),
					zap.Error(err))
				errs = append(errs, err)
				return nil
			}
			if ok {
				created++
			}
			return nil
		})
	}
	_ = g.Wait()
	return created, errors.Join(errs...)
}

// Dispatch fans out in the background. The triggering request never sees
// the outcome and its cancellation does not abort delivery.
func (n *Notifier) Dispatch(ctx context.Context, events ...Event) {
	if len(events) == 0 {
		return
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), dispatchTimeout)
		defer cancel()
		_, _ = n.FanOut(ctx, events...)
	}()
}

// Wait blocks until every dispatched fan-out has finished.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

func (n *Notifier) List(ctx context.Context, recipientID uuid.UUID, limit int) ([]models.Notification, error) {
	return n.store.ListNotifications(ctx, recipientID, limit)
}

func (n *Notifier) MarkRead(ctx context.Context, recipientID, id uuid.UUID) error {
	return n.store.MarkNotificationRead(ctx, recipientID, id)
}

// Mentions builds one mention event per distinct mentioned actor.
func Mentions(actorID uuid.UUID, subject models.Subject, mentioned []uuid.UUID) []Event {
	seen := make(map[uuid.UUID]bool, len(mentioned))
	events := make([]Event, 0, len(mentioned))
	for _, id := range mentioned {
		if seen[id] {
			continue
		}
		seen[id] = true
		events = append(events, Event{
			Kind:        models.KindMention,
			ActorID:     actorID,
			RecipientID: id,
			Subject:     &models.Subject{Type: subject.Type, ID: subject.ID},
		})
	}
	return events
}
