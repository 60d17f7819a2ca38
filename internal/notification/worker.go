package notification

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"

	"fms-backend/internal/model"
	"fms-backend/internal/store"
)

// queueFactor sizes the job buffer relative to the worker count.
const queueFactor = 32

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// WorkerPool sends a push alert to every subscriber for each new breakdown.
type WorkerPool struct {
	size    int
	jobs    chan int64
	store   store.Store
	webpush *webpush.Options
	sender  NotificationSender
	log     *zap.Logger
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, s store.Store, webpushOptions *webpush.Options, log *zap.Logger) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &WorkerPool{
		size:    size,
		jobs:    make(chan int64, size*queueFactor),
		store:   s,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
		log:     log,
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

// worker is the actual worker goroutine.
func (wp *WorkerPool) worker(ctx context.Context, id int) {
	wp.log.Debug("notification worker started", zap.Int("worker", id))
	for {
		select {
		case breakdownID := <-wp.jobs:
			wp.log.Debug("processing breakdown", zap.Int("worker", id), zap.Int64("breakdown_id", breakdownID))
			wp.sendNotificationsForBreakdown(ctx, breakdownID)
		case <-ctx.Done():
			wp.log.Debug("notification worker shutting down", zap.Int("worker", id))
			return
		}
	}
}

// Dispatch queues a breakdown without blocking. It reports false when the
// queue is full and the alert was dropped.
func (wp *WorkerPool) Dispatch(breakdownID int64) bool {
	select {
	case wp.jobs <- breakdownID:
		return true
	default:
		wp.log.Warn("notification queue full, dropping alert", zap.Int64("breakdown_id", breakdownID))
		return false
	}
}

// Listen is a store.Listener that dispatches every inserted breakdown.
func (wp *WorkerPool) Listen(ch store.Change) {
	if ch.Collection != model.CollectionBreakdownLogs || ch.Op != store.OpInsert {
		return
	}
	for _, id := range ch.IDs {
		wp.Dispatch(id)
	}
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan int64 {
	return wp.jobs
}

// sendNotificationsForBreakdown fetches subscriptions and sends the alert for a breakdown.
func (wp *WorkerPool) sendNotificationsForBreakdown(ctx context.Context, breakdownID int64) {
	var subscriptions []model.PushSubscription
	if err := wp.store.DB().WithContext(ctx).Find(&subscriptions).Error; err != nil {
		wp.log.Error("fetching subscriptions failed", zap.Error(err))
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	b, err := store.GetAs[model.BreakdownLog](ctx, wp.store, breakdownID)
	if err != nil {
		wp.log.Warn("breakdown vanished before alert", zap.Int64("breakdown_id", breakdownID), zap.Error(err))
		return
	}

	message := wp.describe(ctx, b)
	wp.log.Info("sending breakdown alerts", zap.Int64("breakdown_id", breakdownID), zap.Int("subscriptions", len(subscriptions)))
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, []byte(message))
	}
}

// describe renders the alert text. Units or components that no longer
// exist are shown as UNKNOWN.
func (wp *WorkerPool) describe(ctx context.Context, b model.BreakdownLog) string {
	unitLabel := "UNKNOWN"
	unit, err := store.GetAs[model.Unit](ctx, wp.store, b.UnitID)
	switch {
	case err == nil && unit.Code != "":
		unitLabel = unit.Code
	case err != nil && !errors.Is(err, store.ErrNotFound):
		wp.log.Warn("unit lookup failed", zap.Int64("unit_id", b.UnitID), zap.Error(err))
	}

	component := "UNKNOWN"
	if b.ComponentID != nil {
		if c, err := store.GetAs[model.Component](ctx, wp.store, *b.ComponentID); err == nil {
			component = strings.Join([]string{c.System, c.Section, c.SubComponent}, " / ")
		}
	}

	return fmt.Sprintf("%s down (%s): %s - %s", unitLabel, b.Category, component, b.Description)
}

// sendNotification sends a single web push notification.
func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		wp.log.Warn("sending notification failed", zap.String("endpoint", sub.Endpoint), zap.Error(err))
		return
	}
	defer resp.Body.Close()

	// Handle expired subscriptions
	if resp.StatusCode == http.StatusGone {
		wp.log.Info("subscription expired, deleting", zap.String("endpoint", sub.Endpoint))
		if err := wp.store.DB().WithContext(ctx).Delete(&sub).Error; err != nil {
			wp.log.Error("deleting expired subscription failed", zap.String("endpoint", sub.Endpoint), zap.Error(err))
		}
	}
}
