package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"gorm.io/gorm"

	"fleet-status-backend/internal/model"
	"fleet-status-backend/internal/opstatus"
	"fleet-status-backend/internal/store"
)

// jobsPerWorker sizes the dispatch buffer so a poll cycle rarely blocks.
const jobsPerWorker = 64

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

// WorkerPool manages a pool of workers for sending notifications.
type WorkerPool struct {
	size    int
	jobs    chan store.Transition
	db      *gorm.DB
	webpush *webpush.Options
	sender  NotificationSender
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, db *gorm.DB, webpushOptions *webpush.Options) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	return &WorkerPool{
		size:    size,
		jobs:    make(chan store.Transition, size*jobsPerWorker),
		db:      db,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log.Printf("Worker %d started", id)
	for {
		select {
		case tr := <-wp.jobs:
			log.Printf("Worker %d processing machine %s (%s)", id, tr.MachineID, tr.To)
			wp.sendNotificationsForTransition(ctx, tr)
		case <-ctx.Done():
			log.Printf("Worker %d shutting down", id)
			return
		}
	}
}

// Dispatch queues a transition. When the queue is full the transition is dropped
// and false is returned, so a slow push service never stalls polling.
func (wp *WorkerPool) Dispatch(tr store.Transition) bool {
	select {
	case wp.jobs <- tr:
		return true
	default:
		log.Printf("Notification queue full, dropping transition of machine %s to %s", tr.MachineID, tr.To)
		return false
	}
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan store.Transition {
	return wp.jobs
}

// Message is the notification text for a transition.
func Message(machineLabel string, tr store.Transition) string {
	return fmt.Sprintf("%s entrou em %s", machineLabel, tr.To.Label())
}

// Payload is the JSON document the service worker turns into a notification.
type Payload struct {
	Title     string          `json:"title"`
	Body      string          `json:"body"`
	MachineID string          `json:"machineId"`
	Status    opstatus.Status `json:"status"`
	At        time.Time       `json:"at"`
}

// NewPayload builds the notification for a transition.
func NewPayload(machineLabel string, tr store.Transition) Payload {
	return Payload{
		Title:     machineLabel,
		Body:      Message(machineLabel, tr),
		MachineID: tr.MachineID,
		Status:    tr.To,
		At:        tr.At.UTC(),
	}
}

// sendNotificationsForTransition fetches subscriptions and notifies them of a transition.
func (wp *WorkerPool) sendNotificationsForTransition(ctx context.Context, tr store.Transition) {
	var subscriptions []model.PushSubscription
	err := wp.db.WithContext(ctx).
		Joins("JOIN subscription_machine_mapping smm ON smm.push_subscription_endpoint = push_subscriptions.endpoint").
		Where("smm.machine_id = ?", tr.MachineID).
		Find(&subscriptions).Error
	if err != nil {
		log.Printf("Error fetching subscriptions for machine %s: %v", tr.MachineID, err)
		return
	}

	if len(subscriptions) == 0 {
		return
	}

	log.Printf("Sending %d notifications for machine %s", len(subscriptions), tr.MachineID)

	machineLabel := tr.DisplayName
	if machineLabel == "" {
		machineLabel = tr.MachineID
		var machine model.Machine
		if err := wp.db.WithContext(ctx).
			Select("display_name").
			First(&machine, "id = ?", tr.MachineID).Error; err != nil {
			log.Printf("Error fetching machine %s: %v", tr.MachineID, err)
		} else if machine.DisplayName != "" {
			machineLabel = machine.DisplayName
		}
	}

	payload, err := json.Marshal(NewPayload(machineLabel, tr))
	if err != nil {
		log.Printf("Error encoding notification for machine %s: %v", tr.MachineID, err)
		return
	}
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, payload)
	}
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
		log.Printf("Error sending notification to %s: %v", sub.Endpoint, err)
		return
	}
	defer resp.Body.Close()

	// Handle expired subscriptions
	if resp.StatusCode == http.StatusGone {
		log.Printf("Subscription for endpoint %s is expired. Deleting.", sub.Endpoint)
		if err := wp.db.WithContext(ctx).Delete(&sub).Error; err != nil {
			log.Printf("Failed to delete expired subscription %s: %v", sub.Endpoint, err)
		}
	}
}
