package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/facility-booking/internal/application"
)

const feedChannelPrefix = "booking:notifications:"

// FeedChannel is the pub/sub channel carrying notifications for recipient.
func FeedChannel(recipient string) string {
	return feedChannelPrefix + recipient
}

// FeedMessage is the JSON published for each stored notification.
type FeedMessage struct {
	ID            string    `json:"id"`
	Kind          string    `json:"kind"`
	Message       string    `json:"message"`
	ReservationID *string   `json:"reservation_id,omitempty"`
	ReportID      *string   `json:"report_id,omitempty"`
	Floor         string    `json:"floor,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Feed is an application.Notifier publishing to per-recipient channels. Clients that do not
// subscribe keep polling the unread count.
type Feed struct {
	client Client
}

// NewFeed returns a Feed publishing through client.
func NewFeed(client Client) *Feed {
	return &Feed{client: client}
}

// Notify publishes notification to its recipient's channel.
func (f *Feed) Notify(ctx context.Context, notification application.Notification) error {
	payload, err := json.Marshal(FeedMessage{
		ID:            notification.ID,
		Kind:          string(notification.Kind),
		Message:       notification.Message,
		ReservationID: notification.ReservationID,
		ReportID:      notification.ReportID,
		Floor:         notification.Floor,
		CreatedAt:     notification.CreatedAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("redisstore: encode notification %s: %w", notification.ID, err)
	}
	if err := f.client.Publish(ctx, FeedChannel(notification.RecipientID), payload).Err(); err != nil {
		return fmt.Errorf("redisstore: publish notification %s: %w", notification.ID, err)
	}
	return nil
}

var _ application.Notifier = (*Feed)(nil)
