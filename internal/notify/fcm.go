// README: Firebase Cloud Messaging pusher for customer and restaurant devices.
package notify

import (
	"context"

	"firebase.google.com/go/v4/messaging"
)

type fcmSender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

type Push struct {
	Title string
	Body  string
	Data  map[string]string
}

type FCMPusher struct {
	client fcmSender
}

// NewFCMPusher wraps a firebase messaging client.
func NewFCMPusher(client *messaging.Client) *FCMPusher {
	return &FCMPusher{client: client}
}

// Push sends p to one device token. An empty token is a silent no-op.
func (f *FCMPusher) Push(ctx context.Context, token string, p Push) error {
	if token == "" {
		return nil
	}
	_, err := f.client.Send(ctx, &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: p.Title,
			Body:  p.Body,
		},
		Data: p.Data,
	})
	return err
}
