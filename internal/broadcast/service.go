package broadcast

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"steward.run/internal/obs"
)

// Service implements subscription intake and newsletter fan-out.
type Service struct {
	store  Store
	mailer Mailer
}

// NewService wires the subscriber store and the outbound mailer.
func NewService(store Store, mailer Mailer) *Service {
	return &Service{store: store, mailer: mailer}
}

// Subscribe validates and upserts a subscriber. Re-subscribing an existing
// address refreshes the name and flips the status back to subscribed.
func (s *Service) Subscribe(ctx context.Context, email, name string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil {
		return "", ErrInvalidEmail
	}
	sub := &Subscriber{
		Email:  strings.ToLower(addr.Address),
		Name:   strings.TrimSpace(name),
		Status: StatusSubscribed,
	}
	if err := s.store.UpsertSubscriber(ctx, sub); err != nil {
		return "", err
	}
	return "Subscribed successfully!", nil
}

// Broadcast sends the message to every subscribed address sequentially. A
// failed delivery is logged but does not abort the run; the returned
// confirmation counts attempts, not confirmed deliveries.
func (s *Service) Broadcast(ctx context.Context, subject, body string) (string, error) {
	subs, err := s.store.ListSubscribed(ctx)
	if err != nil {
		return "", err
	}
	if len(subs) == 0 {
		return "No subscribers found.", nil
	}

	sent := 0
	for _, sub := range subs {
		if err := s.mailer.Send(ctx, sub.Email, subject, body); err != nil {
			obs.LogEvent(map[string]any{
				"type":  "broadcast",
				"event": "broadcast.send_failed",
				"to":    sub.Email,
				"error": err.Error(),
			})
		}
		sent++
	}
	return fmt.Sprintf("Sent newsletter to %d subscribers.", sent), nil
}
