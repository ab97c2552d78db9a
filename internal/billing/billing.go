// Package billing records late-cancellation penalties. The ledger entry is
// part of the primary transaction; pushing the charge to Stripe happens
// after commit and is best-effort (the ledger is the source of truth, the
// card on file is a convenience).
package billing

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/invoiceitem"

	"github.com/vetsuite/vetsuite/internal/model"
	"github.com/vetsuite/vetsuite/internal/outbox"
	"github.com/vetsuite/vetsuite/internal/storage"
)

type Service struct {
	repo       *storage.Repository
	outboxRepo *outbox.Repository
	logger     *slog.Logger
	currency   string
}

func New(repo *storage.Repository, outboxRepo *outbox.Repository, logger *slog.Logger, stripeKey, currency string) *Service {
	if key := strings.TrimSpace(stripeKey); key != "" {
		stripe.Key = key
	} else {
		logger.Warn("stripe disabled: STRIPE_SECRET_KEY missing; penalties stay ledger-only")
	}
	if currency == "" {
		currency = "usd"
	}
	return &Service{repo: repo, outboxRepo: outboxRepo, logger: logger, currency: currency}
}

// RecordPenalty inserts the ledger entry and its outbox event inside the
// caller's transaction and returns the penalty id.
func (s *Service) RecordPenalty(ctx context.Context, tx pgx.Tx, appt model.Appointment, clientID string, amountCents int64, reason string) (string, error) {
	id, err := s.repo.CreatePenalty(ctx, tx, model.Penalty{
		AppointmentID: appt.ID,
		ClientID:      clientID,
		AmountCents:   amountCents,
		Reason:        reason,
	})
	if err != nil {
		return "", err
	}

	payload, err := json.Marshal(map[string]any{
		"penalty_id":     id,
		"appointment_id": appt.ID,
		"client_id":      clientID,
		"amount_cents":   amountCents,
		"reason":         reason,
		"scheduled_at":   appt.ScheduledAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return "", err
	}
	if err := s.outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "penalty",
		AggregateID:   id,
		EventType:     outbox.EventPenaltyCreated,
		Payload:       payload,
	}); err != nil {
		return "", err
	}
	return id, nil
}

// PushToStripe creates an invoice item on the owner's Stripe customer.
// Call after the penalty transaction committed; failures are logged only.
func (s *Service) PushToStripe(ctx context.Context, penaltyID, clientID string, amountCents int64, description string) {
	if stripe.Key == "" {
		return
	}

	client, err := s.repo.GetClient(ctx, clientID)
	if err != nil {
		s.logger.Warn("stripe penalty skipped: client lookup failed", "client_id", clientID, "err", err)
		return
	}
	if client.StripeCustomerID == "" {
		return
	}

	params := &stripe.InvoiceItemParams{
		Customer:    stripe.String(client.StripeCustomerID),
		Amount:      stripe.Int64(amountCents),
		Currency:    stripe.String(s.currency),
		Description: stripe.String(description),
	}
	params.AddMetadata("penalty_id", penaltyID)
	if _, err := invoiceitem.New(params); err != nil {
		s.logger.Error("stripe invoice item failed", "penalty_id", penaltyID, "err", err)
		return
	}
	s.logger.Info("stripe invoice item created", "penalty_id", penaltyID, "customer", client.StripeCustomerID)
}
