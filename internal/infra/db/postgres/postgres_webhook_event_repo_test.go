//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	"agroconecta-billing/internal/domain/model"
	"agroconecta-billing/internal/domain/ports/repository"
)

func TestWebhookEventRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	cleanup(t)

	ctx := context.Background()
	repo := NewWebhookEventRepo(testPool)

	ev := &model.WebhookEvent{
		ID:              ulid.Make().String(),
		Event:           "PAYMENT_CONFIRMED",
		GatewayObjectID: "pay_1",
		Payload:         []byte(`{"event":"PAYMENT_CONFIRMED"}`),
		Outcome:         model.WebhookOutcomeUnmatched,
		ReceivedAt:      time.Now().UTC(),
	}
	if err := repo.Save(ctx, repository.NoTX, ev); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	var outcome string
	var payload []byte
	err := testPool.QueryRow(ctx, `SELECT outcome, payload FROM webhook_events WHERE id=$1`, ev.ID).Scan(&outcome, &payload)
	if err != nil {
		t.Fatalf("could not read back event: %v", err)
	}
	if outcome != "unmatched" || string(payload) != string(ev.Payload) {
		t.Errorf("unexpected row: %s %s", outcome, payload)
	}
}
