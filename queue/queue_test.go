package queue

import (
	"testing"
	"time"

	"bimbridge/providers/tonchain"

	"github.com/shopspring/decimal"
)

func TestPayoutEnvelopeRoundTrip(t *testing.T) {
	env, err := NewPayoutEnvelope(KindTonPayout, 42)
	if err != nil {
		t.Fatalf("NewPayoutEnvelope: %v", err)
	}

	job, err := DecodePayout(env)
	if err != nil {
		t.Fatalf("DecodePayout: %v", err)
	}
	if job.WithdrawalID != 42 {
		t.Errorf("withdrawal_id = %d, want 42", job.WithdrawalID)
	}
}

func TestPayoutEnvelopeRejectsWrongKind(t *testing.T) {
	if _, err := NewPayoutEnvelope(KindDepositCredit, 1); err == nil {
		t.Error("accepted deposit kind for a payout envelope")
	}

	env, _ := NewPayoutEnvelope(KindTonPayout, 1)
	env.Kind = KindDepositCredit
	if _, err := DecodePayout(env); err == nil {
		t.Error("decoded a payout from a mis-tagged envelope")
	}
}

func TestDecodePayoutRejectsMalformedPayload(t *testing.T) {
	env := Envelope{Kind: KindTonPayout, Payload: []byte(`{"withdrawal_id":0}`)}
	if _, err := DecodePayout(env); err == nil {
		t.Error("accepted payload without withdrawal_id")
	}

	env.Payload = []byte(`not json`)
	if _, err := DecodePayout(env); err == nil {
		t.Error("accepted non-JSON payload")
	}
}

func TestDepositCreditEnvelopeRoundTrip(t *testing.T) {
	ev := tonchain.TransferEvent{
		TxHash: "abc",
		Amount: decimal.RequireFromString("1.5"),
		Asset:  "ton",
		Memo:   "BIM:DEPOSIT:abc12345",
	}
	env, err := NewDepositCreditEnvelope(ev)
	if err != nil {
		t.Fatalf("NewDepositCreditEnvelope: %v", err)
	}

	job, err := DecodeDepositCredit(env)
	if err != nil {
		t.Fatalf("DecodeDepositCredit: %v", err)
	}
	if job.Event.TxHash != "abc" || !job.Event.Amount.Equal(ev.Amount) {
		t.Errorf("round trip mangled event: %+v", job.Event)
	}

	if _, err := DecodeDepositCredit(Envelope{Kind: KindDepositCredit, Payload: []byte(`{"event":{}}`)}); err == nil {
		t.Error("accepted deposit event without tx_hash")
	}
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	base := 5 * time.Second
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 5 * time.Second},
		{2, 10 * time.Second},
		{3, 20 * time.Second},
		{4, 40 * time.Second},
		{100, 5 * time.Minute},
		{0, 5 * time.Second}, // clamped to the first attempt
	}
	for _, tt := range tests {
		if got := Backoff(base, tt.attempt); got != tt.want {
			t.Errorf("Backoff(%d) = %s, want %s", tt.attempt, got, tt.want)
		}
	}
}
