package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"bimbridge/providers/tonchain"
)

// Queue names, one per job class. Payouts mutate external state and run at
// low concurrency; deposit credits are internal and idempotent.
const (
	QueueTonPayout     = "payout:ton"
	QueueJettonPayout  = "payout:jetton"
	QueueDepositCredit = "deposit:credit"
)

const (
	KindTonPayout     = "ton_payout"
	KindJettonPayout  = "jetton_payout"
	KindDepositCredit = "deposit_credit"
)

// Envelope wraps a job payload with its kind tag and attempt counter. The
// attempt counter is transient queue state, kept apart from the durable
// Withdrawal status.
type Envelope struct {
	Kind       string          `json:"kind"`
	Attempts   int             `json:"attempts"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	Payload    json.RawMessage `json:"payload"`
}

type PayoutJob struct {
	WithdrawalID uint `json:"withdrawal_id"`
}

type DepositCreditJob struct {
	Event tonchain.TransferEvent `json:"event"`
}

func NewPayoutEnvelope(kind string, withdrawalID uint) (Envelope, error) {
	if kind != KindTonPayout && kind != KindJettonPayout {
		return Envelope{}, fmt.Errorf("not a payout kind: %q", kind)
	}
	payload, err := json.Marshal(PayoutJob{WithdrawalID: withdrawalID})
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Kind: kind, EnqueuedAt: time.Now().UTC(), Payload: payload}, nil
}

func NewDepositCreditEnvelope(ev tonchain.TransferEvent) (Envelope, error) {
	payload, err := json.Marshal(DepositCreditJob{Event: ev})
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Kind: KindDepositCredit, EnqueuedAt: time.Now().UTC(), Payload: payload}, nil
}

// DecodePayout rejects malformed or mis-tagged payloads at the boundary.
func DecodePayout(env Envelope) (PayoutJob, error) {
	if env.Kind != KindTonPayout && env.Kind != KindJettonPayout {
		return PayoutJob{}, fmt.Errorf("unexpected job kind %q", env.Kind)
	}
	var job PayoutJob
	if err := json.Unmarshal(env.Payload, &job); err != nil {
		return PayoutJob{}, fmt.Errorf("malformed payout payload: %w", err)
	}
	if job.WithdrawalID == 0 {
		return PayoutJob{}, fmt.Errorf("payout payload missing withdrawal_id")
	}
	return job, nil
}

func DecodeDepositCredit(env Envelope) (DepositCreditJob, error) {
	if env.Kind != KindDepositCredit {
		return DepositCreditJob{}, fmt.Errorf("unexpected job kind %q", env.Kind)
	}
	var job DepositCreditJob
	if err := json.Unmarshal(env.Payload, &job); err != nil {
		return DepositCreditJob{}, fmt.Errorf("malformed deposit payload: %w", err)
	}
	if job.Event.TxHash == "" {
		return DepositCreditJob{}, fmt.Errorf("deposit payload missing tx_hash")
	}
	return job, nil
}
