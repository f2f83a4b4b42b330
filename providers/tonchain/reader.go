package tonchain

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/tlb"
	"github.com/xssnick/tonutils-go/tvm/cell"
)

const opJettonTransferNotification = 0x7362d09c

// TransferEvent is one observed inbound transfer to the treasury. The reader
// makes no dedup promises: re-scanned windows repeat events, and the unique
// tx_hash constraint downstream drops the repeats.
type TransferEvent struct {
	TxHash      string          `json:"tx_hash"`
	FromAddress string          `json:"from_address"`
	ToAddress   string          `json:"to_address"`
	Amount      decimal.Decimal `json:"amount"`
	Asset       string          `json:"asset"`
	Memo        string          `json:"memo"`
	BlockLT     uint64          `json:"block_lt"`
	ObservedAt  time.Time       `json:"observed_at"`
	Raw         json.RawMessage `json:"raw,omitempty"`
}

// Reader polls the treasury's transaction history. It owns no cursor state;
// the scheduler decides how often to call it and overlapping windows are safe.
type Reader struct {
	client *Client
	batch  int

	// treasury's own jetton wallet; notifications from it are jetton deposits
	jettonWallet   *address.Address
	jettonDecimals int
}

func NewReader(client *Client, batch int, jettonWallet *address.Address, jettonDecimals int) *Reader {
	return &Reader{client: client, batch: batch, jettonWallet: jettonWallet, jettonDecimals: jettonDecimals}
}

// FetchRecent returns inbound transfers from the most recent window of the
// treasury's history, newest first.
func (r *Reader) FetchRecent(ctx context.Context) ([]TransferEvent, error) {
	master, err := r.client.API.CurrentMasterchainInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("masterchain info: %w", err)
	}

	acc, err := r.client.API.GetAccount(ctx, master, r.client.Treasury)
	if err != nil {
		return nil, fmt.Errorf("get treasury account: %w", err)
	}
	if !acc.IsActive || acc.LastTxLT == 0 {
		return nil, nil
	}

	txs, err := r.client.API.ListTransactions(ctx, r.client.Treasury, uint32(r.batch), acc.LastTxLT, acc.LastTxHash)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	events := make([]TransferEvent, 0, len(txs))
	for _, tx := range txs {
		if tx.IO.In == nil || tx.IO.In.MsgType != tlb.MsgTypeInternal {
			continue
		}
		in := tx.IO.In.AsInternal()

		ev := TransferEvent{
			TxHash:      hex.EncodeToString(tx.Hash),
			ToAddress:   r.client.Treasury.String(),
			BlockLT:     tx.LT,
			ObservedAt:  time.Unix(int64(tx.Now), 0).UTC(),
		}

		if r.jettonWallet != nil && in.SrcAddr.Equals(r.jettonWallet) {
			units, sender, memo, perr := parseJettonNotification(in.Body)
			if perr != nil {
				continue
			}
			ev.Asset = "jetton"
			ev.Amount = decimal.NewFromBigInt(units, -int32(r.jettonDecimals))
			ev.FromAddress = sender
			ev.Memo = memo
		} else {
			if in.Amount.Nano().Sign() <= 0 {
				continue
			}
			ev.Asset = "ton"
			ev.Amount = decimal.NewFromBigInt(in.Amount.Nano(), -9)
			ev.FromAddress = in.SrcAddr.String()
			ev.Memo = in.Comment()
		}

		ev.Raw, _ = json.Marshal(map[string]any{
			"lt":      tx.LT,
			"now":     tx.Now,
			"comment": ev.Memo,
		})
		events = append(events, ev)
	}
	return events, nil
}

// parseJettonNotification decodes a transfer_notification body:
// op(32) query_id(64) amount(coins) sender(addr) forward_payload(either).
// The amount comes back in raw token units; the caller applies the jetton's
// decimal scale.
func parseJettonNotification(body *cell.Cell) (*big.Int, string, string, error) {
	if body == nil {
		return nil, "", "", fmt.Errorf("empty body")
	}
	s := body.BeginParse()

	op, err := s.LoadUInt(32)
	if err != nil || op != opJettonTransferNotification {
		return nil, "", "", fmt.Errorf("not a transfer notification")
	}
	if _, err := s.LoadUInt(64); err != nil {
		return nil, "", "", err
	}
	amount, err := s.LoadBigCoins()
	if err != nil {
		return nil, "", "", err
	}
	sender, err := s.LoadAddr()
	if err != nil {
		return nil, "", "", err
	}

	memo := ""
	if fwd, err := loadEitherPayload(s); err == nil && fwd != nil {
		fs := fwd.BeginParse()
		if op, err := fs.LoadUInt(32); err == nil && op == 0 {
			if text, err := fs.LoadStringSnake(); err == nil {
				memo = text
			}
		}
	}

	return amount, sender.String(), memo, nil
}

func loadEitherPayload(s *cell.Slice) (*cell.Cell, error) {
	inRef, err := s.LoadBoolBit()
	if err != nil {
		return nil, err
	}
	if inRef {
		return s.LoadRefCell()
	}
	return s.ToCell()
}
