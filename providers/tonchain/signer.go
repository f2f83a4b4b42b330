package tonchain

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/tlb"
	"github.com/xssnick/tonutils-go/ton/jetton"
	"github.com/xssnick/tonutils-go/ton/wallet"
)

var (
	// ErrTreasuryUnderfunded means funds never left the treasury; the payout
	// may be retried once the treasury is topped up.
	ErrTreasuryUnderfunded = errors.New("treasury underfunded")

	// ErrUnconfirmed means the transfer was submitted but confirmation timed
	// out. Funds may have left the treasury; never re-issue automatically.
	ErrUnconfirmed = errors.New("transfer submitted but unconfirmed")
)

// gas reserves for outbound messages, in TON
var (
	nativeFeeReserve = decimal.RequireFromString("0.05")
	jettonGasReserve = decimal.RequireFromString("0.1")
	jettonForwardTON = tlb.MustFromTON("0.01")
	jettonCarryTON   = tlb.MustFromTON("0.05")
)

// Signer holds the treasury signing key and submits outbound transfers.
// The development backend derives the key from a mnemonic; a production
// deployment swaps this type for one proxying an external custodian — the
// payout engine only sees the send/balance contract.
//
// Sends are serialized: the treasury wallet's seqno is a single shared
// counter and concurrent submissions would collide on it.
type Signer struct {
	client *Client
	wallet *wallet.Wallet
	master *address.Address

	jettonDecimals int
	confirmWait    time.Duration

	mu sync.Mutex
}

func NewSignerFromMnemonic(client *Client, mnemonic, jettonMaster string, jettonDecimals int, confirmWait time.Duration) (*Signer, error) {
	words := strings.Fields(mnemonic)
	if len(words) != 24 {
		return nil, fmt.Errorf("treasury mnemonic must be 24 words, got %d", len(words))
	}

	w, err := wallet.FromSeed(client.API, words, wallet.V4R2)
	if err != nil {
		return nil, fmt.Errorf("derive treasury wallet: %w", err)
	}

	s := &Signer{client: client, wallet: w, jettonDecimals: jettonDecimals, confirmWait: confirmWait}
	if jettonMaster != "" {
		master, err := address.ParseAddr(jettonMaster)
		if err != nil {
			return nil, fmt.Errorf("parse jetton master: %w", err)
		}
		s.master = master
	}
	return s, nil
}

// Send submits a transfer and waits for it to land on chain, bounded by the
// configured confirmation window. It returns the transaction hash.
func (s *Signer) Send(ctx context.Context, asset, destination string, amount decimal.Decimal, memo string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dest, err := address.ParseAddr(destination)
	if err != nil {
		return "", fmt.Errorf("parse destination: %w", err)
	}

	var msg *wallet.Message
	switch asset {
	case "jetton":
		msg, err = s.buildJettonMessage(ctx, dest, amount, memo)
	default:
		msg, err = s.buildNativeMessage(ctx, dest, amount, memo)
	}
	if err != nil {
		return "", err
	}

	// Once the message is handed to the wallet the operation must run to
	// its confirmation window: a caller cancelled mid-wait (shutdown) would
	// otherwise report failure for a transfer already on chain. Only the
	// window's own deadline applies past this point.
	waitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.confirmWait)
	defer cancel()

	tx, _, err := s.wallet.SendWaitTransaction(waitCtx, msg)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return "", ErrUnconfirmed
		}
		return "", fmt.Errorf("send %s transfer: %w", asset, err)
	}
	return hex.EncodeToString(tx.Hash), nil
}

func (s *Signer) buildNativeMessage(ctx context.Context, dest *address.Address, amount decimal.Decimal, memo string) (*wallet.Message, error) {
	bal, err := s.Balance(ctx, "ton")
	if err != nil {
		return nil, err
	}
	if bal.LessThan(amount.Add(nativeFeeReserve)) {
		return nil, ErrTreasuryUnderfunded
	}

	body, err := wallet.CreateCommentCell(memo)
	if err != nil {
		return nil, err
	}
	return wallet.SimpleMessage(dest, tlb.MustFromNano(amount.Shift(9).BigInt(), 9), body), nil
}

func (s *Signer) buildJettonMessage(ctx context.Context, dest *address.Address, amount decimal.Decimal, memo string) (*wallet.Message, error) {
	if s.master == nil {
		return nil, fmt.Errorf("jetton master not configured")
	}

	tokenBal, err := s.Balance(ctx, "jetton")
	if err != nil {
		return nil, err
	}
	gasBal, err := s.Balance(ctx, "ton")
	if err != nil {
		return nil, err
	}
	if tokenBal.LessThan(amount) || gasBal.LessThan(jettonGasReserve) {
		return nil, ErrTreasuryUnderfunded
	}

	tw, err := jetton.NewJettonMasterClient(s.client.API, s.master).GetJettonWallet(ctx, s.wallet.WalletAddress())
	if err != nil {
		return nil, fmt.Errorf("resolve treasury jetton wallet: %w", err)
	}

	comment, err := wallet.CreateCommentCell(memo)
	if err != nil {
		return nil, err
	}

	body, err := tw.BuildTransferPayloadV2(dest, s.wallet.WalletAddress(), tlb.MustFromNano(amount.Shift(int32(s.jettonDecimals)).BigInt(), s.jettonDecimals), jettonForwardTON, comment, nil)
	if err != nil {
		return nil, fmt.Errorf("build jetton transfer: %w", err)
	}
	return wallet.SimpleMessage(tw.Address(), jettonCarryTON, body), nil
}

// Balance reports the treasury's spendable balance for an asset.
func (s *Signer) Balance(ctx context.Context, asset string) (decimal.Decimal, error) {
	if asset == "jetton" {
		if s.master == nil {
			return decimal.Zero, fmt.Errorf("jetton master not configured")
		}
		tw, err := jetton.NewJettonMasterClient(s.client.API, s.master).GetJettonWallet(ctx, s.wallet.WalletAddress())
		if err != nil {
			return decimal.Zero, err
		}
		bal, err := tw.GetBalance(ctx)
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromBigInt(bal, -int32(s.jettonDecimals)), nil
	}

	master, err := s.client.API.CurrentMasterchainInfo(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	acc, err := s.client.API.GetAccount(ctx, master, s.wallet.WalletAddress())
	if err != nil {
		return decimal.Zero, err
	}
	if !acc.IsActive {
		return decimal.Zero, nil
	}
	return decimal.NewFromBigInt(acc.State.Balance.Nano(), -9), nil
}
