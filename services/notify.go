package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// MintNotifier tells the external minting collaborator about a confirmed
// deposit credit. Called post-commit, fire and forget: BIM is an internal
// accounting unit and a missed notification never undoes a credit.
type MintNotifier interface {
	NotifyMint(ctx context.Context, walletAddress string, bimAmount decimal.Decimal, txHash string) error
}

type HTTPMintNotifier struct {
	URL    string
	Client *http.Client
}

func NewHTTPMintNotifier(url string) *HTTPMintNotifier {
	return &HTTPMintNotifier{
		URL:    url,
		Client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (n *HTTPMintNotifier) NotifyMint(ctx context.Context, walletAddress string, bimAmount decimal.Decimal, txHash string) error {
	if n.URL == "" {
		return nil
	}

	body, _ := json.Marshal(map[string]any{
		"wallet_address": walletAddress,
		"bim_amount":     bimAmount,
		"tx_hash":        txHash,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("mint notify returned %d", resp.StatusCode)
	}
	return nil
}
