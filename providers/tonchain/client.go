package tonchain

import (
	"context"
	"fmt"
	"log"

	"bimbridge/config"

	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/liteclient"
	"github.com/xssnick/tonutils-go/ton"
	"github.com/xssnick/tonutils-go/ton/jetton"
)

// Client wraps a liteserver connection pool and the treasury address.
type Client struct {
	API      ton.APIClientWrapped
	Treasury *address.Address
}

func Connect(ctx context.Context, cfg *config.Config) (*Client, error) {
	pool := liteclient.NewConnectionPool()
	if err := pool.AddConnectionsFromConfigUrl(ctx, cfg.TonConfigURL); err != nil {
		return nil, fmt.Errorf("liteserver connect: %w", err)
	}

	api := ton.NewAPIClient(pool).WithRetry()

	treasury, err := address.ParseAddr(cfg.TreasuryAddress)
	if err != nil {
		return nil, fmt.Errorf("parse treasury address: %w", err)
	}

	log.Println("✅ Connected to TON liteservers")
	return &Client{API: api, Treasury: treasury}, nil
}

// JettonWalletOf resolves the treasury's wallet for the given jetton master.
// Returns nil when no master is configured, so a TON-only deployment still
// gets a working reader.
func (c *Client) JettonWalletOf(ctx context.Context, master string) (*address.Address, error) {
	if master == "" {
		return nil, nil
	}
	m, err := address.ParseAddr(master)
	if err != nil {
		return nil, fmt.Errorf("parse jetton master: %w", err)
	}
	tw, err := jetton.NewJettonMasterClient(c.API, m).GetJettonWallet(ctx, c.Treasury)
	if err != nil {
		return nil, err
	}
	return tw.Address(), nil
}
