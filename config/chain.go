package config

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/ethclient"
)

// DialChain opens the RPC transport of the allowed chain and checks that the
// remote end really is that chain.
func DialChain(ctx context.Context, cfg Config) (*ethclient.Client, error) {
	chain := cfg.Chain()
	client, err := ethclient.DialContext(ctx, chain.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", chain.Name, err)
	}

	id, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to query chain id: %w", err)
	}
	if !id.IsUint64() || id.Uint64() != chain.ID {
		client.Close()
		return nil, fmt.Errorf("rpc %s serves chain %s, want %d", chain.RPCURL, id, chain.ID)
	}
	return client, nil
}
