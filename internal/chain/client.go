package chain

import (
	"context"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v5"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
)

// ErrAccountNotFound is returned when an account does not exist.
var ErrAccountNotFound = errors.New("account not found")

// Client wraps the Solana JSON-RPC client with retries.
type Client struct {
	rpcClient  *rpc.Client
	commitment rpc.CommitmentType
	retry      RetryConfig
	logger     *zap.Logger
}

// NewClient creates a new chain client from the RPC URL.
func NewClient(rpcURL string, retry RetryConfig, logger *zap.Logger) (*Client, error) {
	if rpcURL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		rpcClient:  rpc.New(rpcURL),
		commitment: rpc.CommitmentConfirmed,
		retry:      retry,
		logger:     logger,
	}, nil
}

// Close closes the underlying RPC client.
func (c *Client) Close() error {
	if c.rpcClient != nil {
		return c.rpcClient.Close()
	}
	return nil
}

// Account is the raw state of an on-chain account.
type Account struct {
	Owner solana.PublicKey
	Data  []byte
	Slot  uint64
}

// GetAccount returns the account data at confirmed commitment.
func (c *Client) GetAccount(ctx context.Context, address solana.PublicKey) (Account, error) {
	return withRetry(ctx, c.retry, c.logger, "getAccountInfo", func(ctx context.Context) (Account, error) {
		out, err := c.rpcClient.GetAccountInfoWithOpts(ctx, address, &rpc.GetAccountInfoOpts{
			Commitment: c.commitment,
		})
		if err != nil {
			if errors.Is(err, rpc.ErrNotFound) {
				return Account{}, backoff.Permanent(fmt.Errorf("%w: %s", ErrAccountNotFound, address))
			}
			return Account{}, err
		}
		if out.Value.Data == nil {
			return Account{}, backoff.Permanent(fmt.Errorf("account %s has no data", address))
		}
		return Account{
			Owner: out.Value.Owner,
			Data:  out.Value.Data.GetBinary(),
			Slot:  out.Context.Slot,
		}, nil
	})
}

// CurrentEpoch returns the cluster epoch.
func (c *Client) CurrentEpoch(ctx context.Context) (uint64, error) {
	return withRetry(ctx, c.retry, c.logger, "getEpochInfo", func(ctx context.Context) (uint64, error) {
		out, err := c.rpcClient.GetEpochInfo(ctx, c.commitment)
		if err != nil {
			return 0, err
		}
		return out.Epoch, nil
	})
}
