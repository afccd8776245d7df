package oracle

import (
	"context"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"metapool/internal/chain"
	"metapool/internal/liquidity"
)

// StakePoolFee is the staking pool's own reward fee.
type StakePoolFee struct {
	Denominator uint64
	Numerator   uint64
}

// StakePoolState is the leading part of the staking pool account.
type StakePoolState struct {
	Version            uint8
	Owner              solana.PublicKey
	DepositBumpSeed    uint8
	WithdrawBumpSeed   uint8
	ValidatorStakeList solana.PublicKey
	PoolMint           solana.PublicKey
	OwnerFeeAccount    solana.PublicKey
	TokenProgramID     solana.PublicKey
	StakeTotal         uint64
	PoolTotal          uint64
	LastUpdateEpoch    uint64
	Fee                StakePoolFee
}

// DecodeStakePool decodes the borsh account layout. Trailing bytes are ignored.
func DecodeStakePool(data []byte) (StakePoolState, error) {
	var state StakePoolState
	if err := bin.NewBorshDecoder(data).Decode(&state); err != nil {
		return StakePoolState{}, fmt.Errorf("decode stake pool: %w", err)
	}
	if state.Version == 0 {
		return StakePoolState{}, fmt.Errorf("decode stake pool: account not initialized")
	}
	return state, nil
}

// Rate is total stake over stSOL supply; an empty pool trades at par.
func (s StakePoolState) Rate() liquidity.Rate {
	if s.PoolTotal == 0 {
		return liquidity.OneRate
	}
	return liquidity.Rate{Numerator: s.StakeTotal, Denominator: s.PoolTotal}
}

// AccountReader fetches raw account data.
type AccountReader interface {
	GetAccount(ctx context.Context, address solana.PublicKey) (chain.Account, error)
}

// StakePool reads the rate from the staking pool account on chain.
type StakePool struct {
	reader  AccountReader
	address solana.PublicKey
}

func NewStakePool(reader AccountReader, address solana.PublicKey) *StakePool {
	return &StakePool{reader: reader, address: address}
}

func (p *StakePool) StSOLToWSOLRate(ctx context.Context) (liquidity.Rate, error) {
	state, err := p.State(ctx)
	if err != nil {
		return liquidity.Rate{}, err
	}
	return state.Rate(), nil
}

// State reads and decodes the staking pool account.
func (p *StakePool) State(ctx context.Context) (StakePoolState, error) {
	acct, err := p.reader.GetAccount(ctx, p.address)
	if err != nil {
		return StakePoolState{}, fmt.Errorf("read stake pool %s: %w", p.address, err)
	}
	return DecodeStakePool(acct.Data)
}
