package liquidity_test

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"metapool/internal/ledger"
	"metapool/internal/liquidity"
)

// jumpingOracle returns a non-decreasing rate that sometimes jumps.
type jumpingOracle struct {
	rng  *rand.Rand
	rate liquidity.Rate
}

func (o *jumpingOracle) StSOLToWSOLRate(context.Context) (liquidity.Rate, error) {
	if o.rng.Intn(4) == 0 {
		o.rate.Numerator += uint64(o.rng.Int63n(50_000))
	}
	return o.rate, nil
}

var allowedRejections = []error{
	liquidity.ErrInsufficientBalance,
	liquidity.ErrInsufficientShares,
	liquidity.ErrInsufficientLiquidity,
	liquidity.ErrMintedAmountZero,
	liquidity.ErrOutputAmountZero,
	liquidity.ErrPoolOwnedAccount,
}

func TestRandomSequencesPreserveInvariants(t *testing.T) {
	oracles := map[string]func(*rand.Rand) liquidity.Oracle{
		"frozen": func(*rand.Rand) liquidity.Oracle {
			return fixedRate(liquidity.Rate{Numerator: 1_050_000, Denominator: 1_000_000})
		},
		"jumping": func(rng *rand.Rand) liquidity.Oracle {
			return &jumpingOracle{rng: rng, rate: liquidity.Rate{Numerator: 1_000_000, Denominator: 1_000_000}}
		},
	}

	for name, newOracle := range oracles {
		t.Run(name, func(t *testing.T) {
			rng := rand.New(rand.NewSource(42))
			runRandomSequence(t, rng, newOracle(rng))
		})
	}
}

func runRandomSequence(t *testing.T, rng *rand.Rand, oracle liquidity.Oracle) {
	ctx := context.Background()
	host := ledger.NewMemoryHost()
	svc := liquidity.NewService(liquidity.ServiceConfig{}, host, oracle, nil)
	pool, err := svc.CreatePool(ctx, authority, 3, 100)
	require.NoError(t, err)

	providers := []byte{10, 11, 12}
	sellers := []byte{20, 21}
	for _, seed := range providers {
		_, err := svc.Fund(ctx, account(seed), liquidity.AssetWSOL, 1_000_000_000)
		require.NoError(t, err)
	}
	for _, seed := range sellers {
		_, err := svc.Fund(ctx, account(seed), liquidity.AssetStSOL, 1_000_000_000)
		require.NoError(t, err)
	}

	// Occasionally act as the vault, which must always be refused.
	pick := func(seeds []byte) solana.PublicKey {
		if rng.Intn(10) == 0 {
			return pool.Accounts.Vault
		}
		return account(seeds[rng.Intn(len(seeds))])
	}

	for step := 0; step < 600; step++ {
		before, err := svc.Pool(ctx)
		require.NoError(t, err)
		snapshot := host.Snapshot().Entries()

		var (
			receipt liquidity.Receipt
			opErr   error
			op      = rng.Intn(3)
		)
		switch op {
		case 0:
			who := pick(providers)
			receipt, opErr = svc.AddLiquidity(ctx, who, uint64(rng.Int63n(50_000_000)+1))
		case 1:
			who := pick(providers)
			shares, err := host.Snapshot().Balance(ctx, who, liquidity.AssetLP)
			require.NoError(t, err)
			amount := uint64(rng.Int63n(10_000_000) + 1)
			if shares > 0 && rng.Intn(2) == 0 {
				amount = uint64(rng.Int63n(int64(shares))) + 1
			}
			receipt, opErr = svc.RemoveLiquidity(ctx, who, amount)
		default:
			who := pick(sellers)
			receipt, opErr = svc.SellStSOL(ctx, who, uint64(rng.Int63n(20_000_000)+1))
		}

		after, err := svc.Pool(ctx)
		require.NoError(t, err)
		require.NoError(t, after.CheckInvariants())

		if opErr != nil {
			require.True(t, isAllowed(opErr), "step %d: unexpected error %v", step, opErr)
			require.Equal(t, before, after, "step %d: rejected operation changed state", step)
			require.Equal(t, snapshot, host.Snapshot().Entries(), "step %d: rejected operation moved balances", step)
			continue
		}

		require.Equal(t, before.Sequence+1, after.Sequence)
		checkLedgerMatchesPool(t, host, pool.Accounts, after)

		switch op {
		case 1:
			// Withdrawn value never exceeds the burned fraction of the pool.
			rate := liquidity.Rate{Numerator: 2, Denominator: 1}
			paid := scaled(receipt.WSOLOut, receipt.StSOLOut, rate)
			paid.Mul(paid, uint256.NewInt(before.LPSupply))
			owed := scaled(before.WSOLReserve, before.StSOLReserve, rate)
			owed.Mul(owed, uint256.NewInt(receipt.LPBurned))
			require.True(t, paid.Cmp(owed) <= 0, "step %d: withdrawal over-paid", step)
		default:
			require.True(t, after.Value(receipt.Rate).Cmp(before.Value(receipt.Rate)) >= 0,
				"step %d: %s decreased pool value", step, receipt.Operation)
		}
	}
}

func isAllowed(err error) bool {
	for _, target := range allowedRejections {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func scaled(wsol, stsol uint64, rate liquidity.Rate) *uint256.Int {
	v := new(uint256.Int).Mul(uint256.NewInt(wsol), uint256.NewInt(rate.Denominator))
	s := new(uint256.Int).Mul(uint256.NewInt(stsol), uint256.NewInt(rate.Numerator))
	return v.Add(v, s)
}

func checkLedgerMatchesPool(t *testing.T, host *ledger.MemoryHost, accounts liquidity.Accounts, state liquidity.State) {
	t.Helper()
	ctx := context.Background()
	book := host.Snapshot()

	wsol, err := book.Balance(ctx, accounts.Vault, liquidity.AssetWSOL)
	require.NoError(t, err)
	stsol, err := book.Balance(ctx, accounts.Vault, liquidity.AssetStSOL)
	require.NoError(t, err)
	lp, err := book.Supply(ctx, liquidity.AssetLP)
	require.NoError(t, err)

	require.Equal(t, state.WSOLReserve, wsol)
	require.Equal(t, state.StSOLReserve, stsol)
	require.Equal(t, state.LPSupply, lp)
}
