package liquidity

import (
	"errors"
	stdmath "math"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAccounts() Accounts {
	var authority, vault, mint solana.PublicKey
	for i := range authority {
		authority[i] = 1
		vault[i] = 2
		mint[i] = 3
	}
	return Accounts{Authority: authority, Vault: vault, LPMint: mint}
}

func testState(wsol, stsol, lp uint64) State {
	return State{
		WSOLReserve:    wsol,
		StSOLReserve:   stsol,
		LPSupply:       lp,
		FeeNumerator:   DefaultFeeNumerator,
		FeeDenominator: DefaultFeeDenominator,
		Accounts:       testAccounts(),
	}
}

func TestNewStateValidatesFee(t *testing.T) {
	s, err := NewState(testAccounts(), 3, 100)
	require.NoError(t, err)
	assert.True(t, s.Empty())

	_, err = NewState(testAccounts(), 1, 0)
	require.True(t, errors.Is(err, ErrInvalidFee))

	_, err = NewState(testAccounts(), 101, 100)
	require.True(t, errors.Is(err, ErrInvalidFee))
}

func TestApplyAdvancesSequence(t *testing.T) {
	s := testState(0, 0, 0)
	next, err := s.Apply(ReserveDelta{WSOLIn: 100, LPMinted: 100})
	require.NoError(t, err)

	assert.Equal(t, uint64(100), next.WSOLReserve)
	assert.Equal(t, uint64(100), next.LPSupply)
	assert.Equal(t, uint64(1), next.Sequence)
	assert.Equal(t, uint64(0), s.Sequence)
	assert.Equal(t, uint64(0), s.WSOLReserve)
}

func TestApplyRejectsUnderflowWithoutMutation(t *testing.T) {
	s := testState(5, 0, 5)
	_, err := s.Apply(ReserveDelta{WSOLOut: 6})
	require.True(t, errors.Is(err, ErrUnderflow))
	assert.Equal(t, testState(5, 0, 5), s)

	_, err = s.Apply(ReserveDelta{LPBurned: 6})
	require.True(t, errors.Is(err, ErrUnderflow))
}

func TestApplyRejectsOverflow(t *testing.T) {
	s := testState(stdmath.MaxUint64, 0, 1)
	_, err := s.Apply(ReserveDelta{WSOLIn: 1})
	require.True(t, errors.Is(err, ErrOverflow))
}

func TestApplyRejectsUnbackedShares(t *testing.T) {
	s := testState(0, 0, 0)
	_, err := s.Apply(ReserveDelta{WSOLIn: 10})
	require.True(t, errors.Is(err, ErrInvariantViolated))

	s = testState(10, 0, 10)
	_, err = s.Apply(ReserveDelta{WSOLOut: 10})
	require.True(t, errors.Is(err, ErrInvariantViolated))
}

func TestStateValue(t *testing.T) {
	s := testState(6001, 1030, 7000)
	assert.Equal(t, uint64(7031), s.Value(OneRate).Uint64())
	assert.Equal(t, uint64(6001+1545), s.Value(Rate{Numerator: 3, Denominator: 2}).Uint64())

	// 3500 of 7000 shares redeem half of 7031, rounded down.
	assert.Equal(t, uint64(3515), s.Redeemable(3500, OneRate).Uint64())
	assert.True(t, testState(0, 0, 0).Redeemable(10, OneRate).IsZero())
}

func TestStateRecordRoundTrip(t *testing.T) {
	s := testState(6001, 1030, 7000)
	s.Sequence = 3

	got, err := StateFromRecord(s.Record())
	require.NoError(t, err)
	assert.Equal(t, s, got)

	bad := s.Record()
	bad.LPSupply = 0
	_, err = StateFromRecord(bad)
	require.True(t, errors.Is(err, ErrInvariantViolated))
}
