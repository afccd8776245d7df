package liquidity

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/holiman/uint256"

	"metapool/internal/model"
)

const (
	DefaultFeeNumerator   uint32 = 3
	DefaultFeeDenominator uint32 = 100
)

// Accounts are the pool identities fixed at creation.
type Accounts struct {
	Authority solana.PublicKey `json:"authority"`
	Vault     solana.PublicKey `json:"vault"`
	LPMint    solana.PublicKey `json:"lp_mint"`
}

// Owns reports whether account is one of the pool's own identities.
func (a Accounts) Owns(account solana.PublicKey) bool {
	return account.Equals(a.Vault) || account.Equals(a.Authority) || account.Equals(a.LPMint)
}

// State is the authoritative pool record. It is only replaced through Apply.
type State struct {
	WSOLReserve    uint64   `json:"wsol_reserve"`
	StSOLReserve   uint64   `json:"stsol_reserve"`
	LPSupply       uint64   `json:"lp_supply"`
	FeeNumerator   uint32   `json:"fee_numerator"`
	FeeDenominator uint32   `json:"fee_denominator"`
	Sequence       uint64   `json:"sequence"`
	Accounts       Accounts `json:"accounts"`
}

// ReserveDelta is the full reserve and supply change of one operation.
type ReserveDelta struct {
	WSOLIn   uint64
	WSOLOut  uint64
	StSOLIn  uint64
	StSOLOut uint64
	LPMinted uint64
	LPBurned uint64
}

// NewState returns the empty pool for the given accounts and fee.
func NewState(accounts Accounts, feeNumerator, feeDenominator uint32) (State, error) {
	if err := validateFee(feeNumerator, feeDenominator); err != nil {
		return State{}, err
	}
	return State{
		FeeNumerator:   feeNumerator,
		FeeDenominator: feeDenominator,
		Accounts:       accounts,
	}, nil
}

func validateFee(numerator, denominator uint32) error {
	if denominator == 0 {
		return newError(KindInvalidFee, "", "zero fee denominator")
	}
	if numerator > denominator {
		return newError(KindInvalidFee, "", fmt.Sprintf("fee %d/%d exceeds 1", numerator, denominator))
	}
	return nil
}

// Empty reports whether the pool holds no reserves and no shares are outstanding.
func (s State) Empty() bool {
	return s.LPSupply == 0 && s.WSOLReserve == 0 && s.StSOLReserve == 0
}

// CheckInvariants reports InvariantViolated if shares and backing disagree.
func (s State) CheckInvariants() error {
	reservesZero := s.WSOLReserve == 0 && s.StSOLReserve == 0
	if (s.LPSupply == 0) != reservesZero {
		return newError(KindInvariantViolated, "", fmt.Sprintf(
			"lp_supply=%d with wsol_reserve=%d stsol_reserve=%d",
			s.LPSupply, s.WSOLReserve, s.StSOLReserve,
		))
	}
	if err := validateFee(s.FeeNumerator, s.FeeDenominator); err != nil {
		return newError(KindInvariantViolated, "", err.Error())
	}
	return nil
}

// Apply computes the successor state. The receiver is never modified and the
// successor carries the next sequence number.
func (s State) Apply(delta ReserveDelta) (State, error) {
	const op = "apply"
	next := s
	var err error

	if next.WSOLReserve, err = addU64(s.WSOLReserve, delta.WSOLIn, op); err != nil {
		return s, err
	}
	if next.WSOLReserve, err = subU64(next.WSOLReserve, delta.WSOLOut, op, AssetWSOL); err != nil {
		return s, err
	}
	if next.StSOLReserve, err = addU64(s.StSOLReserve, delta.StSOLIn, op); err != nil {
		return s, err
	}
	if next.StSOLReserve, err = subU64(next.StSOLReserve, delta.StSOLOut, op, AssetStSOL); err != nil {
		return s, err
	}
	if next.LPSupply, err = addU64(s.LPSupply, delta.LPMinted, op); err != nil {
		return s, err
	}
	if next.LPSupply, err = subU64(next.LPSupply, delta.LPBurned, op, AssetLP); err != nil {
		return s, err
	}
	if next.Sequence, err = addU64(s.Sequence, 1, op); err != nil {
		return s, err
	}

	if err := next.CheckInvariants(); err != nil {
		return s, err
	}
	return next, nil
}

// Value returns floor(wsol_reserve + stsol_reserve*rate).
func (s State) Value(rate Rate) *uint256.Int {
	v := scaledValue(s.WSOLReserve, s.StSOLReserve, rate)
	return v.Div(v, uint256.NewInt(rate.Denominator))
}

// Redeemable returns the floor value in wSOL of the given number of shares.
func (s State) Redeemable(shares uint64, rate Rate) *uint256.Int {
	if s.LPSupply == 0 {
		return new(uint256.Int)
	}
	v := scaledValue(s.WSOLReserve, s.StSOLReserve, rate)
	v.Mul(v, uint256.NewInt(shares))
	d := new(uint256.Int).Mul(uint256.NewInt(s.LPSupply), uint256.NewInt(rate.Denominator))
	return v.Div(v, d)
}

func (s State) snapshot() model.ReserveSnapshot {
	return model.ReserveSnapshot{
		WSOLReserve:  s.WSOLReserve,
		StSOLReserve: s.StSOLReserve,
		LPSupply:     s.LPSupply,
	}
}

// Record converts the state to its persisted form.
func (s State) Record() model.PoolRecord {
	return model.PoolRecord{
		Version:        model.PoolRecordVersion,
		WSOLReserve:    s.WSOLReserve,
		StSOLReserve:   s.StSOLReserve,
		LPSupply:       s.LPSupply,
		FeeNumerator:   s.FeeNumerator,
		FeeDenominator: s.FeeDenominator,
		Sequence:       s.Sequence,
		Authority:      s.Accounts.Authority,
		Vault:          s.Accounts.Vault,
		LPMint:         s.Accounts.LPMint,
	}
}

// StateFromRecord validates a persisted record and converts it.
func StateFromRecord(rec model.PoolRecord) (State, error) {
	s := State{
		WSOLReserve:    rec.WSOLReserve,
		StSOLReserve:   rec.StSOLReserve,
		LPSupply:       rec.LPSupply,
		FeeNumerator:   rec.FeeNumerator,
		FeeDenominator: rec.FeeDenominator,
		Sequence:       rec.Sequence,
		Accounts: Accounts{
			Authority: rec.Authority,
			Vault:     rec.Vault,
			LPMint:    rec.LPMint,
		},
	}
	if err := s.CheckInvariants(); err != nil {
		return State{}, err
	}
	return s, nil
}
