package liquidity

import (
	"errors"

	"github.com/gagliardetto/solana-go"
	"github.com/holiman/uint256"

	"metapool/internal/model"
)

// StepKind is the ledger primitive a Step issues.
type StepKind uint8

const (
	StepTransfer StepKind = iota + 1
	StepMint
	StepBurn
)

// Step is one ledger call of a planned operation.
type Step struct {
	Kind   StepKind
	Asset  AssetKind
	From   solana.PublicKey
	To     solana.PublicKey
	Amount uint64
}

// Plan is the fully computed effect of one operation. Building a plan has no
// side effects; executing it issues Steps in order and then commits Next.
type Plan struct {
	Operation string
	Account   solana.PublicKey
	Amount    uint64
	Rate      Rate
	Gross     uint64
	Fee       uint64
	Delta     ReserveDelta
	Steps     []Step
	Prev      State
	Next      State
}

// PlanAddLiquidity prices a wSOL deposit. The first deposit mints 1:1; later
// deposits mint floor(amount*lp_supply/V).
func PlanAddLiquidity(state State, depositor solana.PublicKey, amount uint64, rate Rate) (Plan, error) {
	const op = model.OpAddLiquidity
	if amount == 0 {
		return Plan{}, newError(KindZeroAmount, op, "")
	}

	var minted uint64
	if state.LPSupply == 0 {
		minted = amount
	} else {
		if err := rate.Validate(); err != nil {
			return Plan{}, err
		}
		value := scaledValue(state.WSOLReserve, state.StSOLReserve, rate)
		if value.IsZero() {
			return Plan{}, newError(KindInvariantViolated, op, "shares outstanding with zero pool value")
		}
		num := new(uint256.Int).Mul(uint256.NewInt(amount), uint256.NewInt(state.LPSupply))
		num.Mul(num, uint256.NewInt(rate.Denominator))
		num.Div(num, value)
		if !num.IsUint64() {
			return Plan{}, newError(KindOverflow, op, "minted shares exceed u64")
		}
		minted = num.Uint64()
	}
	if minted == 0 {
		return Plan{}, amountError(KindMintedAmountZero, op, AssetWSOL, amount, 0)
	}

	plan := Plan{
		Operation: op,
		Account:   depositor,
		Amount:    amount,
		Rate:      rate,
		Delta:     ReserveDelta{WSOLIn: amount, LPMinted: minted},
		Steps: []Step{
			{Kind: StepTransfer, Asset: AssetWSOL, From: depositor, To: state.Accounts.Vault, Amount: amount},
			{Kind: StepMint, Asset: AssetLP, To: depositor, Amount: minted},
		},
	}
	return plan.seal(state)
}

// PlanRemoveLiquidity prices a share redemption. Outputs are proportional to
// reserves and rounded down; burning the whole supply drains both reserves.
func PlanRemoveLiquidity(state State, holder solana.PublicKey, shares uint64) (Plan, error) {
	const op = model.OpRemoveLiquidity
	if shares == 0 {
		return Plan{}, newError(KindZeroAmount, op, "")
	}
	if shares > state.LPSupply {
		return Plan{}, amountError(KindInsufficientShares, op, AssetLP, shares, state.LPSupply)
	}

	wsolOut, err := mulDivFloor(state.WSOLReserve, shares, state.LPSupply)
	if err != nil {
		return Plan{}, err
	}
	stsolOut, err := mulDivFloor(state.StSOLReserve, shares, state.LPSupply)
	if err != nil {
		return Plan{}, err
	}
	if shares == state.LPSupply && (wsolOut != state.WSOLReserve || stsolOut != state.StSOLReserve) {
		return Plan{}, newError(KindInvariantViolated, op, "full withdrawal left reserves behind")
	}
	if wsolOut == 0 && stsolOut == 0 {
		return Plan{}, amountError(KindOutputAmountZero, op, AssetLP, shares, 0)
	}

	steps := []Step{{Kind: StepBurn, Asset: AssetLP, From: holder, Amount: shares}}
	if wsolOut > 0 {
		steps = append(steps, Step{Kind: StepTransfer, Asset: AssetWSOL, From: state.Accounts.Vault, To: holder, Amount: wsolOut})
	}
	if stsolOut > 0 {
		steps = append(steps, Step{Kind: StepTransfer, Asset: AssetStSOL, From: state.Accounts.Vault, To: holder, Amount: stsolOut})
	}

	plan := Plan{
		Operation: op,
		Account:   holder,
		Amount:    shares,
		Delta:     ReserveDelta{WSOLOut: wsolOut, StSOLOut: stsolOut, LPBurned: shares},
		Steps:     steps,
	}
	return plan.seal(state)
}

// PlanSellStSOL prices a discounted sale: gross = floor(amount*rate),
// fee = ceil(gross*fee_numerator/fee_denominator), out = gross - fee.
func PlanSellStSOL(state State, seller solana.PublicKey, amount uint64, rate Rate) (Plan, error) {
	const op = model.OpSellStSOL
	if amount == 0 {
		return Plan{}, newError(KindZeroAmount, op, "")
	}
	if err := rate.Validate(); err != nil {
		return Plan{}, err
	}

	gross, err := rate.Value(amount)
	if err != nil {
		return Plan{}, err
	}
	fee, err := mulDivCeil(gross, uint64(state.FeeNumerator), uint64(state.FeeDenominator))
	if err != nil {
		return Plan{}, err
	}
	out := gross - fee
	if out == 0 {
		return Plan{}, amountError(KindOutputAmountZero, op, AssetStSOL, amount, 0)
	}
	if out > state.WSOLReserve {
		return Plan{}, amountError(KindInsufficientLiquidity, op, AssetWSOL, out, state.WSOLReserve)
	}

	plan := Plan{
		Operation: op,
		Account:   seller,
		Amount:    amount,
		Rate:      rate,
		Gross:     gross,
		Fee:       fee,
		Delta:     ReserveDelta{StSOLIn: amount, WSOLOut: out},
		Steps: []Step{
			{Kind: StepTransfer, Asset: AssetStSOL, From: seller, To: state.Accounts.Vault, Amount: amount},
			{Kind: StepTransfer, Asset: AssetWSOL, From: state.Accounts.Vault, To: seller, Amount: out},
		},
	}
	return plan.seal(state)
}

func (p Plan) seal(state State) (Plan, error) {
	next, err := state.Apply(p.Delta)
	if err != nil {
		var e *Error
		if errors.As(err, &e) && e.Op == "apply" {
			e.Op = p.Operation
		}
		return Plan{}, err
	}
	p.Prev = state
	p.Next = next
	return p, nil
}

// Receipt describes the outcome of a committed or quoted plan.
func (p Plan) Receipt() Receipt {
	return Receipt{
		Operation: p.Operation,
		Account:   p.Account,
		Amount:    p.Amount,
		WSOLIn:    p.Delta.WSOLIn,
		WSOLOut:   p.Delta.WSOLOut,
		StSOLIn:   p.Delta.StSOLIn,
		StSOLOut:  p.Delta.StSOLOut,
		LPMinted:  p.Delta.LPMinted,
		LPBurned:  p.Delta.LPBurned,
		Gross:     p.Gross,
		Fee:       p.Fee,
		Rate:      p.Rate,
		Before:    p.Prev,
		After:     p.Next,
	}
}

// Receipt is the caller-facing result of an operation.
type Receipt struct {
	Operation string           `json:"operation"`
	Account   solana.PublicKey `json:"account"`
	Amount    uint64           `json:"amount"`
	WSOLIn    uint64           `json:"wsol_in"`
	WSOLOut   uint64           `json:"wsol_out"`
	StSOLIn   uint64           `json:"stsol_in"`
	StSOLOut  uint64           `json:"stsol_out"`
	LPMinted  uint64           `json:"lp_minted"`
	LPBurned  uint64           `json:"lp_burned"`
	Gross     uint64           `json:"gross"`
	Fee       uint64           `json:"fee"`
	Rate      Rate             `json:"rate"`
	Before    State            `json:"before"`
	After     State            `json:"after"`
}

// Record converts a receipt into its journal form.
func (r Receipt) Record(pool string, timestamp uint64) model.OperationRecord {
	rec := model.OperationRecord{
		Sequence:  r.After.Sequence,
		Pool:      pool,
		Operation: r.Operation,
		Account:   r.Account.String(),
		Amount:    r.Amount,
		WSOLIn:    r.WSOLIn,
		WSOLOut:   r.WSOLOut,
		StSOLIn:   r.StSOLIn,
		StSOLOut:  r.StSOLOut,
		LPMinted:  r.LPMinted,
		LPBurned:  r.LPBurned,
		Fee:       r.Fee,
		Before:    r.Before.snapshot(),
		After:     r.After.snapshot(),
		Timestamp: timestamp,
	}
	if r.Rate.Denominator != 0 {
		rec.RateNumerator = r.Rate.Numerator
		rec.RateDenominator = r.Rate.Denominator
		rec.ValueAfter = r.After.Value(r.Rate).Dec()
	}
	return rec
}
