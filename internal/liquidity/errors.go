package liquidity

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies pool failures.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindZeroAmount
	KindInsufficientBalance
	KindInsufficientShares
	KindInsufficientLiquidity
	KindMintedAmountZero
	KindUnderflow
	KindInvariantViolated
	KindOverflow
	KindOutputAmountZero
	KindInvalidRate
	KindInvalidFee
	KindPoolNotInitialized
	KindPoolExists
	KindConcurrentModification
	KindHalted
	KindPoolOwnedAccount
)

var kindNames = map[Kind]string{
	KindUnknown:                "Unknown",
	KindZeroAmount:             "ZeroAmount",
	KindInsufficientBalance:    "InsufficientBalance",
	KindInsufficientShares:     "InsufficientShares",
	KindInsufficientLiquidity:  "InsufficientLiquidity",
	KindMintedAmountZero:       "MintedAmountZero",
	KindUnderflow:              "Underflow",
	KindInvariantViolated:      "InvariantViolated",
	KindOverflow:               "Overflow",
	KindOutputAmountZero:       "OutputAmountZero",
	KindInvalidRate:            "InvalidRate",
	KindInvalidFee:             "InvalidFee",
	KindPoolNotInitialized:     "PoolNotInitialized",
	KindPoolExists:             "PoolExists",
	KindConcurrentModification: "ConcurrentModification",
	KindHalted:                 "Halted",
	KindPoolOwnedAccount:       "PoolOwnedAccount",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Fatal reports whether the kind indicates a logic defect rather than a rejected request.
func (k Kind) Fatal() bool {
	return k == KindInvariantViolated
}

// Error is a classified pool failure with the amounts that triggered it.
type Error struct {
	Kind      Kind
	Op        string
	Asset     AssetKind
	Requested uint64
	Available uint64
	Detail    string
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Op != "" {
		b.WriteString(" (")
		b.WriteString(e.Op)
		b.WriteString(")")
	}
	if e.Requested != 0 || e.Available != 0 {
		unit := ""
		if e.Asset != AssetUnknown {
			unit = " " + e.Asset.String()
		}
		fmt.Fprintf(&b, ": requested %d%s, available %d%s", e.Requested, unit, e.Available, unit)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	return b.String()
}

// Is matches any *Error of the same kind, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return other.Kind == e.Kind
}

// Sentinels for errors.Is matching.
var (
	ErrZeroAmount             = &Error{Kind: KindZeroAmount}
	ErrInsufficientBalance    = &Error{Kind: KindInsufficientBalance}
	ErrInsufficientShares     = &Error{Kind: KindInsufficientShares}
	ErrInsufficientLiquidity  = &Error{Kind: KindInsufficientLiquidity}
	ErrMintedAmountZero       = &Error{Kind: KindMintedAmountZero}
	ErrUnderflow              = &Error{Kind: KindUnderflow}
	ErrInvariantViolated      = &Error{Kind: KindInvariantViolated}
	ErrOverflow               = &Error{Kind: KindOverflow}
	ErrOutputAmountZero       = &Error{Kind: KindOutputAmountZero}
	ErrInvalidRate            = &Error{Kind: KindInvalidRate}
	ErrInvalidFee             = &Error{Kind: KindInvalidFee}
	ErrPoolNotInitialized     = &Error{Kind: KindPoolNotInitialized}
	ErrPoolExists             = &Error{Kind: KindPoolExists}
	ErrConcurrentModification = &Error{Kind: KindConcurrentModification}
	ErrHalted                 = &Error{Kind: KindHalted}
	ErrPoolOwnedAccount       = &Error{Kind: KindPoolOwnedAccount}
)

// KindOf extracts the Kind from err, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func newError(kind Kind, op string, detail string) *Error {
	return &Error{Kind: kind, Op: op, Detail: detail}
}

func amountError(kind Kind, op string, asset AssetKind, requested, available uint64) *Error {
	return &Error{Kind: kind, Op: op, Asset: asset, Requested: requested, Available: available}
}

// InsufficientBalance builds the error ledgers return when a debit exceeds a balance.
func InsufficientBalance(asset AssetKind, requested, available uint64) error {
	return amountError(KindInsufficientBalance, "", asset, requested, available)
}

// ConcurrentModification builds the error hosts return when a stored sequence moved.
func ConcurrentModification(expected, found uint64) error {
	return newError(KindConcurrentModification, "", fmt.Sprintf("expected sequence %d, found %d", expected, found))
}
