package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gagliardetto/solana-go"

	"metapool/internal/liquidity"
)

// ParseAmount parses a base-unit token amount.
func ParseAmount(input string) (uint64, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return 0, fmt.Errorf("amount is required")
	}
	val, err := strconv.ParseUint(input, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount: %s", input)
	}
	return val, nil
}

// ParseAccount converts a base58 string into an account key.
func ParseAccount(input string) (solana.PublicKey, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return solana.PublicKey{}, fmt.Errorf("account is required")
	}
	key, err := solana.PublicKeyFromBase58(input)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid account: %s", input)
	}
	return key, nil
}

// ParseRate parses a stSOL to wSOL rate as "N/D" or a decimal.
func ParseRate(input string) (liquidity.Rate, error) {
	return liquidity.ParseRate(strings.TrimSpace(input))
}
