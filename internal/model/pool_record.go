package model

import (
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

const (
	// PoolRecordVersion is the current layout version of PoolRecord.
	PoolRecordVersion uint8 = 1

	// PoolRecordSize is the encoded size of a version 1 PoolRecord.
	PoolRecordSize = 1 + 8 + 8 + 8 + 4 + 4 + 8 + 32 + 32 + 32
)

// PoolRecord is the persisted liquidity pool state. All amounts are minor units.
type PoolRecord struct {
	Version        uint8
	WSOLReserve    uint64
	StSOLReserve   uint64
	LPSupply       uint64
	FeeNumerator   uint32
	FeeDenominator uint32
	Sequence       uint64
	Authority      solana.PublicKey
	Vault          solana.PublicKey
	LPMint         solana.PublicKey
}

// MarshalBinary encodes the record as a fixed-size borsh layout.
func (r PoolRecord) MarshalBinary() ([]byte, error) {
	if r.Version == 0 {
		r.Version = PoolRecordVersion
	}
	data, err := bin.MarshalBorsh(&r)
	if err != nil {
		return nil, fmt.Errorf("encode pool record: %w", err)
	}
	if len(data) != PoolRecordSize {
		return nil, fmt.Errorf("encode pool record: size %d, want %d", len(data), PoolRecordSize)
	}
	return data, nil
}

// UnmarshalBinary decodes a record produced by MarshalBinary.
func (r *PoolRecord) UnmarshalBinary(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("decode pool record: empty data")
	}
	if data[0] != PoolRecordVersion {
		return fmt.Errorf("decode pool record: unsupported version %d", data[0])
	}
	if len(data) != PoolRecordSize {
		return fmt.Errorf("decode pool record: size %d, want %d", len(data), PoolRecordSize)
	}

	var decoded PoolRecord
	if err := bin.NewBorshDecoder(data).Decode(&decoded); err != nil {
		return fmt.Errorf("decode pool record: %w", err)
	}
	*r = decoded
	return nil
}
