package liquidity

import (
	"fmt"
	"strings"
)

// AssetKind identifies one of the three fungible assets the pool touches.
type AssetKind uint8

const (
	AssetUnknown AssetKind = iota
	AssetWSOL
	AssetStSOL
	AssetLP
)

func (a AssetKind) String() string {
	switch a {
	case AssetWSOL:
		return "wSOL"
	case AssetStSOL:
		return "stSOL"
	case AssetLP:
		return "LP"
	default:
		return fmt.Sprintf("asset(%d)", uint8(a))
	}
}

// ParseAsset accepts wsol, stsol or lp in any case.
func ParseAsset(input string) (AssetKind, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "wsol":
		return AssetWSOL, nil
	case "stsol":
		return AssetStSOL, nil
	case "lp":
		return AssetLP, nil
	default:
		return AssetUnknown, fmt.Errorf("unknown asset %q", input)
	}
}

// Assets lists the known assets in a stable order.
func Assets() []AssetKind {
	return []AssetKind{AssetWSOL, AssetStSOL, AssetLP}
}
