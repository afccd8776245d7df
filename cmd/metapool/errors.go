package main

import (
	"metapool/internal/liquidity"
)

const exitFailure = 1

// exitCode maps a failure to a stable process exit code. Pool failures use
// 10 plus their kind; anything else exits 1.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	kind := liquidity.KindOf(err)
	if kind == liquidity.KindUnknown {
		return exitFailure
	}
	return 10 + int(kind)
}
