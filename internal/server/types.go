package server

import "metapool/internal/liquidity"

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      int    `json:"code"`
	Kind      string `json:"kind,omitempty"`
	Asset     string `json:"asset,omitempty"`
	Requested uint64 `json:"requested,omitempty"`
	Available uint64 `json:"available,omitempty"`
}

type HealthResponse struct {
	OK     bool `json:"ok"`
	Halted bool `json:"halted"`
}

// PoolResponse describes the pool at the current rate.
type PoolResponse struct {
	State      liquidity.State `json:"state"`
	Rate       liquidity.Rate  `json:"rate"`
	Value      string          `json:"value_wsol"`
	SharePrice string          `json:"share_price,omitempty"`
}
