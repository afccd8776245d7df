package server

import (
	"context"
	"math/big"
	"net/http"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"metapool/internal/config"
	"metapool/internal/liquidity"
)

// PoolService is the read side of the pool used by the API.
type PoolService interface {
	Halted() bool
	Pool(ctx context.Context) (liquidity.State, error)
	Rate(ctx context.Context) (liquidity.Rate, error)
	Position(ctx context.Context, account solana.PublicKey) (liquidity.Position, error)
	QuoteAddLiquidity(ctx context.Context, depositor solana.PublicKey, amount uint64) (liquidity.Receipt, error)
	QuoteRemoveLiquidity(ctx context.Context, holder solana.PublicKey, shares uint64) (liquidity.Receipt, error)
	QuoteSellStSOL(ctx context.Context, seller solana.PublicKey, amount uint64) (liquidity.Receipt, error)
	Audit(ctx context.Context) (liquidity.AuditReport, error)
}

// Handlers serves the read-only pool API.
type Handlers struct {
	Service PoolService
	Logger  *zap.Logger
	Timeout time.Duration
}

func (h *Handlers) err(c echo.Context, code int, msg string) error {
	return c.JSON(code, ErrorResponse{Error: msg, Code: code})
}

func (h *Handlers) poolErr(c echo.Context, err error) error {
	code, resp := poolError(err)
	if code >= http.StatusInternalServerError && h.Logger != nil {
		h.Logger.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
	}
	return c.JSON(code, resp)
}

func (h *Handlers) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	d := h.Timeout
	if d <= 0 {
		d = 10 * time.Second
	}
	return context.WithTimeout(ctx, d)
}

// Health reports liveness and whether the pool has halted.
func (h *Handlers) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{OK: true, Halted: h.Service.Halted()})
}

// Pool returns reserves, supply, and value at the current rate.
func (h *Handlers) Pool(c echo.Context) error {
	ctx, cancel := h.withTimeout(c.Request().Context())
	defer cancel()

	state, err := h.Service.Pool(ctx)
	if err != nil {
		return h.poolErr(c, err)
	}
	rate, err := h.Service.Rate(ctx)
	if err != nil {
		return h.poolErr(c, err)
	}

	value := state.Value(rate)
	resp := PoolResponse{State: state, Rate: rate, Value: value.Dec()}
	if state.LPSupply > 0 {
		price := new(big.Rat).SetFrac(value.ToBig(), new(big.Int).SetUint64(state.LPSupply))
		resp.SharePrice = price.FloatString(9)
	}
	return c.JSON(http.StatusOK, resp)
}

// Position returns an account's balances and redeemable share value.
func (h *Handlers) Position(c echo.Context) error {
	account, err := config.ParseAccount(c.Param("account"))
	if err != nil {
		return h.err(c, http.StatusBadRequest, err.Error())
	}

	ctx, cancel := h.withTimeout(c.Request().Context())
	defer cancel()

	pos, err := h.Service.Position(ctx, account)
	if err != nil {
		return h.poolErr(c, err)
	}
	return c.JSON(http.StatusOK, pos)
}

// Quote prices an operation without executing it.
// Accepts amount (required) and account (optional) query parameters.
func (h *Handlers) Quote(c echo.Context) error {
	amount, err := config.ParseAmount(c.QueryParam("amount"))
	if err != nil {
		return h.err(c, http.StatusBadRequest, err.Error())
	}
	var account solana.PublicKey
	if raw := c.QueryParam("account"); raw != "" {
		if account, err = config.ParseAccount(raw); err != nil {
			return h.err(c, http.StatusBadRequest, err.Error())
		}
	}

	ctx, cancel := h.withTimeout(c.Request().Context())
	defer cancel()

	var receipt liquidity.Receipt
	switch c.Param("operation") {
	case "add", "add-liquidity":
		receipt, err = h.Service.QuoteAddLiquidity(ctx, account, amount)
	case "remove", "remove-liquidity":
		receipt, err = h.Service.QuoteRemoveLiquidity(ctx, account, amount)
	case "sell", "sell-stsol":
		receipt, err = h.Service.QuoteSellStSOL(ctx, account, amount)
	default:
		return h.err(c, http.StatusNotFound, "unknown operation")
	}
	if err != nil {
		return h.poolErr(c, err)
	}
	return c.JSON(http.StatusOK, receipt)
}

// Audit compares the pool record with ledger balances.
func (h *Handlers) Audit(c echo.Context) error {
	ctx, cancel := h.withTimeout(c.Request().Context())
	defer cancel()

	report, err := h.Service.Audit(ctx)
	if err != nil {
		return h.poolErr(c, err)
	}
	code := http.StatusOK
	if !report.OK() {
		code = http.StatusConflict
	}
	return c.JSON(code, report)
}
