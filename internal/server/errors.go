package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"metapool/internal/liquidity"
)

// ErrorJSON returns an HTTP error handler that always answers with JSON.
func ErrorJSON() echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var he *echo.HTTPError
		if errors.As(err, &he) {
			_ = c.JSON(he.Code, ErrorResponse{
				Error: http.StatusText(he.Code),
				Code:  he.Code,
			})
			return
		}

		_ = c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "internal server error",
			Code:  http.StatusInternalServerError,
		})
	}
}

// statusFor maps a pool failure class to an HTTP status.
func statusFor(kind liquidity.Kind) int {
	switch kind {
	case liquidity.KindPoolNotInitialized:
		return http.StatusNotFound
	case liquidity.KindPoolExists, liquidity.KindConcurrentModification:
		return http.StatusConflict
	case liquidity.KindZeroAmount,
		liquidity.KindInsufficientBalance,
		liquidity.KindInsufficientShares,
		liquidity.KindInsufficientLiquidity,
		liquidity.KindMintedAmountZero,
		liquidity.KindOutputAmountZero,
		liquidity.KindOverflow,
		liquidity.KindInvalidRate,
		liquidity.KindInvalidFee,
		liquidity.KindPoolOwnedAccount:
		return http.StatusUnprocessableEntity
	case liquidity.KindHalted:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func poolError(err error) (int, ErrorResponse) {
	var pe *liquidity.Error
	if !errors.As(err, &pe) {
		return http.StatusInternalServerError, ErrorResponse{Error: "internal server error", Code: http.StatusInternalServerError}
	}
	code := statusFor(pe.Kind)
	resp := ErrorResponse{
		Error:     pe.Error(),
		Code:      code,
		Kind:      pe.Kind.String(),
		Requested: pe.Requested,
		Available: pe.Available,
	}
	if pe.Asset != liquidity.AssetUnknown {
		resp.Asset = pe.Asset.String()
	}
	return code, resp
}
