package api

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/sheikh-saqib/prediction-billing-service/internal/catalog"
	"github.com/sheikh-saqib/prediction-billing-service/internal/ledger"
	"github.com/sheikh-saqib/prediction-billing-service/internal/settlement"
	"github.com/sheikh-saqib/prediction-billing-service/internal/storage"
	"go.uber.org/zap"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

// classify maps a domain error onto a status code and error kind.
func classify(err error) (int, string, string) {
	var (
		validationErrs validator.ValidationErrors
		predictionErr  *settlement.PredictionFailedError
		persistenceErr *settlement.PersistenceError
		httpErr        *echo.HTTPError
	)

	switch {
	case errors.Is(err, errUnauthorized):
		return http.StatusUnauthorized, "Unauthorized", err.Error()
	case errors.Is(err, errForbidden):
		return http.StatusForbidden, "Forbidden", err.Error()
	case errors.As(err, &validationErrs):
		return http.StatusUnprocessableEntity, "ValidationError", validationErrs.Error()
	case errors.Is(err, settlement.ErrEmptyBatch), errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, storage.ErrInvalidAmount):
		return http.StatusBadRequest, "ValidationError", err.Error()
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return http.StatusPaymentRequired, "InsufficientFunds", err.Error()
	case errors.Is(err, catalog.ErrUnknownModel):
		return http.StatusNotFound, "UnknownModel", err.Error()
	case errors.As(err, &predictionErr):
		return http.StatusBadGateway, "PredictionFailed", predictionErr.Cause.Error()
	case errors.As(err, &persistenceErr):
		return http.StatusInternalServerError, "PersistenceError", persistenceErr.Error()
	case errors.As(err, &httpErr):
		detail := http.StatusText(httpErr.Code)
		if msg, ok := httpErr.Message.(string); ok {
			detail = msg
		}
		kind := "HTTPError"
		if httpErr.Code == http.StatusBadRequest {
			kind = "ValidationError"
		}
		return httpErr.Code, kind, detail
	default:
		return http.StatusInternalServerError, "InternalError", "internal error"
	}
}

func errorHandler(log *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status, kind, detail := classify(err)
		if status == http.StatusInternalServerError {
			log.Error("request error", zap.String("path", c.Path()), zap.Error(err))
		}
		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, ErrorResponse{Error: kind, Detail: detail})
		}
		if err != nil {
			log.Warn("error response not written", zap.Error(err))
		}
	}
}
