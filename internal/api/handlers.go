package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sheikh-saqib/prediction-billing-service/internal/models"
	"github.com/shopspring/decimal"
)

type makePredictionRequest struct {
	ModelName string            `json:"model_name" validate:"required"`
	Features  []models.Features `json:"features" validate:"dive"`
}

type depositRequest struct {
	UserID string          `json:"user_id" validate:"required"`
	Amount decimal.Decimal `json:"amount"`
}

type balanceResponse struct {
	UserID  string          `json:"user_id"`
	Balance decimal.Decimal `json:"balance"`
}

func (h *handler) health(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}

func (h *handler) ready(c echo.Context) error {
	if err := h.store.Ping(c.Request().Context()); err != nil {
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "Unavailable", Detail: err.Error()})
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "ready"})
}

func (h *handler) makePrediction(c echo.Context) error {
	var req makePredictionRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	info, err := h.coordinator.Process(c.Request().Context(), currentUser(c), req.ModelName, req.Features)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, info)
}

func (h *handler) history(c echo.Context) error {
	history, err := h.store.GetHistory(c.Request().Context(), currentUser(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, history)
}

func (h *handler) seedPredictors(c echo.Context) error {
	predictors, err := h.catalog.EnsureSeeded(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, predictors)
}

func (h *handler) listPredictors(c echo.Context) error {
	predictors, err := h.catalog.List(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, predictors)
}

func (h *handler) reports(c echo.Context) error {
	reports, err := h.store.Reports(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, reports)
}

func (h *handler) balance(c echo.Context) error {
	userID := currentUser(c)
	balance, err := h.ledger.Balance(c.Request().Context(), userID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, balanceResponse{UserID: userID, Balance: balance})
}

func (h *handler) deposit(c echo.Context) error {
	var req depositRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	tx, err := h.ledger.Deposit(c.Request().Context(), req.UserID, req.Amount)
	if err != nil {
		return err
	}
	balance, err := h.ledger.Balance(c.Request().Context(), req.UserID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"transaction_id": tx.ID,
		"user_id":        req.UserID,
		"amount":         tx.Amount,
		"balance":        balance,
		"created_at":     tx.CreatedAt.Format(time.RFC3339),
	})
}
