// Package api exposes the billing service over HTTP.
package api

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sheikh-saqib/prediction-billing-service/internal/catalog"
	interfaces "github.com/sheikh-saqib/prediction-billing-service/internal/interfaces"
	"github.com/sheikh-saqib/prediction-billing-service/internal/ledger"
	"github.com/sheikh-saqib/prediction-billing-service/internal/settlement"
	"go.uber.org/zap"
)

type Deps struct {
	Coordinator *settlement.Coordinator
	Catalog     *catalog.Catalog
	Ledger      *ledger.Ledger
	Store       interfaces.Store
	JWTSecret   []byte
	Log         *zap.Logger
}

type handler struct {
	coordinator *settlement.Coordinator
	catalog     *catalog.Catalog
	ledger      *ledger.Ledger
	store       interfaces.Store
	log         *zap.Logger
}

// NewServer wires the routes onto a fresh echo instance.
func NewServer(d Deps) *echo.Echo {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	h := &handler{
		coordinator: d.Coordinator,
		catalog:     d.Catalog,
		ledger:      d.Ledger,
		store:       d.Store,
		log:         log,
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = newRequestValidator()
	e.HTTPErrorHandler = errorHandler(log)
	e.Use(RequestLogger(log))
	e.Use(middleware.Recover())

	e.GET("/health", h.health)
	e.GET("/ready", h.ready)

	auth := JWTMiddleware(d.JWTSecret)
	admin := RequireRoles("admin")

	p := e.Group("/prediction")
	p.GET("/", h.seedPredictors)
	p.GET("/models", h.listPredictors)
	p.POST("/make", h.makePrediction, auth)
	p.GET("/history", h.history, auth)
	p.GET("/reports", h.reports, auth, admin)

	b := e.Group("/balance", auth)
	b.GET("", h.balance)
	b.POST("/deposit", h.deposit, admin)

	return e
}
