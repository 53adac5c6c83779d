// Package catalog maps model names to their per-prediction cost and scorer.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	interfaces "github.com/sheikh-saqib/prediction-billing-service/internal/interfaces"
	"github.com/sheikh-saqib/prediction-billing-service/internal/models"
	"github.com/sheikh-saqib/prediction-billing-service/internal/scoring"
	"github.com/sheikh-saqib/prediction-billing-service/internal/storage"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var ErrUnknownModel = errors.New("catalog: unknown model")

// Catalog is the explicitly owned registry of predictors. Prices live in the
// store and are read on every lookup; loaded scorers are cached.
type Catalog struct {
	store   interfaces.PredictorStore
	log     *zap.Logger
	entries map[string]ModelEntry
	order   []string
	scorers *lru.Cache[string, scoring.Scorer]
	load    func(ModelEntry) (scoring.Scorer, error)

	seedMu sync.Mutex
	seeded bool
}

type Option func(*Catalog)

func WithLogger(log *zap.Logger) Option {
	return func(c *Catalog) { c.log = log }
}

// WithLoader replaces how scorers are built from their manifest entry.
func WithLoader(load func(ModelEntry) (scoring.Scorer, error)) Option {
	return func(c *Catalog) { c.load = load }
}

func New(store interfaces.PredictorStore, manifest Manifest, cacheSize int, opts ...Option) (*Catalog, error) {
	if cacheSize <= 0 {
		cacheSize = 16
	}
	cache, err := lru.New[string, scoring.Scorer](cacheSize)
	if err != nil {
		return nil, err
	}
	c := &Catalog{
		store:   store,
		log:     zap.NewNop(),
		entries: make(map[string]ModelEntry, len(manifest.Models)),
		scorers: cache,
		load: func(s ModelEntry) (scoring.Scorer, error) {
			return scoring.Load(s.Type, s.Path)
		},
	}
	for _, entry := range manifest.Models {
		c.entries[entry.Name] = entry
		c.order = append(c.order, entry.Name)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Cost returns the current per-prediction price of a model.
func (c *Catalog) Cost(ctx context.Context, name string) (decimal.Decimal, error) {
	p, err := c.store.GetPredictor(ctx, name)
	if errors.Is(err, storage.ErrNotFound) {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnknownModel, name)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("catalog: lookup %s: %w", name, err)
	}
	return p.Cost, nil
}

func (c *Catalog) List(ctx context.Context) ([]models.Predictor, error) {
	return c.store.ListPredictors(ctx)
}

// EnsureSeeded inserts the manifest models when the catalog is empty. It is
// safe to call repeatedly and from several processes: a concurrent insert of
// the same name is treated as success.
func (c *Catalog) EnsureSeeded(ctx context.Context) ([]models.Predictor, error) {
	c.seedMu.Lock()
	defer c.seedMu.Unlock()

	if !c.seeded {
		existing, err := c.store.ListPredictors(ctx)
		if err != nil {
			return nil, err
		}
		if len(existing) == 0 {
			for _, name := range c.order {
				entry := c.entries[name]
				cost, err := entry.price()
				if err != nil {
					return nil, err
				}
				err = c.store.CreatePredictor(ctx, models.Predictor{Name: entry.Name, Cost: cost})
				switch {
				case errors.Is(err, storage.ErrAlreadyExists):
					c.log.Debug("predictor already seeded", zap.String("model", entry.Name))
				case err != nil:
					return nil, fmt.Errorf("catalog: seed %s: %w", entry.Name, err)
				default:
					c.log.Info("predictor seeded", zap.String("model", entry.Name), zap.String("cost", cost.String()))
				}
			}
		}
		c.seeded = true
	}
	return c.store.ListPredictors(ctx)
}

// Scorer returns the loaded model for name, loading it on first use.
func (c *Catalog) Scorer(name string) (scoring.Scorer, error) {
	if s, ok := c.scorers.Get(name); ok {
		return s, nil
	}
	entry, ok := c.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModel, name)
	}
	s, err := c.load(entry)
	if err != nil {
		return nil, fmt.Errorf("catalog: load %s: %w", name, err)
	}
	c.scorers.Add(name, s)
	c.log.Info("model loaded", zap.String("model", name), zap.String("type", entry.Type))
	return s, nil
}
