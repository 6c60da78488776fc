package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/Victor-armando18/service-pricing/internal/domain"
	"github.com/Victor-armando18/service-pricing/internal/interfaces"
	"github.com/Victor-armando18/service-pricing/pkg/engine"
	"github.com/rs/zerolog"
)

type BuyboxService struct {
	weights engine.ScoreWeights
	sink    interfaces.ResultSink
	log     zerolog.Logger
}

func NewBuyboxService(weights engine.ScoreWeights, sink interfaces.ResultSink, logger zerolog.Logger) *BuyboxService {
	return &BuyboxService{weights: weights, sink: sink, log: logger}
}

// SelectWinner drops ineligible offers, ranks the rest and publishes the
// winner. Request weights override the configured ones.
func (s *BuyboxService) SelectWinner(ctx context.Context, req domain.BuyboxRequest) (*domain.BuyboxOutcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.ProductID) == "" {
		return nil, fmt.Errorf("%w: productId is required", domain.ErrInvalidRequest)
	}
	weights := s.weights
	if req.Weights != nil {
		weights = *req.Weights
	}
	if weights.Price < 0 || weights.SellerRating < 0 || weights.Fulfillment < 0 || weights.Stock < 0 {
		return nil, fmt.Errorf("%w: weights must not be negative", domain.ErrInvalidRequest)
	}

	eligible := engine.EligibleOffers(req.Offers)
	ranking := engine.RankOffers(eligible, weights)
	if len(ranking) == 0 {
		return nil, fmt.Errorf("%w: %d offers for product %s", domain.ErrNoEligibleOffers, len(req.Offers), req.ProductID)
	}
	best := ranking[0]

	event := domain.BuyboxEvent{
		ProductID:      req.ProductID,
		SiteID:         req.SiteID,
		WinnerSellerID: best.Offer.SellerID,
		WinnerPrice:    best.Offer.SellingPrice,
		Score:          best.Score,
		Candidates:     len(eligible),
	}
	if err := s.sink.PublishBuybox(ctx, event); err != nil {
		s.log.Error().Err(err).Str("productId", req.ProductID).Msg("failed to publish buybox winner")
	}

	return &domain.BuyboxOutcome{
		ProductID: req.ProductID,
		Winner:    best.Offer,
		Ranking:   ranking,
		Eligible:  len(eligible),
	}, nil
}
