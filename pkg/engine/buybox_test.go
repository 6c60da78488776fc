package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func offer(seller, mrp, price string, f FulfillmentType, rating float64) Offer {
	return Offer{
		SellerID:     seller,
		MRP:          dec(mrp),
		SellingPrice: dec(price),
		Fulfillment:  f,
		SellerRating: rating,
		SellerActive: true,
		SiteActive:   true,
		PriceActive:  true,
	}
}

func TestSelectBuyboxWinner_ExactScores(t *testing.T) {
	w := ScoreWeights{Price: 0.4, SellerRating: 0.3, Fulfillment: 0.2, Stock: 0.1}
	a := offer("A", "100", "90", FulfillmentPrime, 0.9)
	b := offer("B", "100", "95", FulfillmentStandard, 0.95)

	sa := ScoreOffer(a, w)
	assert.InDelta(t, 0.2, sa.PriceScore, 1e-9)
	assert.InDelta(t, 0.65, sa.Score, 1e-9)

	sb := ScoreOffer(b, w)
	assert.InDelta(t, 0.1, sb.PriceScore, 1e-9)
	assert.InDelta(t, 0.545, sb.Score, 1e-9)

	for i := 0; i < 3; i++ {
		winner, ok := SelectBuyboxWinner([]Offer{b, a}, w)
		require.True(t, ok)
		assert.Equal(t, "A", winner.SellerID)
	}
}

func TestSelectBuyboxWinner_Empty(t *testing.T) {
	_, ok := SelectBuyboxWinner(nil, DefaultScoreWeights())
	assert.False(t, ok)
	assert.Empty(t, RankOffers(nil, DefaultScoreWeights()))
}

func TestSelectBuyboxWinner_TieBreaks(t *testing.T) {
	w := ScoreWeights{SellerRating: 1}

	t.Run("lowest price", func(t *testing.T) {
		winner, ok := SelectBuyboxWinner([]Offer{
			offer("s-1", "100", "99", FulfillmentPrime, 0.8),
			offer("s-2", "100", "97", FulfillmentPrime, 0.8),
		}, w)
		require.True(t, ok)
		assert.Equal(t, "s-2", winner.SellerID)
	})

	t.Run("lowest seller id", func(t *testing.T) {
		winner, ok := SelectBuyboxWinner([]Offer{
			offer("s-9", "100", "97", FulfillmentPrime, 0.8),
			offer("s-3", "100", "97", FulfillmentExpress, 0.8),
		}, w)
		require.True(t, ok)
		assert.Equal(t, "s-3", winner.SellerID)
	})
}

func TestScoreOffer_Components(t *testing.T) {
	w := DefaultScoreWeights()
	half := 0.5

	tests := []struct {
		name string
		o    Offer
		want BuyboxScore
	}{
		{
			name: "non positive mrp scores zero price",
			o:    offer("s", "0", "10", FulfillmentExpress, 0.5),
			want: BuyboxScore{PriceScore: 0, RatingScore: 0.5, FulfillmentScore: 0.8, StockScore: 1},
		},
		{
			name: "price above mrp clamps to zero",
			o:    offer("s", "100", "120", FulfillmentStandard, 0.5),
			want: BuyboxScore{PriceScore: 0, RatingScore: 0.5, FulfillmentScore: 0.6, StockScore: 1},
		},
		{
			name: "deep discount clamps to one",
			o:    offer("s", "100", "30", "DROPSHIP", 1.5),
			want: BuyboxScore{PriceScore: 1, RatingScore: 1, FulfillmentScore: 0.4, StockScore: 1},
		},
		{
			name: "supplied stock score",
			o: func() Offer {
				o := offer("s", "100", "75", FulfillmentPrime, 0.7)
				o.StockScore = &half
				return o
			}(),
			want: BuyboxScore{PriceScore: 0.5, RatingScore: 0.7, FulfillmentScore: 1, StockScore: 0.5},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ScoreOffer(tt.o, w)
			assert.InDelta(t, tt.want.PriceScore, got.PriceScore, 1e-9)
			assert.InDelta(t, tt.want.RatingScore, got.RatingScore, 1e-9)
			assert.InDelta(t, tt.want.FulfillmentScore, got.FulfillmentScore, 1e-9)
			assert.InDelta(t, tt.want.StockScore, got.StockScore, 1e-9)
			assert.GreaterOrEqual(t, got.Score, 0.0)
		})
	}
}

func TestEligibleOffers(t *testing.T) {
	inactiveSeller := offer("s-2", "100", "90", FulfillmentPrime, 1)
	inactiveSeller.SellerActive = false
	inactiveSite := offer("s-3", "100", "90", FulfillmentPrime, 1)
	inactiveSite.SiteActive = false
	inactivePrice := offer("s-4", "100", "90", FulfillmentPrime, 1)
	inactivePrice.PriceActive = false

	got := EligibleOffers([]Offer{
		offer("s-1", "100", "90", FulfillmentPrime, 1),
		inactiveSeller,
		inactiveSite,
		inactivePrice,
		offer("s-5", "100", "0", FulfillmentPrime, 1),
	})
	require.Len(t, got, 1)
	assert.Equal(t, "s-1", got[0].SellerID)
}
