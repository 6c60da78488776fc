package engine

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"
)

type FulfillmentType string

const (
	FulfillmentPrime    FulfillmentType = "PRIME"
	FulfillmentExpress  FulfillmentType = "EXPRESS"
	FulfillmentStandard FulfillmentType = "STANDARD"
)

var fulfillmentScores = map[FulfillmentType]float64{
	FulfillmentPrime:    1.0,
	FulfillmentExpress:  0.8,
	FulfillmentStandard: 0.6,
}

const (
	otherFulfillmentScore = 0.4
	// discountForFullScore is the discount percentage that earns a price
	// score of 1.
	discountForFullScore = 50
	scoreEpsilon         = 1e-9
)

// Offer is one seller's priced offer for a product on a site. SellerRating
// is already normalized to [0,1]; a nil StockScore counts as 1.
type Offer struct {
	SellerID     string          `json:"sellerId"`
	MRP          decimal.Decimal `json:"mrp"`
	SellingPrice decimal.Decimal `json:"sellingPrice"`
	Fulfillment  FulfillmentType `json:"fulfillment"`
	SellerRating float64         `json:"sellerRating"`
	StockScore   *float64        `json:"stockScore,omitempty"`
	SellerActive bool            `json:"sellerActive"`
	SiteActive   bool            `json:"siteActive"`
	PriceActive  bool            `json:"priceActive"`
}

type ScoreWeights struct {
	Price        float64 `json:"price" yaml:"price"`
	SellerRating float64 `json:"sellerRating" yaml:"sellerRating"`
	Fulfillment  float64 `json:"fulfillment" yaml:"fulfillment"`
	Stock        float64 `json:"stock" yaml:"stock"`
}

func DefaultScoreWeights() ScoreWeights {
	return ScoreWeights{Price: 0.4, SellerRating: 0.3, Fulfillment: 0.2, Stock: 0.1}
}

type BuyboxScore struct {
	Offer            Offer   `json:"offer"`
	Score            float64 `json:"score"`
	PriceScore       float64 `json:"priceScore"`
	RatingScore      float64 `json:"ratingScore"`
	FulfillmentScore float64 `json:"fulfillmentScore"`
	StockScore       float64 `json:"stockScore"`
}

// ScoreOffer never fails: bad inputs such as a non-positive MRP just score 0
// on the affected component.
func ScoreOffer(o Offer, w ScoreWeights) BuyboxScore {
	s := BuyboxScore{
		Offer:            o,
		PriceScore:       priceScore(o.MRP, o.SellingPrice),
		RatingScore:      clamp01(o.SellerRating),
		FulfillmentScore: fulfillmentScore(o.Fulfillment),
		StockScore:       1.0,
	}
	if o.StockScore != nil {
		s.StockScore = clamp01(*o.StockScore)
	}
	s.Score = w.Price*s.PriceScore +
		w.SellerRating*s.RatingScore +
		w.Fulfillment*s.FulfillmentScore +
		w.Stock*s.StockScore
	return s
}

func priceScore(mrp, price decimal.Decimal) float64 {
	if !mrp.IsPositive() {
		return 0
	}
	pct := mrp.Sub(price).Div(mrp).Mul(hundred)
	return clamp01(pct.Div(decimal.NewFromInt(discountForFullScore)).InexactFloat64())
}

func fulfillmentScore(f FulfillmentType) float64 {
	if s, ok := fulfillmentScores[f]; ok {
		return s
	}
	return otherFulfillmentScore
}

func clamp01(f float64) float64 {
	if math.IsNaN(f) || f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// RankOffers scores every offer and orders them best first: highest score,
// then lowest selling price, then lowest seller id.
func RankOffers(offers []Offer, w ScoreWeights) []BuyboxScore {
	scores := make([]BuyboxScore, len(offers))
	for i, o := range offers {
		scores[i] = ScoreOffer(o, w)
	}
	sort.SliceStable(scores, func(i, j int) bool {
		a, b := scores[i], scores[j]
		if math.Abs(a.Score-b.Score) > scoreEpsilon {
			return a.Score > b.Score
		}
		if c := a.Offer.SellingPrice.Cmp(b.Offer.SellingPrice); c != 0 {
			return c < 0
		}
		return a.Offer.SellerID < b.Offer.SellerID
	})
	return scores
}

// SelectBuyboxWinner returns the best offer; ok is false for no offers.
func SelectBuyboxWinner(offers []Offer, w ScoreWeights) (Offer, bool) {
	if len(offers) == 0 {
		return Offer{}, false
	}
	return RankOffers(offers, w)[0].Offer, true
}

// EligibleOffers keeps offers whose seller, site and price are active and
// whose selling price is positive.
func EligibleOffers(offers []Offer) []Offer {
	out := make([]Offer, 0, len(offers))
	for _, o := range offers {
		if o.SellerActive && o.SiteActive && o.PriceActive && o.SellingPrice.IsPositive() {
			out = append(out, o)
		}
	}
	return out
}
