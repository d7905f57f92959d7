package services

import (
	"github.com/shopspring/decimal"

	"github.com/tbourn/go-anon-ads-backend/internal/config"
)

// StarsCurrency is the Telegram Stars currency code.
const StarsCurrency = "XTR"

// starsPerMonth is the undiscounted monthly price in Stars.
const starsPerMonth = 50

var (
	rubPerStar = decimal.NewFromInt(2)
	kztPerStar = decimal.NewFromInt(10)
)

type priceTier struct {
	months   int
	stars    int64
	discount int64
}

// Anchor prices; the months between them are interpolated.
var priceTiers = []priceTier{
	{months: 1, stars: 50, discount: 0},
	{months: 3, stars: 130, discount: 17},
	{months: 6, stars: 215, discount: 30},
	{months: 12, stars: 360, discount: 41},
}

// Quote is the Stars price of a subscription length.
type Quote struct {
	Months               int    `json:"months"`
	Stars                int64  `json:"stars"`
	Currency             string `json:"currency"`
	Discount             int64  `json:"discount"`
	RubEquivalent        int64  `json:"rub_equivalent"`
	KztEquivalent        int64  `json:"kzt_equivalent"`
	PriceWithoutDiscount int64  `json:"price_without_discount"`
}

// CalculatePrice prices months (1..12) of PRO in Stars. Anchor lengths use
// their fixed price, two months take 8% off, and the others interpolate
// price and discount linearly between the neighbouring anchors, rounding
// down.
func CalculatePrice(months int) (Quote, error) {
	if months < 1 || months > 12 {
		return Quote{}, ErrInvalidMonths
	}

	full := decimal.NewFromInt(int64(starsPerMonth * months))
	var stars, discount decimal.Decimal
	switch {
	case months == 2:
		discount = decimal.NewFromInt(8)
		stars = full.Mul(decimal.NewFromInt(100).Sub(discount)).Div(decimal.NewFromInt(100)).Floor()
	default:
		stars, discount = interpolate(months)
	}

	return Quote{
		Months:               months,
		Stars:                stars.IntPart(),
		Currency:             StarsCurrency,
		Discount:             discount.IntPart(),
		RubEquivalent:        stars.Mul(rubPerStar).IntPart(),
		KztEquivalent:        stars.Mul(kztPerStar).IntPart(),
		PriceWithoutDiscount: full.IntPart(),
	}, nil
}

func interpolate(months int) (stars, discount decimal.Decimal) {
	for i, hi := range priceTiers {
		if hi.months == months {
			return decimal.NewFromInt(hi.stars), decimal.NewFromInt(hi.discount)
		}
		if hi.months < months || i == 0 {
			continue
		}
		lo := priceTiers[i-1]
		num, den := int64(months-lo.months), int64(hi.months-lo.months)
		return lerp(lo.stars, hi.stars, num, den), lerp(lo.discount, hi.discount, num, den)
	}
	return decimal.NewFromInt(int64(starsPerMonth * months)), decimal.Zero
}

// lerp returns floor(a + (b-a)*num/den).
func lerp(a, b, num, den int64) decimal.Decimal {
	step := decimal.NewFromInt((b - a) * num).Div(decimal.NewFromInt(den))
	return decimal.NewFromInt(a).Add(step).Floor()
}

// TierInfo describes a tier for the pricing screen.
type TierInfo struct {
	Name     string   `json:"name"`
	Features []string `json:"features"`
}

// Pricing is the get-pricing payload.
type Pricing struct {
	Country  string   `json:"country"`
	Price    string   `json:"price"`
	Amount   string   `json:"amount"`
	Currency string   `json:"currency"`
	Symbol   string   `json:"symbol"`
	Period   string   `json:"period"`
	Free     TierInfo `json:"free"`
	Pro      TierInfo `json:"pro"`
}

// priceLabel renders a price the way the client shows it: "499 ₸", "2 $".
func priceLabel(p config.Price) string {
	sym := p.Symbol
	if sym == "" {
		sym = p.Currency
	}
	return p.Amount.String() + " " + sym
}
