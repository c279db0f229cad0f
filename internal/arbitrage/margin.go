package arbitrage

import (
	"github.com/shopspring/decimal"
)

type Category string

const (
	CategoryPerfect Category = "perfect"
	CategoryGood    Category = "good"
	CategoryMedium  Category = "medium"
	CategoryBad     Category = "bad"
)

var (
	hundred = decimal.NewFromInt(100)
	ten     = decimal.NewFromInt(10)
	half    = decimal.NewFromFloat(0.5)
)

// ProfitMargin returns the margin in percent of selling at marketUSD what was
// bought for buyJPY, rounded half up to one decimal. A zero buy cost yields 0.
func ProfitMargin(marketUSD float64, buyJPY int64, rate float64) float64 {
	cost := decimal.NewFromInt(buyJPY).Mul(decimal.NewFromFloat(rate))
	if cost.IsZero() {
		return 0
	}

	margin := decimal.NewFromFloat(marketUSD).Sub(cost).Mul(hundred).Div(cost)
	f, _ := roundHalfUp(margin).Float64()
	return f
}

// ConvertJPY converts a yen amount to USD, rounded to cents.
func ConvertJPY(jpy int64, rate float64) float64 {
	f, _ := decimal.NewFromInt(jpy).Mul(decimal.NewFromFloat(rate)).Round(2).Float64()
	return f
}

// roundHalfUp rounds to one decimal with ties toward positive infinity, so
// -12.25 becomes -12.2 and 12.25 becomes 12.3.
func roundHalfUp(d decimal.Decimal) decimal.Decimal {
	return d.Mul(ten).Add(half).Floor().Div(ten)
}

func CategoryFor(margin float64) Category {
	switch {
	case margin >= 80:
		return CategoryPerfect
	case margin >= 50:
		return CategoryGood
	case margin >= 30:
		return CategoryMedium
	default:
		return CategoryBad
	}
}
