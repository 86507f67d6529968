package service

import (
	"time"

	"github.com/Freeeeeet/trainer_booking/internal/model"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// FeeTier процент штрафа, который админ может выбрать вручную при отмене
type FeeTier int

const (
	FeeTierNone FeeTier = 0
	FeeTierHalf FeeTier = 50
	FeeTierMost FeeTier = 80
	FeeTierFull FeeTier = 100
)

// ParseFeeTier проверяет, что процент входит в допустимый набор
func ParseFeeTier(pct int) (FeeTier, error) {
	switch tier := FeeTier(pct); tier {
	case FeeTierNone, FeeTierHalf, FeeTierMost, FeeTierFull:
		return tier, nil
	}
	return 0, ErrInvalidFeeTier
}

// Percentage возвращает процент тарифа
func (t FeeTier) Percentage() decimal.Decimal {
	return decimal.NewFromInt(int64(t))
}

// FeePercentage процент штрафа при отмене за hoursUntilStart часов до начала:
// больше 48 - 0, от 24 до 48 включительно - fee48h, меньше 24 - fee24h.
// Неявка сюда не относится, она всегда 100%.
func FeePercentage(hoursUntilStart float64, settings model.FeeSettings) decimal.Decimal {
	switch {
	case hoursUntilStart > 48:
		return decimal.Zero
	case hoursUntilStart >= 24:
		return settings.CancelFee48h
	default:
		return settings.CancelFee24h
	}
}

// HoursUntil часы от now до start, отрицательные если тренировка уже началась
func HoursUntil(start, now time.Time) float64 {
	return start.Sub(now).Hours()
}

// CalculateFee сумма штрафа: price * pct / 100, округление до центов
func CalculateFee(price, pct decimal.Decimal) decimal.Decimal {
	return price.Mul(pct).Div(hundred).Round(2)
}
