package model

import "github.com/shopspring/decimal"

// FeeSettings is the part of app settings the booking core reads
type FeeSettings struct {
	CancelFee24h decimal.Decimal `json:"cancel_fee_24h"` // процент при отмене менее чем за 24 часа
	CancelFee48h decimal.Decimal `json:"cancel_fee_48h"` // процент при отмене за 24-48 часов
	DefaultPrice decimal.Decimal `json:"default_price"`
}

// DefaultFeeSettings are used when the settings row is missing or unreadable
func DefaultFeeSettings() FeeSettings {
	return FeeSettings{
		CancelFee24h: decimal.NewFromInt(80),
		CancelFee48h: decimal.NewFromInt(50),
		DefaultPrice: decimal.NewFromInt(25),
	}
}
