package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/trainer_booking/internal/model"
	"github.com/Freeeeeet/trainer_booking/internal/repository/base"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SettingsRepository struct {
	*base.Repository
}

func NewSettingsRepository(pool *pgxpool.Pool) *SettingsRepository {
	return &SettingsRepository{Repository: base.NewRepository(pool)}
}

// FeeSettings читает проценты штрафов и цену тренировки. Нет строки - (nil, nil).
func (r *SettingsRepository) FeeSettings(ctx context.Context) (*model.FeeSettings, error) {
	query := `
		SELECT cancel_fee_24h, cancel_fee_48h, default_price
		FROM app_settings
		WHERE id = 1
	`

	var settings model.FeeSettings
	err := r.QueryRow(ctx, query).Scan(
		&settings.CancelFee24h,
		&settings.CancelFee48h,
		&settings.DefaultPrice,
	)
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get fee settings: %w", err)
	}

	return &settings, nil
}
