package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"boiler-telemetry/internal/models"

	"go.uber.org/zap"
)

// ErrThresholdNotFound 设备与小区都没有阈值配置
var ErrThresholdNotFound = errors.New("threshold config not found")

// ThresholdRepository 报警阈值 Repository（configuracao_sistema）
type ThresholdRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewThresholdRepository 创建阈值 Repository
func NewThresholdRepository(db *sql.DB, logger *zap.Logger) *ThresholdRepository {
	return &ThresholdRepository{
		db:     db,
		logger: logger,
	}
}

// Get 读取设备阈值；设备没有专属配置时回退到小区通用配置（device_id IS NULL）
// 列为 NULL 时使用默认值
func (r *ThresholdRepository) Get(ctx context.Context, condominiumID, deviceID string) (*models.ThresholdConfig, error) {
	query := `
		SELECT condominio_id, device_id,
		       limite_consumo_gas, limite_custo, limite_variacao_temperatura,
		       updated_at
		FROM configuracao_sistema
		WHERE condominio_id = $1
		  AND (device_id = $2 OR device_id IS NULL)
		ORDER BY device_id NULLS LAST
		LIMIT 1
	`

	var (
		cfg                 models.ThresholdConfig
		rowDeviceID         sql.NullString
		gasLimit, costLimit sql.NullFloat64
		tempThreshold       sql.NullFloat64
		updatedAt           sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, condominiumID, deviceID).Scan(
		&cfg.CondominiumID,
		&rowDeviceID,
		&gasLimit,
		&costLimit,
		&tempThreshold,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrThresholdNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query threshold config: %w", err)
	}

	defaults := models.DefaultThresholds(condominiumID, deviceID)
	cfg.DeviceID = rowDeviceID.String
	cfg.GasLimitM3 = nullOr(gasLimit, defaults.GasLimitM3)
	cfg.CostLimit = nullOr(costLimit, defaults.CostLimit)
	cfg.TemperatureVariationThreshold = nullOr(tempThreshold, defaults.TemperatureVariationThreshold)
	if updatedAt.Valid {
		cfg.UpdatedAt = updatedAt.Time
	}

	return &cfg, nil
}

// Upsert 按 (condominio_id, device_id) 创建或更新阈值
// DeviceID 为空时写入小区通用配置
func (r *ThresholdRepository) Upsert(ctx context.Context, cfg models.ThresholdConfig) error {
	query := `
		INSERT INTO configuracao_sistema (
			condominio_id, device_id,
			limite_consumo_gas, limite_custo, limite_variacao_temperatura,
			updated_at
		) VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (condominio_id, device_id) DO UPDATE SET
			limite_consumo_gas = EXCLUDED.limite_consumo_gas,
			limite_custo = EXCLUDED.limite_custo,
			limite_variacao_temperatura = EXCLUDED.limite_variacao_temperatura,
			updated_at = NOW()
	`

	var deviceID sql.NullString
	if cfg.DeviceID != "" {
		deviceID = sql.NullString{String: cfg.DeviceID, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query,
		cfg.CondominiumID,
		deviceID,
		cfg.GasLimitM3,
		cfg.CostLimit,
		cfg.TemperatureVariationThreshold,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert threshold config: %w", err)
	}

	r.logger.Info("Threshold config saved",
		zap.String("condominium_id", cfg.CondominiumID),
		zap.String("device_id", cfg.DeviceID),
		zap.Float64("gas_limit_m3", cfg.GasLimitM3),
		zap.Float64("cost_limit", cfg.CostLimit),
	)
	return nil
}

func nullOr(v sql.NullFloat64, def float64) float64 {
	if !v.Valid {
		return def
	}
	return v.Float64
}
