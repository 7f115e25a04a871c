package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"boiler-telemetry/internal/models"

	"go.uber.org/zap"
)

// ReadingRepository 传感器读数 Repository（leituras_sensores）
type ReadingRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewReadingRepository 创建读数 Repository
func NewReadingRepository(db *sql.DB, logger *zap.Logger) *ReadingRepository {
	return &ReadingRepository{
		db:     db,
		logger: logger,
	}
}

// Insert 写入一条读数
// 重复投递（同一 device_id + reading_time）静默忽略，重试是幂等的
func (r *ReadingRepository) Insert(ctx context.Context, reading models.CanonicalReading) error {
	query := `
		INSERT INTO leituras_sensores (
			device_id, reading_time, temp_ida, temp_retorno,
			"deltaT", "vazao_L_s", "potencia_kW", "energia_kWh"
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (device_id, reading_time) DO NOTHING
	`

	_, err := r.db.ExecContext(ctx, query,
		reading.DeviceID,
		reading.ObservedAt,
		reading.TempSupply,
		reading.TempReturn,
		reading.DeltaT,
		reading.FlowRateLS,
		reading.PowerKW,
		reading.EnergyKWh,
	)
	if err != nil {
		return fmt.Errorf("failed to insert reading: %w", err)
	}
	return nil
}

// ListRecent 查询设备最近的 limit 条读数（按时间倒序）
func (r *ReadingRepository) ListRecent(ctx context.Context, deviceID string, limit int) ([]models.CanonicalReading, error) {
	query := `
		SELECT device_id, reading_time, temp_ida, temp_retorno,
		       "deltaT", "vazao_L_s", "potencia_kW", "energia_kWh"
		FROM leituras_sensores
		WHERE device_id = $1
		ORDER BY reading_time DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	defer rows.Close()

	readings := make([]models.CanonicalReading, 0, limit)
	for rows.Next() {
		var (
			reading             models.CanonicalReading
			supply, ret, delta  sql.NullFloat64
			flow, power, energy sql.NullFloat64
		)
		if err := rows.Scan(
			&reading.DeviceID,
			&reading.ObservedAt,
			&supply,
			&ret,
			&delta,
			&flow,
			&power,
			&energy,
		); err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		reading.ObservedAt = reading.ObservedAt.UTC()
		reading.TempSupply = supply.Float64
		reading.TempReturn = ret.Float64
		reading.DeltaT = delta.Float64
		reading.FlowRateLS = flow.Float64
		reading.PowerKW = power.Float64
		reading.EnergyKWh = energy.Float64
		readings = append(readings, reading)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate readings: %w", err)
	}

	return readings, nil
}

// PowerTotal 时间段内功率读数汇总
type PowerTotal struct {
	PowerSum float64
	Samples  int
}

// SumPower 汇总 [from, to) 区间内的功率读数
func (r *ReadingRepository) SumPower(ctx context.Context, deviceID string, from, to time.Time) (PowerTotal, error) {
	query := `
		SELECT COALESCE(SUM("potencia_kW"), 0), COUNT(*)
		FROM leituras_sensores
		WHERE device_id = $1
		  AND reading_time >= $2
		  AND reading_time < $3
	`

	var total PowerTotal
	if err := r.db.QueryRowContext(ctx, query, deviceID, from, to).Scan(&total.PowerSum, &total.Samples); err != nil {
		return PowerTotal{}, fmt.Errorf("failed to sum power: %w", err)
	}
	return total, nil
}

// DailyPower 按天（loc 时区的自然日）汇总 [from, to) 区间内的功率读数
func (r *ReadingRepository) DailyPower(ctx context.Context, deviceID string, from, to time.Time, loc *time.Location) ([]models.DailyPower, error) {
	if loc == nil {
		loc = time.UTC
	}

	query := `
		SELECT to_char(reading_time AT TIME ZONE $4, 'YYYY-MM-DD') AS day,
		       COALESCE(SUM("potencia_kW"), 0),
		       COUNT(*)
		FROM leituras_sensores
		WHERE device_id = $1
		  AND reading_time >= $2
		  AND reading_time < $3
		GROUP BY day
		ORDER BY day
	`

	rows, err := r.db.QueryContext(ctx, query, deviceID, from, to, loc.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query daily power: %w", err)
	}
	defer rows.Close()

	var days []models.DailyPower
	for rows.Next() {
		var (
			day string
			dp  models.DailyPower
		)
		if err := rows.Scan(&day, &dp.PowerSum, &dp.Samples); err != nil {
			return nil, fmt.Errorf("failed to scan daily power: %w", err)
		}
		parsed, err := time.ParseInLocation("2006-01-02", day, loc)
		if err != nil {
			r.logger.Warn("Skipping daily power row with invalid day",
				zap.String("device_id", deviceID),
				zap.String("day", day),
				zap.Error(err),
			)
			continue
		}
		dp.Day = parsed
		days = append(days, dp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate daily power: %w", err)
	}

	return days, nil
}
