package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"boiler-telemetry/internal/models"

	"go.uber.org/zap"
)

// ErrCondominiumNotFound 小区不存在或没有地址
var ErrCondominiumNotFound = errors.New("condominium not found")

// WeatherRepository 环境气象 Repository（condominios + dados_meteorologicos）
type WeatherRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewWeatherRepository 创建气象 Repository
func NewWeatherRepository(db *sql.DB, logger *zap.Logger) *WeatherRepository {
	return &WeatherRepository{
		db:     db,
		logger: logger,
	}
}

// CondominiumAddress 查询小区地址
func (r *WeatherRepository) CondominiumAddress(ctx context.Context, condominiumID string) (string, error) {
	var address sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT endereco FROM condominios WHERE id = $1`,
		condominiumID,
	).Scan(&address)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && address.String == "") {
		return "", ErrCondominiumNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to query condominium address: %w", err)
	}
	return address.String, nil
}

// InsertSample 写入一条气象样本
func (r *WeatherRepository) InsertSample(ctx context.Context, s models.AmbientSample) error {
	query := `
		INSERT INTO dados_meteorologicos (
			condominio_id, reading_time, temperatura_ambiente,
			umidade, pressao, velocidade_vento, descricao
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(ctx, query,
		s.CondominiumID,
		s.ObservedAt,
		s.Temperature,
		s.Humidity,
		s.Pressure,
		s.WindSpeed,
		s.Description,
	)
	if err != nil {
		return fmt.Errorf("failed to insert ambient sample: %w", err)
	}
	return nil
}

// ListRecent 查询小区最近的 limit 条气象样本（按时间倒序）
func (r *WeatherRepository) ListRecent(ctx context.Context, condominiumID string, limit int) ([]models.AmbientSample, error) {
	query := `
		SELECT condominio_id, reading_time, temperatura_ambiente,
		       umidade, pressao, velocidade_vento, descricao
		FROM dados_meteorologicos
		WHERE condominio_id = $1
		ORDER BY reading_time DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, condominiumID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query ambient samples: %w", err)
	}
	defer rows.Close()

	var samples []models.AmbientSample
	for rows.Next() {
		var (
			s                      models.AmbientSample
			temp, hum, press, wind sql.NullFloat64
			description            sql.NullString
		)
		if err := rows.Scan(&s.CondominiumID, &s.ObservedAt, &temp, &hum, &press, &wind, &description); err != nil {
			return nil, fmt.Errorf("failed to scan ambient sample: %w", err)
		}
		s.Temperature = temp.Float64
		s.Humidity = hum.Float64
		s.Pressure = press.Float64
		s.WindSpeed = wind.Float64
		s.Description = description.String
		samples = append(samples, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ambient samples: %w", err)
	}

	return samples, nil
}
