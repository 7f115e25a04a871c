package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"boiler-telemetry/internal/models"

	"go.uber.org/zap"
)

// ErrDeviceNotFound 设备不存在
var ErrDeviceNotFound = errors.New("device not found")

// DeviceRepository 设备 Repository（dispositivos）
type DeviceRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDeviceRepository 创建设备 Repository
func NewDeviceRepository(db *sql.DB, logger *zap.Logger) *DeviceRepository {
	return &DeviceRepository{
		db:     db,
		logger: logger,
	}
}

const deviceColumns = `
	d.device_id, COALESCE(d.unidade, ''), COALESCE(d.localizacao, ''),
	d.condominio_id, COALESCE(c.nome, '')
`

// Get 查询单个设备及其所属小区
func (r *DeviceRepository) Get(ctx context.Context, deviceID string) (*models.Device, error) {
	query := `SELECT ` + deviceColumns + `
		FROM dispositivos d
		LEFT JOIN condominios c ON c.id = d.condominio_id
		WHERE d.device_id = $1
	`

	var dev models.Device
	err := r.db.QueryRowContext(ctx, query, deviceID).Scan(
		&dev.DeviceID, &dev.Unit, &dev.Location, &dev.CondominiumID, &dev.CondominiumName,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDeviceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query device: %w", err)
	}
	return &dev, nil
}

// ListByCondominium 列出小区下的设备；condominiumID 为空时列出全部
func (r *DeviceRepository) ListByCondominium(ctx context.Context, condominiumID string) ([]models.Device, error) {
	query := `SELECT ` + deviceColumns + `
		FROM dispositivos d
		LEFT JOIN condominios c ON c.id = d.condominio_id
		WHERE ($1::text = '' OR d.condominio_id = $1::text)
		ORDER BY d.device_id
	`

	rows, err := r.db.QueryContext(ctx, query, condominiumID)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	defer rows.Close()

	devices := []models.Device{}
	for rows.Next() {
		var dev models.Device
		if err := rows.Scan(&dev.DeviceID, &dev.Unit, &dev.Location, &dev.CondominiumID, &dev.CondominiumName); err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, dev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate devices: %w", err)
	}
	return devices, nil
}
