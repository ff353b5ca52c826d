package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/turiliffiu/agrisecure/internal/models"
)

// ReadingRepository 传感器读数仓库（追加写入）
type ReadingRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewReadingRepository 创建读数仓库
func NewReadingRepository(db *sql.DB, logger *zap.Logger) *ReadingRepository {
	return &ReadingRepository{
		db:     db,
		logger: logger,
	}
}

// Insert 写入一条传感器读数，返回自增ID
func (r *ReadingRepository) Insert(ctx context.Context, reading *models.SensorReading) (int64, error) {
	query := `
		INSERT INTO sensor_readings (
			node_id, timestamp, temperature, humidity, pressure,
			light_lux, soil_moisture_raw, soil_moisture_percent, battery_voltage
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`

	var id int64
	err := r.db.QueryRowContext(ctx, query,
		reading.NodeID,
		reading.Timestamp,
		reading.Temperature,
		reading.Humidity,
		reading.Pressure,
		reading.LightLux,
		reading.SoilMoistureRaw,
		reading.SoilMoisturePercent,
		reading.BatteryVoltage,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert sensor reading for %s: %w", reading.NodeID, err)
	}

	return id, nil
}
