package db

import (
	"context"
	"time"

	"thermostat/internal/types"
)

// DefaultReadingsLimit is the page size when callers pass a non-positive limit.
const DefaultReadingsLimit = 50

const readingColumns = `id, timestamp, source, temperature, humidity,
	voc, co2, pm25, radon,
	hvac_status, fan_running, mode, setpoint_heat, setpoint_cool`

// ReadingRepository provides data access for the readings table.
type ReadingRepository struct {
	db DBTX
}

// NewReadingRepository creates a ReadingRepository backed by the given
// database connection (pool or transaction).
func NewReadingRepository(db DBTX) *ReadingRepository {
	return &ReadingRepository{db: db}
}

// Save appends r and returns its id. Extras the reading does not carry are
// stored as NULL.
func (r *ReadingRepository) Save(ctx context.Context, reading *types.Reading) (int64, error) {
	ts := reading.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	aq := reading.AirQuality
	if aq == nil {
		aq = &types.AirQuality{}
	}
	dev := reading.Device
	if dev == nil {
		dev = &types.DeviceExtras{}
	}

	var id int64
	err := r.db.QueryRow(ctx,
		`INSERT INTO readings (timestamp, source, temperature, humidity,
			voc, co2, pm25, radon,
			hvac_status, fan_running, mode, setpoint_heat, setpoint_cool)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 RETURNING id`,
		ts,
		reading.Source,
		reading.Temperature,
		reading.Humidity,
		aq.VOC,
		aq.CO2,
		aq.PM25,
		aq.Radon,
		nullString(dev.HVACStatus),
		dev.FanRunning,
		nullString(string(dev.Mode)),
		dev.SetpointHeat,
		dev.SetpointCool,
	).Scan(&id)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to insert reading", err)
	}
	return id, nil
}

// List returns the most recent readings, newest first.
func (r *ReadingRepository) List(ctx context.Context, limit int) ([]types.Reading, error) {
	if limit <= 0 {
		limit = DefaultReadingsLimit
	}
	return r.query(ctx,
		`SELECT `+readingColumns+`
		 FROM readings
		 ORDER BY id DESC
		 LIMIT $1`,
		limit,
	)
}

// ListSince returns every reading at or after since, newest first.
func (r *ReadingRepository) ListSince(ctx context.Context, since time.Time) ([]types.Reading, error) {
	return r.query(ctx,
		`SELECT `+readingColumns+`
		 FROM readings
		 WHERE timestamp >= $1
		 ORDER BY id DESC`,
		since,
	)
}

func (r *ReadingRepository) query(ctx context.Context, sql string, args ...any) ([]types.Reading, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query readings", err)
	}
	defer rows.Close()

	readings := []types.Reading{}
	for rows.Next() {
		var (
			reading    types.Reading
			aq         types.AirQuality
			hvacStatus *string
			fanRunning *bool
			mode       *string
			spHeat     *float64
			spCool     *float64
		)
		if err := rows.Scan(
			&reading.ID,
			&reading.Timestamp,
			&reading.Source,
			&reading.Temperature,
			&reading.Humidity,
			&aq.VOC,
			&aq.CO2,
			&aq.PM25,
			&aq.Radon,
			&hvacStatus,
			&fanRunning,
			&mode,
			&spHeat,
			&spCool,
		); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan reading", err)
		}

		if aq.VOC != nil || aq.CO2 != nil || aq.PM25 != nil || aq.Radon != nil {
			reading.AirQuality = &aq
		}
		if hvacStatus != nil || fanRunning != nil || mode != nil || spHeat != nil || spCool != nil {
			dev := &types.DeviceExtras{
				FanRunning:   fanRunning,
				SetpointHeat: spHeat,
				SetpointCool: spCool,
			}
			if hvacStatus != nil {
				dev.HVACStatus = *hvacStatus
			}
			if mode != nil {
				dev.Mode = types.HVACMode(*mode)
			}
			reading.Device = dev
		}
		readings = append(readings, reading)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating readings", err)
	}
	return readings, nil
}

// nullString maps "" to SQL NULL.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
