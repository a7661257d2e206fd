package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

// LocationQuery selects parks by exactly one of its fields.
type LocationQuery struct {
	Zip   string
	City  string
	State string
}

type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

type Feature struct {
	Type       string          `json:"type"`
	Geometry   json.RawMessage `json:"geometry"`
	Properties map[string]any  `json:"properties"`
}

type Park struct {
	ID              string
	Name            string
	City            string
	State           string
	Zip             string
	Acres           float64
	Geometry        json.RawMessage
	NDVI            *float64
	PM25            *float64
	Stats           map[string]float64
	Description     string
	YearEstablished *int
}

// Demographic columns kept in the stats document.
const (
	StatTotalPopulation = "SUM_TOTPOP"
	StatKids            = "SUM_KIDSVC"
	StatAdults          = "SUM_YOUNGP"
	StatSeniors         = "SUM_SENIOR"
)

type ParkStat struct {
	Metric string
	Value  float64
}

const parkColumns = `park_id, park_name, park_city, park_state, park_zip, park_acres,
	geometry, ndvi, pm25, stats, description, year_established`

func scanPark(row pgx.Row) (*Park, error) {
	var p Park
	var stats []byte
	if err := row.Scan(&p.ID, &p.Name, &p.City, &p.State, &p.Zip, &p.Acres,
		&p.Geometry, &p.NDVI, &p.PM25, &stats, &p.Description, &p.YearEstablished); err != nil {
		return nil, err
	}
	if len(stats) > 0 {
		if err := json.Unmarshal(stats, &p.Stats); err != nil {
			return nil, fmt.Errorf("failed to decode stats for park %s: %w", p.ID, err)
		}
	}
	return &p, nil
}

// locationFilter returns the WHERE clause and argument for q.
func locationFilter(q LocationQuery) (string, []any, error) {
	switch {
	case q.Zip != "":
		return "park_zip = $1", []any{strings.TrimSpace(q.Zip)}, nil
	case q.City != "":
		return "lower(park_city) = lower($1)", []any{strings.TrimSpace(q.City)}, nil
	case q.State != "":
		return "park_state = $1", []any{strings.ToUpper(strings.TrimSpace(q.State))}, nil
	default:
		return "", nil, fmt.Errorf("location query is empty")
	}
}

// ParksByLocation returns the matching parks as GeoJSON. No match yields an
// empty collection.
func (db *DB) ParksByLocation(ctx context.Context, q LocationQuery) (*FeatureCollection, error) {
	where, args, err := locationFilter(q)
	if err != nil {
		return nil, err
	}

	rows, err := db.pool.Query(ctx, `SELECT `+parkColumns+` FROM parks WHERE `+where+` ORDER BY park_name`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fc := &FeatureCollection{Type: "FeatureCollection", Features: []Feature{}}
	for rows.Next() {
		p, err := scanPark(rows)
		if err != nil {
			return nil, err
		}
		fc.Features = append(fc.Features, p.Feature())
	}
	return fc, rows.Err()
}

// ParkByID returns nil, nil when the park does not exist.
func (db *DB) ParkByID(ctx context.Context, id string) (*Park, error) {
	p, err := scanPark(db.pool.QueryRow(ctx, `SELECT `+parkColumns+` FROM parks WHERE park_id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ParkStat returns nil, nil when the park or the metric is absent.
func (db *DB) ParkStat(ctx context.Context, id, metric string) (*ParkStat, error) {
	var value *float64
	err := db.pool.QueryRow(ctx,
		`SELECT (stats ->> $2)::double precision FROM parks WHERE park_id = $1`,
		id, metric,
	).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if value == nil {
		return nil, nil
	}
	return &ParkStat{Metric: metric, Value: *value}, nil
}

// ParkZip returns "" when the park does not exist.
func (db *DB) ParkZip(ctx context.Context, id string) (string, error) {
	var zip string
	err := db.pool.QueryRow(ctx, `SELECT park_zip FROM parks WHERE park_id = $1`, id).Scan(&zip)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return zip, err
}

// Feature renders the park for map display.
func (p *Park) Feature() Feature {
	props := map[string]any{
		"id":    p.ID,
		"name":  p.Name,
		"city":  p.City,
		"state": p.State,
		"zip":   p.Zip,
		"acres": p.Acres,
	}
	if p.NDVI != nil {
		props["ndvi"] = *p.NDVI
	}
	if p.YearEstablished != nil {
		props["yearEstablished"] = *p.YearEstablished
	}
	geometry := p.Geometry
	if len(geometry) == 0 {
		geometry = json.RawMessage("null")
	}
	return Feature{Type: "Feature", Geometry: geometry, Properties: props}
}

// Stat returns a stats value, zero when absent.
func (p *Park) Stat(metric string) float64 {
	return p.Stats[metric]
}
