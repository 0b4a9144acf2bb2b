package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/leadvault/backend/internal/models"
)

type AnalyticsRepo struct {
	pool *pgxpool.Pool
}

func NewAnalyticsRepo(pool *pgxpool.Pool) *AnalyticsRepo {
	return &AnalyticsRepo{pool: pool}
}

func (r *AnalyticsRepo) Insert(ctx context.Context, h *models.AnalyticsHit) error {
	var visitorID *string
	if h.VisitorID != "" {
		visitorID = &h.VisitorID
	}
	return r.pool.QueryRow(ctx, `
		INSERT INTO analytics_hits (path, ts, ua, ip, referrer, visitor_id, device_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, h.Path, h.TS, h.UA, h.IP, h.Referrer, visitorID, h.DeviceType).Scan(&h.ID)
}

// Traffic counts visits and distinct visitors (visitor id, else ip) per UTC day.
func (r *AnalyticsRepo) Traffic(ctx context.Context, since time.Time) ([]models.TrafficPoint, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT to_char(ts AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day,
		       count(*)::int,
		       count(DISTINCT COALESCE(visitor_id, ip))::int
		FROM analytics_hits
		WHERE ts >= $1
		GROUP BY day
		ORDER BY day
	`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []models.TrafficPoint{}
	for rows.Next() {
		var p models.TrafficPoint
		if err := rows.Scan(&p.Date, &p.Visits, &p.Uniques); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *AnalyticsRepo) Summary(ctx context.Context, since time.Time) (models.TrafficSummary, error) {
	var s models.TrafficSummary
	err := r.pool.QueryRow(ctx, `
		SELECT count(*)::int, count(DISTINCT COALESCE(visitor_id, ip))::int
		FROM analytics_hits WHERE ts >= $1
	`, since).Scan(&s.TotalVisits, &s.UniqueVisitors)
	return s, err
}

func (r *AnalyticsRepo) Devices(ctx context.Context, since time.Time) ([]models.DeviceCount, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT device_type, count(*)::int FROM analytics_hits
		WHERE ts >= $1 GROUP BY device_type ORDER BY count(*) DESC
	`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []models.DeviceCount{}
	for rows.Next() {
		var d models.DeviceCount
		if err := rows.Scan(&d.Name, &d.Value); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
