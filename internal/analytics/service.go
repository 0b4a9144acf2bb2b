// Package analytics records page hits from the frontend and aggregates them
// for the admin dashboard.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/leadvault/backend/internal/models"
)

// DefaultRangeDays is used when no range is requested.
const DefaultRangeDays = 30

var ErrMissingPath = errors.New("missing path")

type Store interface {
	Insert(ctx context.Context, h *models.AnalyticsHit) error
	Traffic(ctx context.Context, since time.Time) ([]models.TrafficPoint, error)
	Summary(ctx context.Context, since time.Time) (models.TrafficSummary, error)
	Devices(ctx context.Context, since time.Time) ([]models.DeviceCount, error)
}

// Hit is an incoming tracking event before device detection.
type Hit struct {
	Path      string
	VisitorID string
	Referrer  string
	UA        string
	IP        string
}

type Service struct {
	store Store
	log   *slog.Logger
	now   func() time.Time
}

func NewService(store Store, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: store, log: log, now: time.Now}
}

var (
	tabletUA = regexp.MustCompile(`ipad|tablet`)
	mobileUA = regexp.MustCompile(`mobi|android|iphone|ipod`)
)

// detectDeviceType classifies a user agent. Tablets are checked first since
// most tablet agents also match the mobile pattern.
func detectDeviceType(ua string) string {
	if ua == "" {
		return models.DeviceUnknown
	}
	u := strings.ToLower(ua)
	switch {
	case tabletUA.MatchString(u):
		return models.DeviceTablet
	case mobileUA.MatchString(u):
		return models.DeviceMobile
	default:
		return models.DeviceDesktop
	}
}

func (s *Service) Track(ctx context.Context, in Hit) (*models.AnalyticsHit, error) {
	path := strings.TrimSpace(in.Path)
	if path == "" {
		return nil, ErrMissingPath
	}
	h := &models.AnalyticsHit{
		Path:       path,
		TS:         s.now().UTC(),
		UA:         in.UA,
		IP:         in.IP,
		Referrer:   in.Referrer,
		VisitorID:  strings.TrimSpace(in.VisitorID),
		DeviceType: detectDeviceType(in.UA),
	}
	if err := s.store.Insert(ctx, h); err != nil {
		return nil, fmt.Errorf("insert hit: %w", err)
	}
	return h, nil
}

// since returns the start of a window of rangeDays days, at least one.
func (s *Service) since(rangeDays int) time.Time {
	if rangeDays < 1 {
		rangeDays = 1
	}
	return s.now().Add(-time.Duration(rangeDays) * 24 * time.Hour)
}

func (s *Service) Traffic(ctx context.Context, rangeDays int) ([]models.TrafficPoint, error) {
	return s.store.Traffic(ctx, s.since(rangeDays))
}

func (s *Service) Summary(ctx context.Context, rangeDays int) (models.TrafficSummary, error) {
	return s.store.Summary(ctx, s.since(rangeDays))
}

func (s *Service) Devices(ctx context.Context, rangeDays int) ([]models.DeviceCount, error) {
	return s.store.Devices(ctx, s.since(rangeDays))
}
