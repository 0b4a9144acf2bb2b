package models

import "time"

const (
	DeviceDesktop = "desktop"
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceUnknown = "unknown"
)

type AnalyticsHit struct {
	ID         int64     `json:"id"`
	Path       string    `json:"path"`
	TS         time.Time `json:"ts"`
	UA         string    `json:"ua,omitempty"`
	IP         string    `json:"ip,omitempty"`
	Referrer   string    `json:"referrer,omitempty"`
	VisitorID  string    `json:"visitorId,omitempty"`
	DeviceType string    `json:"deviceType"`
}

type TrafficPoint struct {
	Date    string `json:"date"`
	Visits  int    `json:"visits"`
	Uniques int    `json:"uniques"`
}

type TrafficSummary struct {
	TotalVisits    int `json:"totalVisits"`
	UniqueVisitors int `json:"uniqueVisitors"`
}

type DeviceCount struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}
