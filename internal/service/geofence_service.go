package service

import (
	"math"

	"github.com/noah-isme/attendo-api/pkg/config"
)

const earthRadiusKm = 6371.0

// GeofenceResult reports where a coordinate sits relative to the campus circle.
type GeofenceResult struct {
	Within     bool    `json:"within"`
	DistanceKm float64 `json:"distance_km"`
}

// GeofenceService checks coordinates against a circle around the campus reference point.
type GeofenceService struct {
	enabled  bool
	lat      float64
	lon      float64
	radiusKm float64
}

// NewGeofenceService builds a geofence from configuration.
func NewGeofenceService(cfg config.GeofenceConfig) *GeofenceService {
	radius := cfg.RadiusKm
	if radius < 0 {
		radius = 0
	}
	return &GeofenceService{enabled: cfg.Enabled, lat: cfg.Latitude, lon: cfg.Longitude, radiusKm: radius}
}

// Enabled reports whether redemption must be location checked.
func (g *GeofenceService) Enabled() bool {
	return g != nil && g.enabled
}

// RadiusKm returns the configured radius.
func (g *GeofenceService) RadiusKm() float64 {
	return g.radiusKm
}

// Check computes the distance to the reference point and whether it is within the radius.
func (g *GeofenceService) Check(lat, lon float64) GeofenceResult {
	distance := HaversineKm(g.lat, g.lon, lat, lon)
	return GeofenceResult{Within: distance <= g.radiusKm, DistanceKm: distance}
}

// IsWithinRadius is Check without the distance.
func (g *GeofenceService) IsWithinRadius(lat, lon float64) bool {
	return g.Check(lat, lon).Within
}

// HaversineKm returns the great-circle distance between two points in kilometres.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRadians(lat2 - lat1)
	dLon := toRadians(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
