package admission

import (
	"math"

	"AttendGate/internal/model"
)

// EarthRadiusMeters 地球平均半径
const EarthRadiusMeters = 6371000.0

// Haversine 两点间大圆距离（米）
func Haversine(a, b model.GeoPoint) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	sinLat := math.Sin(dLat / 2)
	sinLng := math.Sin(dLng / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLng*sinLng

	return 2 * EarthRadiusMeters * math.Asin(math.Sqrt(math.Min(1, h)))
}
