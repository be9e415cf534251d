package geofence

import (
	"math"

	"guardian-view/internal/models"
)

// earthRadiusMeters 球面近似的地球半径（米）
// 对几十米到几公里的围栏半径足够精确，不适用于亚米级精度
const earthRadiusMeters = 6371000.0

// Distance 计算两个经纬度坐标间的大圆距离（Haversine 公式），单位米
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	deltaPhi := (lat2 - lat1) * math.Pi / 180
	deltaLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(deltaPhi/2)*math.Sin(deltaPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(deltaLambda/2)*math.Sin(deltaLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMeters * c
}

// Contains 判断坐标点是否落在围栏圆内（含边界）
func Contains(lat, lon float64, gf *models.Geofence) bool {
	return Distance(lat, lon, gf.Latitude, gf.Longitude) <= gf.RadiusMeters
}
