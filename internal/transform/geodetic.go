package transform

import (
	"math"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

// WGS-84 ellipsoid, km.
const (
	wgs84A  = 6378.137
	wgs84F  = 1 / 298.257223563
	wgs84E2 = wgs84F * (2 - wgs84F) // first eccentricity squared
)

// GeodeticPoint is a WGS-84 latitude and longitude in degrees and an
// altitude above the ellipsoid in km.
type GeodeticPoint struct {
	LatDeg, LonDeg, AltKm float64
}

// ECEFToGeodetic converts an Earth-fixed position with Bowring's iteration,
// which settles within a few rounds for orbital altitudes.
func ECEFToGeodetic(pos r3.Vec) GeodeticPoint {
	p := math.Hypot(pos.X, pos.Y)
	lat := math.Atan2(pos.Z, p*(1-wgs84E2))

	var n float64
	for i := 0; i < 5; i++ {
		sin := math.Sin(lat)
		n = wgs84A / math.Sqrt(1-wgs84E2*sin*sin)
		lat = math.Atan2(pos.Z+wgs84E2*n*sin, p)
	}

	sin, cos := math.Sincos(lat)
	n = wgs84A / math.Sqrt(1-wgs84E2*sin*sin)
	alt := p/cos - n
	if math.Abs(cos) < 1e-10 {
		alt = math.Abs(pos.Z)/math.Abs(sin) - n*(1-wgs84E2)
	}

	return GeodeticPoint{
		LatDeg: lat * 180 / math.Pi,
		LonDeg: math.Atan2(pos.Y, pos.X) * 180 / math.Pi,
		AltKm:  alt,
	}
}

// SubPoint returns the geodetic point below a TEME position at t. ok is
// false when the position is not Plausible.
func SubPoint(teme State, t time.Time) (GeodeticPoint, bool) {
	if !Plausible(teme.Pos) {
		return GeodeticPoint{}, false
	}
	return ECEFToGeodetic(TEMEToECEF(teme, t).Pos), true
}
