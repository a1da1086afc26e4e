// Package transform converts SGP4 output between reference frames.
//
// Conjunction geometry is computed in TEME (True Equator Mean Equinox), the
// frame SGP4 produces. The Earth-fixed frame and geodetic coordinates are
// only used to report where over the Earth an encounter happens, so the
// rotation is GMST only (TEME to PEF, taken as ECEF). Polar motion and the
// equation of the equinoxes are ignored; the error is tens of meters and
// never reaches a miss distance.
//
// All lengths are km and all velocities km/s.
//
// Reference: Vallado, "Fundamentals of Astrodynamics and Applications", Ch. 3.
package transform

import (
	"math"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

// OmegaEarth is Earth's rotation rate in rad/s (IAU value).
const OmegaEarth = 7.292115146706979e-5

const (
	jdUnixEpoch = 2440587.5 // Julian Date of 1970-01-01T00:00:00Z
	jdJ2000     = 2451545.0 // Julian Date of 2000-01-01T12:00:00
	daySeconds  = 86400.0
)

// State is a position and velocity in one frame.
type State struct {
	Pos r3.Vec // km
	Vel r3.Vec // km/s
}

// JulianDate returns the UTC Julian Date of t.
func JulianDate(t time.Time) float64 {
	return jdUnixEpoch + (float64(t.Unix())+float64(t.Nanosecond())/1e9)/daySeconds
}

// GMST returns Greenwich Mean Sidereal Time at t in radians, in [0, 2π),
// from the IAU-82 polynomial (Vallado Eq. 3-47) with UT1 taken as UTC.
func GMST(t time.Time) float64 {
	c := (JulianDate(t) - jdJ2000) / 36525.0 // Julian centuries since J2000

	// Seconds of time; the linear term is 876600 h + 8640184.812866 s.
	sec := 67310.54841 + (876600*3600+8640184.812866)*c + 0.093104*c*c - 6.2e-6*c*c*c
	sec = math.Mod(sec, daySeconds)
	if sec < 0 {
		sec += daySeconds
	}
	return sec / daySeconds * 2 * math.Pi
}

// rotZ rotates v by -theta about Z, i.e. expresses it in a frame that has
// turned by theta.
func rotZ(v r3.Vec, theta float64) r3.Vec {
	sin, cos := math.Sincos(theta)
	return r3.Vec{
		X: v.X*cos + v.Y*sin,
		Y: -v.X*sin + v.Y*cos,
		Z: v.Z,
	}
}

// TEMEToECEF transforms a TEME state to the Earth-fixed frame at t.
func TEMEToECEF(s State, t time.Time) State {
	return TEMEToECEFAt(s, GMST(t))
}

// TEMEToECEFAt transforms with a precomputed GMST angle:
//
//	r_ECEF = R3(θ) r_TEME
//	v_ECEF = R3(θ) v_TEME − ω × r_ECEF
func TEMEToECEFAt(s State, gmst float64) State {
	pos := rotZ(s.Pos, gmst)
	omega := r3.Vec{Z: OmegaEarth}
	return State{
		Pos: pos,
		Vel: r3.Sub(rotZ(s.Vel, gmst), r3.Cross(omega, pos)),
	}
}

// Plausible reports whether pos is a finite geocentric position between
// 6200 km and 50000 km, the envelope of Earth orbits.
func Plausible(pos r3.Vec) bool {
	for _, c := range []float64{pos.X, pos.Y, pos.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	r := r3.Norm(pos)
	return r >= 6200 && r <= 50000
}
