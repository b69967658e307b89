package geo

import (
	"crypto/sha1" //nolint:gosec // stable digest for marker placement, not security
	"math"
	"math/big"
	"strconv"

	"github.com/sells-group/listings-cli/internal/model"
)

// MetersPerDegree approximates the length of one degree of latitude.
const MetersPerDegree = 111111.0

const (
	// DefaultMaxOffsetMeters is the default jitter radius ceiling.
	DefaultMaxOffsetMeters = 120.0
	// DefaultMinFraction keeps every jittered point at least this share of
	// the ceiling away from its origin.
	DefaultMinFraction = 0.3

	angleSteps  = 3600
	radiusSteps = 1000
)

// JitterConfig bounds the displacement applied to co-located markers.
type JitterConfig struct {
	MaxOffsetMeters float64
	MinFraction     float64
}

func (c JitterConfig) withDefaults() JitterConfig {
	if c.MaxOffsetMeters <= 0 {
		c.MaxOffsetMeters = DefaultMaxOffsetMeters
	}
	if c.MinFraction <= 0 || c.MinFraction >= 1 {
		c.MinFraction = DefaultMinFraction
	}
	return c
}

// Offset derives the polar displacement for key: an angle in [0, 2π) and a
// radius in meters in [MinFraction, 1) of MaxOffsetMeters.
func Offset(key string, cfg JitterConfig) (angle, radius float64) {
	cfg = cfg.withDefaults()

	sum := sha1.Sum([]byte(key)) //nolint:gosec
	h := new(big.Int).SetBytes(sum[:])

	quo, rem := new(big.Int).QuoRem(h, big.NewInt(angleSteps), new(big.Int))
	angle = float64(rem.Int64()) / angleSteps * 2 * math.Pi

	frac := float64(new(big.Int).Rem(quo, big.NewInt(radiusSteps)).Int64()) / radiusSteps
	radius = cfg.MinFraction*cfg.MaxOffsetMeters + (1-cfg.MinFraction)*cfg.MaxOffsetMeters*frac
	return angle, radius
}

// Jitter displaces (lat, lon) by the offset derived from key. The result
// depends only on its arguments.
func Jitter(key string, lat, lon float64, cfg JitterConfig) (float64, float64) {
	angle, r := Offset(key, cfg)
	dlat := r / MetersPerDegree * math.Cos(angle)
	dlon := r / (MetersPerDegree * math.Cos(lat*math.Pi/180)) * math.Sin(angle)
	return lat + dlat, lon + dlon
}

// JitterKey picks the stable identity used to jitter a listing: its URL, else
// its title, else its position in the batch.
func JitterKey(l model.Listing, index int) string {
	if l.URL != "" {
		return l.URL
	}
	if l.Title != "" {
		return l.Title
	}
	return strconv.Itoa(index)
}
