package geo

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

type Point struct {
	Lat float64
	Lon float64
}

// Path is a polyline with precomputed cumulative distances in meters.
type Path struct {
	pts []Point
	cum []float64
}

func NewPath(pts []Point) *Path {
	p := &Path{pts: pts}
	if len(pts) > 0 {
		p.cum = make([]float64, len(pts))
		for i := 1; i < len(pts); i++ {
			p.cum[i] = p.cum[i-1] + pts[i-1].DistanceTo(pts[i])
		}
	}
	return p
}

// ParsePath reads "lat,lon;lat,lon;..." as used by LOCATION_PATH.
func ParsePath(s string) ([]Point, error) {
	var pts []Point
	for _, pair := range strings.Split(s, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.Split(pair, ",")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid path point %q", pair)
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid latitude in %q: %w", pair, err)
		}
		lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid longitude in %q: %w", pair, err)
		}
		if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
			return nil, fmt.Errorf("path point %q out of range", pair)
		}
		pts = append(pts, Point{Lat: lat, Lon: lon})
	}
	return pts, nil
}

// Length is the total path length in meters.
func (p *Path) Length() float64 {
	if len(p.cum) == 0 {
		return 0
	}
	return p.cum[len(p.cum)-1]
}

// At returns the position and heading dist meters along the path. Distances
// outside the path clamp to its ends.
func (p *Path) At(dist float64) (lat, lon, bearing float64) {
	switch {
	case len(p.pts) == 0:
		return 0, 0, 0
	case p.Length() == 0:
		return p.pts[0].Lat, p.pts[0].Lon, 0
	}
	dist = math.Max(0, math.Min(dist, p.Length()))

	// Segment i ends at the first vertex at or beyond dist.
	i := max(sort.SearchFloat64s(p.cum, dist), 1)
	a, b := p.pts[i-1], p.pts[i]
	seg := p.cum[i] - p.cum[i-1]
	if seg == 0 {
		return a.Lat, a.Lon, a.BearingTo(b)
	}
	f := (dist - p.cum[i-1]) / seg
	return a.Lat + (b.Lat-a.Lat)*f, a.Lon + (b.Lon-a.Lon)*f, a.BearingTo(b)
}

const earthRadiusM = 6371000.0

func rad(deg float64) float64 { return deg * math.Pi / 180 }

// DistanceTo is the great-circle distance to q in meters.
func (p Point) DistanceTo(q Point) float64 {
	lat1, lat2 := rad(p.Lat), rad(q.Lat)
	dLat, dLon := lat2-lat1, rad(q.Lon-p.Lon)
	h := math.Pow(math.Sin(dLat/2), 2) + math.Cos(lat1)*math.Cos(lat2)*math.Pow(math.Sin(dLon/2), 2)
	return 2 * earthRadiusM * math.Asin(math.Sqrt(math.Min(1, h)))
}

// BearingTo is the initial compass heading towards q, in [0, 360).
func (p Point) BearingTo(q Point) float64 {
	lat1, lat2 := rad(p.Lat), rad(q.Lat)
	dLon := rad(q.Lon - p.Lon)
	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)
	return math.Mod(math.Atan2(y, x)*180/math.Pi+360, 360)
}
