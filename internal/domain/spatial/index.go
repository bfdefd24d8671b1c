// Package spatial provides an immutable kd-tree over static points of
// interest. Points are packed into flat, recursively median-partitioned
// arrays (the KDBush layout), so a built index never allocates on read and
// can be shared freely between goroutines.
package spatial

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/okian/roadwatch/internal/domain/geo"
	"github.com/okian/roadwatch/internal/domain/model"
)

// DefaultNodeSize is the leaf size below which ranges are scanned linearly.
const DefaultNodeSize = 64

// Match is a point returned by a query with its distance from the query point.
type Match struct {
	Point          model.PointOfInterest `json:"point"`
	DistanceMeters float64               `json:"distanceMeters"`
}

// Index is an immutable kd-tree. A nil *Index behaves as an empty index.
type Index struct {
	nodeSize int
	ids      []int
	coords   []float64 // lon0, lat0, lon1, lat1, ...
	points   []model.PointOfInterest
}

// Build indexes points in O(N log N). Every point must have valid WGS84
// coordinates; the input slice is copied.
func Build(points []model.PointOfInterest, opts ...Option) (*Index, error) {
	idx := &Index{nodeSize: DefaultNodeSize}
	for _, opt := range opts {
		opt(idx)
	}

	n := len(points)
	idx.points = slices.Clone(points)
	idx.ids = make([]int, n)
	idx.coords = make([]float64, 2*n)
	for i, p := range idx.points {
		if !p.Position().Valid() {
			return nil, fmt.Errorf("%w: id %d at %v", ErrInvalidPoint, p.ID, p.Coordinates)
		}
		idx.ids[i] = i
		idx.coords[2*i] = p.Coordinates[0]
		idx.coords[2*i+1] = p.Coordinates[1]
	}

	idx.sort(0, n-1, 0)
	return idx, nil
}

// Len returns the number of indexed points.
func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.points)
}

// Points returns a copy of the indexed points in input order.
func (idx *Index) Points() []model.PointOfInterest {
	if idx == nil {
		return nil
	}
	return slices.Clone(idx.points)
}

// QueryRadius returns the points within radiusMeters of (lat, lon), nearest
// first. maxResults <= 0 means no limit. A radius of 0 matches only
// coincident points.
func (idx *Index) QueryRadius(lat, lon, radiusMeters float64, maxResults int) []Match {
	if idx.Len() == 0 || radiusMeters < 0 {
		return nil
	}
	center := model.Position{Latitude: lat, Longitude: lon}
	if !center.Valid() {
		return nil
	}

	var out []Match
	for _, box := range boundingBoxes(center, radiusMeters) {
		idx.rangeQuery(box, func(i int) {
			p := idx.points[i]
			d := geo.DistanceMeters(center, p.Position())
			if d <= radiusMeters {
				out = append(out, Match{Point: p, DistanceMeters: d})
			}
		})
	}

	slices.SortFunc(out, func(a, b Match) int {
		if c := cmp.Compare(a.DistanceMeters, b.DistanceMeters); c != 0 {
			return c
		}
		return cmp.Compare(a.Point.ID, b.Point.ID)
	})
	if maxResults > 0 && len(out) > maxResults {
		out = out[:maxResults]
	}
	return out
}

const (
	nearestStartMeters = 100.0
	// half the equatorial circumference covers the whole globe
	nearestMaxMeters = 20_037_509.0
)

// Nearest returns up to k points closest to (lat, lon), nearest first.
func (idx *Index) Nearest(lat, lon float64, k int) []Match {
	if idx.Len() == 0 || k <= 0 {
		return nil
	}
	r := nearestStartMeters
	for {
		got := idx.QueryRadius(lat, lon, r, 0)
		if len(got) >= k || r >= nearestMaxMeters {
			if len(got) > k {
				got = got[:k]
			}
			return got
		}
		r = min(r*4, nearestMaxMeters)
	}
}

type box struct {
	minX, minY, maxX, maxY float64
}

// boundingBoxes returns the degree boxes covering a circle, split in two
// when the circle crosses the antimeridian.
func boundingBoxes(c model.Position, meters float64) []box {
	dLat := geo.MetersToLatDegrees(meters)
	minY := max(-90, c.Latitude-dLat)
	maxY := min(90, c.Latitude+dLat)
	if maxY >= 90 || minY <= -90 {
		return []box{{-180, minY, 180, maxY}}
	}

	// the circle is widest at the edge closest to a pole
	edge := max(abs(minY), abs(maxY))
	dLon := geo.MetersToLonDegrees(meters, edge)
	if dLon >= 180 {
		return []box{{-180, minY, 180, maxY}}
	}

	minX, maxX := c.Longitude-dLon, c.Longitude+dLon
	switch {
	case minX < -180:
		return []box{{minX + 360, minY, 180, maxY}, {-180, minY, maxX, maxY}}
	case maxX > 180:
		return []box{{minX, minY, 180, maxY}, {-180, minY, maxX - 360, maxY}}
	default:
		return []box{{minX, minY, maxX, maxY}}
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func (idx *Index) rangeQuery(b box, visit func(i int)) {
	stack := []int{0, len(idx.ids) - 1, 0}
	for len(stack) > 0 {
		axis := stack[len(stack)-1]
		right := stack[len(stack)-2]
		left := stack[len(stack)-3]
		stack = stack[:len(stack)-3]

		if right-left <= idx.nodeSize {
			for i := left; i <= right; i++ {
				if b.contains(idx.coords[2*i], idx.coords[2*i+1]) {
					visit(idx.ids[i])
				}
			}
			continue
		}

		m := (left + right) >> 1
		x, y := idx.coords[2*m], idx.coords[2*m+1]
		if b.contains(x, y) {
			visit(idx.ids[m])
		}

		if (axis == 0 && b.minX <= x) || (axis == 1 && b.minY <= y) {
			stack = append(stack, left, m-1, 1-axis)
		}
		if (axis == 0 && b.maxX >= x) || (axis == 1 && b.maxY >= y) {
			stack = append(stack, m+1, right, 1-axis)
		}
	}
}

func (b box) contains(x, y float64) bool {
	return x >= b.minX && x <= b.maxX && y >= b.minY && y <= b.maxY
}

func (idx *Index) sort(left, right, axis int) {
	if right-left <= idx.nodeSize {
		return
	}
	m := (left + right) >> 1
	idx.selectKth(m, left, right, axis)
	idx.sort(left, m-1, 1-axis)
	idx.sort(m+1, right, 1-axis)
}

// selectKth partially orders [left, right] on axis so that position k holds
// its median element (Hoare partitioning).
func (idx *Index) selectKth(k, left, right, axis int) {
	for right > left {
		t := idx.coords[2*k+axis]
		i, j := left, right

		idx.swap(left, k)
		if idx.coords[2*right+axis] > t {
			idx.swap(left, right)
		}
		for i < j {
			idx.swap(i, j)
			i++
			j--
			for idx.coords[2*i+axis] < t {
				i++
			}
			for idx.coords[2*j+axis] > t {
				j--
			}
		}

		if idx.coords[2*left+axis] == t {
			idx.swap(left, j)
		} else {
			j++
			idx.swap(j, right)
		}

		if j <= k {
			left = j + 1
		}
		if k <= j {
			right = j - 1
		}
	}
}

func (idx *Index) swap(i, j int) {
	idx.ids[i], idx.ids[j] = idx.ids[j], idx.ids[i]
	idx.coords[2*i], idx.coords[2*j] = idx.coords[2*j], idx.coords[2*i]
	idx.coords[2*i+1], idx.coords[2*j+1] = idx.coords[2*j+1], idx.coords[2*i+1]
}
