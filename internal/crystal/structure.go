// Package crystal models periodic crystal structures and reads them from
// CIF (Crystallographic Information File) text.
package crystal

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Lattice holds unit-cell parameters: lengths in angstroms, angles in degrees.
type Lattice struct {
	A     float64 `json:"a"`
	B     float64 `json:"b"`
	C     float64 `json:"c"`
	Alpha float64 `json:"alpha"`
	Beta  float64 `json:"beta"`
	Gamma float64 `json:"gamma"`
}

// Matrix returns the lattice vectors as rows. The c vector lies along z and
// a lies in the xz plane.
func (l Lattice) Matrix() [3][3]float64 {
	alpha, beta, gamma := radians(l.Alpha), radians(l.Beta), radians(l.Gamma)

	val := (math.Cos(alpha)*math.Cos(beta) - math.Cos(gamma)) / (math.Sin(alpha) * math.Sin(beta))
	val = math.Max(-1, math.Min(1, val))
	gammaStar := math.Acos(val)

	return [3][3]float64{
		{l.A * math.Sin(beta), 0, l.A * math.Cos(beta)},
		{-l.B * math.Sin(alpha) * math.Cos(gammaStar), l.B * math.Sin(alpha) * math.Sin(gammaStar), l.B * math.Cos(alpha)},
		{0, 0, l.C},
	}
}

// Volume returns the cell volume in cubic angstroms.
func (l Lattice) Volume() float64 {
	ca, cb, cg := math.Cos(radians(l.Alpha)), math.Cos(radians(l.Beta)), math.Cos(radians(l.Gamma))
	return l.A * l.B * l.C * math.Sqrt(1-ca*ca-cb*cb-cg*cg+2*ca*cb*cg)
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }

// Site is one atom position in fractional coordinates.
type Site struct {
	Label     string     `json:"label"`
	Species   string     `json:"species"`
	Frac      [3]float64 `json:"frac"`
	Occupancy float64    `json:"occupancy"`
}

// Cartesian converts the site position to cartesian coordinates.
func (s Site) Cartesian(l Lattice) [3]float64 {
	m := l.Matrix()
	var out [3]float64
	for j := 0; j < 3; j++ {
		out[j] = s.Frac[0]*m[0][j] + s.Frac[1]*m[1][j] + s.Frac[2]*m[2][j]
	}
	return out
}

// Structure is a conventional-cell crystal structure: every symmetry
// equivalent position is listed explicitly in Sites.
type Structure struct {
	Name       string  `json:"name"`
	Formula    string  `json:"formula,omitempty"` // as written in the source, if any
	SpaceGroup string  `json:"space_group,omitempty"`
	Lattice    Lattice `json:"lattice"`
	Sites      []Site  `json:"sites"`
}

// NumSites returns the number of sites.
func (s *Structure) NumSites() int { return len(s.Sites) }

// Composition sums occupancies per species.
func (s *Structure) Composition() map[string]float64 {
	comp := make(map[string]float64)
	for _, site := range s.Sites {
		comp[site.Species] += site.Occupancy
	}
	return comp
}

// ReducedFormula returns the composition divided by the greatest common
// divisor of its amounts, species in alphabetical order, e.g. "MoS2".
// Fractional amounts are written with up to three decimals and not reduced.
func (s *Structure) ReducedFormula() string {
	comp := s.Composition()
	species := make([]string, 0, len(comp))
	for sp := range comp {
		species = append(species, sp)
	}
	sort.Strings(species)

	integral := true
	g := 0
	for _, sp := range species {
		amt := comp[sp]
		if math.Abs(amt-math.Round(amt)) > 1e-6 {
			integral = false
			break
		}
		g = gcd(g, int(math.Round(amt)))
	}
	if !integral || g == 0 {
		g = 1
	}

	var b strings.Builder
	for _, sp := range species {
		amt := comp[sp]
		if integral {
			amt = math.Round(amt) / float64(g)
		}
		b.WriteString(sp)
		if amt != 1 {
			b.WriteString(strconv.FormatFloat(math.Round(amt*1000)/1000, 'f', -1, 64))
		}
	}
	return b.String()
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	if a < 0 {
		return -a
	}
	return a
}

// String summarises the structure for logs.
func (s *Structure) String() string {
	return fmt.Sprintf("%s (%d sites, a=%.4g b=%.4g c=%.4g)", s.ReducedFormula(), len(s.Sites), s.Lattice.A, s.Lattice.B, s.Lattice.C)
}
