package crystal

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// SymOp is an affine symmetry operation on fractional coordinates:
// x' = Rot·x + Trans.
type SymOp struct {
	Rot   [3][3]float64
	Trans [3]float64
}

// Identity is the operation "x, y, z".
var Identity = SymOp{Rot: [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}}

// ParseSymOp parses a CIF symmetry operation such as "-x+1/2, y, z+0.25".
// Components are separated by commas; each is a sum of signed terms that
// are either x, y, z (optionally scaled, as in "2x" or "1/2*x") or
// constants written as integers, decimals or fractions.
func ParseSymOp(s string) (SymOp, error) {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(s)), ",")
	if len(parts) != 3 {
		return SymOp{}, fmt.Errorf("symmetry operation %q: expected 3 components", s)
	}

	var op SymOp
	for row, part := range parts {
		if err := parseComponent(strings.ReplaceAll(part, " ", ""), &op.Rot[row], &op.Trans[row]); err != nil {
			return SymOp{}, fmt.Errorf("symmetry operation %q: %w", s, err)
		}
	}
	return op, nil
}

func parseComponent(expr string, rot *[3]float64, trans *float64) error {
	if expr == "" {
		return fmt.Errorf("empty component")
	}

	i := 0
	for i < len(expr) {
		sign := 1.0
		if expr[i] == '+' || expr[i] == '-' {
			if expr[i] == '-' {
				sign = -1
			}
			i++
		} else if i != 0 {
			return fmt.Errorf("expected sign at %q", expr[i:])
		}

		j := i
		for j < len(expr) && expr[j] != '+' && expr[j] != '-' {
			j++
		}
		term := expr[i:j]
		if term == "" {
			return fmt.Errorf("dangling sign in %q", expr)
		}

		if axis := strings.IndexAny(term, "xyz"); axis >= 0 {
			if axis != len(term)-1 {
				return fmt.Errorf("unexpected text after axis in %q", term)
			}
			coef := 1.0
			if prefix := strings.TrimSuffix(term[:axis], "*"); prefix != "" {
				v, err := parseNumber(prefix)
				if err != nil {
					return err
				}
				coef = v
			}
			rot[term[axis]-'x'] += sign * coef
		} else {
			v, err := parseNumber(term)
			if err != nil {
				return err
			}
			*trans += sign * v
		}
		i = j
	}
	return nil
}

func parseNumber(s string) (float64, error) {
	if num, den, ok := strings.Cut(s, "/"); ok {
		n, err := strconv.ParseFloat(num, 64)
		if err != nil {
			return 0, fmt.Errorf("bad fraction %q", s)
		}
		d, err := strconv.ParseFloat(den, 64)
		if err != nil || d == 0 {
			return 0, fmt.Errorf("bad fraction %q", s)
		}
		return n / d, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("bad number %q", s)
	}
	return v, nil
}

// Apply transforms a fractional position.
func (op SymOp) Apply(f [3]float64) [3]float64 {
	var out [3]float64
	for i := 0; i < 3; i++ {
		out[i] = op.Rot[i][0]*f[0] + op.Rot[i][1]*f[1] + op.Rot[i][2]*f[2] + op.Trans[i]
	}
	return out
}

// wrap maps each coordinate into [0, 1).
func wrap(f [3]float64) [3]float64 {
	for i := range f {
		f[i] -= math.Floor(f[i])
		if f[i] > 1-1e-8 {
			f[i] = 0
		}
	}
	return f
}

// samePosition compares fractional positions under periodic boundaries.
func samePosition(a, b [3]float64, tol float64) bool {
	for i := 0; i < 3; i++ {
		d := a[i] - b[i]
		d -= math.Round(d)
		if math.Abs(d) > tol {
			return false
		}
	}
	return true
}

// SiteTolerance is the fractional distance below which two symmetry images
// of the same species are merged.
const SiteTolerance = 1e-4

// Expand applies every operation to every site and returns the distinct
// images, wrapped into the unit cell. Images keep the label, species and
// occupancy of their source site.
func Expand(sites []Site, ops []SymOp) []Site {
	if len(ops) == 0 {
		ops = []SymOp{Identity}
	}

	var out []Site
	for _, site := range sites {
		start := len(out)
		for _, op := range ops {
			pos := wrap(op.Apply(site.Frac))
			dup := false
			for _, seen := range out[start:] {
				if seen.Species == site.Species && samePosition(seen.Frac, pos, SiteTolerance) {
					dup = true
					break
				}
			}
			if !dup {
				img := site
				img.Frac = pos
				out = append(out, img)
			}
		}
	}
	return out
}
