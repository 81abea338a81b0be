package crystal

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/BurntSushi/cif"
)

// ErrNoStructure is returned when a CIF document has no block describing a
// periodic structure.
var ErrNoStructure = errors.New("no structure in CIF")

// Data tags as stored by the cif package: lowercase, without the leading
// underscore.
const (
	tagLengthA    = "cell_length_a"
	tagLengthB    = "cell_length_b"
	tagLengthC    = "cell_length_c"
	tagAngleAlpha = "cell_angle_alpha"
	tagAngleBeta  = "cell_angle_beta"
	tagAngleGamma = "cell_angle_gamma"

	tagSiteLabel     = "atom_site_label"
	tagSiteType      = "atom_site_type_symbol"
	tagSiteX         = "atom_site_fract_x"
	tagSiteY         = "atom_site_fract_y"
	tagSiteZ         = "atom_site_fract_z"
	tagSiteOccupancy = "atom_site_occupancy"

	tagFormulaStructural = "chemical_formula_structural"
	tagFormulaSum        = "chemical_formula_sum"
)

var (
	symopTags      = []string{"symmetry_equiv_pos_as_xyz", "space_group_symop_operation_xyz", "space_group_symop.operation_xyz"}
	spaceGroupTags = []string{"symmetry_space_group_name_h-m", "space_group_name_h-m_alt"}
)

// ParseCIFFile reads the structure from a CIF file on disk.
func ParseCIFFile(path string) (*Structure, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	s, err := ParseCIF(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// ParseCIFString is ParseCIF over in-memory text.
func ParseCIFString(text string) (*Structure, error) {
	return ParseCIF(strings.NewReader(text))
}

// ParseCIF reads the first structure from CIF text and expands it to the
// conventional cell. When a document holds several data blocks, blocks are
// tried in file order and the first with cell parameters and atom sites is
// used.
//
// The cif package stores "?" and "." as 0 in numeric loop columns, so a zero
// occupancy from such a column is read as unknown and defaults to 1.
func ParseCIF(r io.Reader) (*Structure, error) {
	text, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read CIF: %w", err)
	}
	doc, err := cif.Read(bytes.NewReader(text))
	if err != nil {
		return nil, fmt.Errorf("parse CIF: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("parse CIF: malformed document")
	}

	var firstErr error
	for _, name := range blockOrder(text, doc.Blocks) {
		s, err := structureFromBlock(&doc.Blocks[name].Block)
		if err == nil {
			return s, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	if firstErr == nil {
		firstErr = ErrNoStructure
	}
	return nil, firstErr
}

// blockOrder lists the block names in the order their data_ headers appear
// in text. Names not found in the text follow in sorted order.
func blockOrder(text []byte, blocks map[string]*cif.DataBlock) []string {
	names := make([]string, 0, len(blocks))
	seen := make(map[string]bool, len(blocks))
	for _, line := range strings.Split(string(text), "\n") {
		line = strings.TrimLeft(line, " \t")
		if len(line) < 5 || !strings.EqualFold(line[:5], "data_") {
			continue
		}
		fields := strings.Fields(line[5:])
		if len(fields) == 0 {
			continue
		}
		name := strings.ToLower(fields[0])
		if _, ok := blocks[name]; ok && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}

	var rest []string
	for name := range blocks {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	return append(names, rest...)
}

func structureFromBlock(b *cif.Block) (*Structure, error) {
	lat, err := readLattice(b)
	if err != nil {
		return nil, fmt.Errorf("block %q: %w", b.Name, err)
	}

	sites, err := readSites(b)
	if err != nil {
		return nil, fmt.Errorf("block %q: %w", b.Name, err)
	}

	ops, err := readSymOps(b)
	if err != nil {
		return nil, fmt.Errorf("block %q: %w", b.Name, err)
	}

	s := &Structure{
		Name:    b.Name,
		Lattice: lat,
		Sites:   Expand(sites, ops),
	}
	if f, ok := firstString(b, tagFormulaStructural, tagFormulaSum); ok {
		s.Formula = f
	}
	if sg, ok := firstString(b, spaceGroupTags...); ok {
		s.SpaceGroup = sg
	}
	return s, nil
}

func readLattice(b *cif.Block) (Lattice, error) {
	tags := []string{tagLengthA, tagLengthB, tagLengthC, tagAngleAlpha, tagAngleBeta, tagAngleGamma}
	var vals [6]float64
	for i, tag := range tags {
		raw, ok := item(b, tag)
		if !ok {
			return Lattice{}, fmt.Errorf("%w: missing _%s", ErrNoStructure, tag)
		}
		v, ok := parseMeasurement(raw)
		if !ok {
			return Lattice{}, fmt.Errorf("bad value %q for _%s", raw, tag)
		}
		vals[i] = v
	}
	lat := Lattice{A: vals[0], B: vals[1], C: vals[2], Alpha: vals[3], Beta: vals[4], Gamma: vals[5]}
	if lat.A <= 0 || lat.B <= 0 || lat.C <= 0 || math.IsNaN(lat.Volume()) || lat.Volume() <= 0 {
		return Lattice{}, fmt.Errorf("degenerate cell %+v", lat)
	}
	return lat, nil
}

func readSites(b *cif.Block) ([]Site, error) {
	xs, okX := column(b, tagSiteX)
	ys, okY := column(b, tagSiteY)
	zs, okZ := column(b, tagSiteZ)
	if !okX || !okY || !okZ {
		return nil, fmt.Errorf("%w: missing fractional coordinates", ErrNoStructure)
	}
	labels, _ := column(b, tagSiteLabel)
	types, _ := column(b, tagSiteType)
	occs, _ := column(b, tagSiteOccupancy)
	occsNumeric := numericLoop(b, tagSiteOccupancy)

	n := len(xs)
	if len(ys) != n || len(zs) != n {
		return nil, fmt.Errorf("coordinate columns differ in length")
	}

	sites := make([]Site, 0, n)
	for i := 0; i < n; i++ {
		var site Site
		for axis, col := range [][]string{xs, ys, zs} {
			v, ok := parseMeasurement(col[i])
			if !ok {
				return nil, fmt.Errorf("site %d: bad coordinate %q", i, col[i])
			}
			site.Frac[axis] = v
		}

		if i < len(labels) {
			site.Label = labels[i]
		}
		symbol := site.Label
		if i < len(types) && !isNull(types[i]) {
			symbol = types[i]
		}
		site.Species = Element(symbol)
		if site.Species == "" {
			return nil, fmt.Errorf("site %d: no element in %q", i, symbol)
		}
		if site.Label == "" {
			site.Label = site.Species
		}

		site.Occupancy = 1
		if i < len(occs) {
			if v, ok := parseMeasurement(occs[i]); ok && !(occsNumeric && v == 0) {
				site.Occupancy = v
			}
		}
		sites = append(sites, site)
	}
	if len(sites) == 0 {
		return nil, fmt.Errorf("%w: no atom sites", ErrNoStructure)
	}
	return sites, nil
}

func readSymOps(b *cif.Block) ([]SymOp, error) {
	for _, tag := range symopTags {
		raw, ok := column(b, tag)
		if !ok {
			continue
		}
		ops := make([]SymOp, 0, len(raw))
		for _, s := range raw {
			op, err := ParseSymOp(s)
			if err != nil {
				return nil, err
			}
			ops = append(ops, op)
		}
		return ops, nil
	}
	return []SymOp{Identity}, nil
}

// column returns a tag's values whether it was written in a loop or as a
// single item.
func column(b *cif.Block, tag string) ([]string, bool) {
	if lp, ok := b.Loops[tag]; ok {
		return lp.Get(tag).Strings(), true
	}
	if v, ok := item(b, tag); ok {
		return []string{v}, true
	}
	return nil, false
}

// numericLoop reports whether tag is a loop column the cif package converted
// to numbers.
func numericLoop(b *cif.Block, tag string) bool {
	lp, ok := b.Loops[tag]
	if !ok {
		return false
	}
	switch lp.Get(tag).Raw().(type) {
	case []int, []float64:
		return true
	}
	return false
}

func item(b *cif.Block, tag string) (string, bool) {
	v, ok := b.Items[tag]
	if !ok {
		return "", false
	}
	switch raw := v.Raw().(type) {
	case string:
		return raw, true
	case int:
		return strconv.Itoa(raw), true
	case float64:
		return strconv.FormatFloat(raw, 'f', -1, 64), true
	}
	return "", false
}

func firstString(b *cif.Block, tags ...string) (string, bool) {
	for _, tag := range tags {
		if v, ok := item(b, tag); ok && !isNull(v) {
			return strings.TrimSpace(v), true
		}
	}
	return "", false
}

func isNull(s string) bool { return s == "?" || s == "." || s == "" }

// parseMeasurement parses a CIF number, dropping a standard uncertainty
// suffix such as the "(3)" in "3.190(3)".
func parseMeasurement(s string) (float64, bool) {
	if isNull(s) {
		return 0, false
	}
	if i := strings.IndexByte(s, '('); i >= 0 {
		s = s[:i]
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Element extracts the element symbol from a CIF type symbol or site
// label: "Mo1" -> "Mo", "S2-" -> "S", "o" -> "O".
func Element(s string) string {
	var letters []rune
	for _, r := range s {
		if !unicode.IsLetter(r) {
			break
		}
		letters = append(letters, r)
		if len(letters) == 2 {
			break
		}
	}
	if len(letters) == 0 {
		return ""
	}
	out := string(unicode.ToUpper(letters[0]))
	if len(letters) == 2 && unicode.IsLower(letters[1]) {
		out += string(letters[1])
	}
	return out
}
