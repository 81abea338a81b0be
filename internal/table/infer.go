package table

import (
	"strconv"
	"strings"
)

// missingValues are the cell spellings treated as missing, matching the
// defaults of the pandas CSV reader that produced most dataset files.
var missingValues = map[string]bool{
	"":         true,
	"#N/A":     true,
	"#N/A N/A": true,
	"#NA":      true,
	"-1.#IND":  true,
	"-1.#QNAN": true,
	"-NaN":     true,
	"-nan":     true,
	"1.#IND":   true,
	"1.#QNAN":  true,
	"<NA>":     true,
	"N/A":      true,
	"NA":       true,
	"NULL":     true,
	"NaN":      true,
	"None":     true,
	"n/a":      true,
	"nan":      true,
	"null":     true,
}

// IsMissing reports whether a raw cell denotes a missing value.
func IsMissing(cell string) bool {
	return missingValues[cell]
}

type kind int

const (
	kindUnknown kind = iota
	kindInt
	kindFloat
	kindBool
	kindString
)

// InferColumn picks the narrowest type that fits every non-missing cell:
// int64, then float64, then bool, falling back to string. Missing cells
// become nil.
func InferColumn(cells []string) []any {
	k := kindUnknown
	for _, cell := range cells {
		if IsMissing(cell) {
			continue
		}
		k = widen(k, cell)
		if k == kindString {
			break
		}
	}

	out := make([]any, len(cells))
	for i, cell := range cells {
		if IsMissing(cell) {
			continue
		}
		switch k {
		case kindInt:
			n, _ := strconv.ParseInt(strings.TrimSpace(cell), 10, 64)
			out[i] = n
		case kindFloat:
			f, _ := strconv.ParseFloat(strings.TrimSpace(cell), 64)
			out[i] = f
		case kindBool:
			out[i], _ = parseBool(cell)
		default:
			out[i] = cell
		}
	}
	return out
}

// widen returns the narrowest kind covering both k and cell.
func widen(k kind, cell string) kind {
	s := strings.TrimSpace(cell)
	isInt := func() bool { _, err := strconv.ParseInt(s, 10, 64); return err == nil }
	isFloat := func() bool { _, err := strconv.ParseFloat(s, 64); return err == nil }
	isBool := func() bool { _, ok := parseBool(cell); return ok }

	switch k {
	case kindUnknown:
		switch {
		case isInt():
			return kindInt
		case isFloat():
			return kindFloat
		case isBool():
			return kindBool
		}
	case kindInt:
		switch {
		case isInt():
			return kindInt
		case isFloat():
			return kindFloat
		}
	case kindFloat:
		if isFloat() {
			return kindFloat
		}
	case kindBool:
		if isBool() {
			return kindBool
		}
	}
	return kindString
}

func parseBool(cell string) (bool, bool) {
	switch strings.TrimSpace(cell) {
	case "True", "true", "TRUE":
		return true, true
	case "False", "false", "FALSE":
		return false, true
	}
	return false, false
}
