package tabular

import (
	"strconv"
	"strings"
	"time"
)

// nullTokens are cell spellings treated as null when reading text formats.
var nullTokens = map[string]struct{}{
	"":     {},
	"null": {},
	"NULL": {},
	"None": {},
	"NA":   {},
	"N/A":  {},
	"n/a":  {},
	"NaN":  {},
	"nan":  {},
}

// timestampFormats are tried in order when inferring timestamp columns.
var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func isNullToken(s string) bool {
	_, ok := nullTokens[s]
	return ok
}

// ParseTimestamp parses s against the timestamp layouts the loader
// recognizes, returning the time in UTC.
func ParseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timestampFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}

	return time.Time{}, false
}

func parseBoolToken(s string) (bool, bool) {
	switch {
	case strings.EqualFold(s, "true"):
		return true, true
	case strings.EqualFold(s, "false"):
		return false, true
	default:
		return false, false
	}
}

// inferColumn scans raw text cells and materializes the narrowest dtype
// every non-null cell satisfies: int64, float64, bool, timestamp, object.
func inferColumn(name string, raw []string) *Column {
	canInt, canFloat, canBool, canTime := true, true, true, true
	nonNull := 0

	for _, s := range raw {
		if isNullToken(s) {
			continue
		}

		nonNull++

		if canInt {
			if _, err := strconv.ParseInt(s, 10, 64); err != nil {
				canInt = false
			}
		}

		if canFloat {
			if _, err := strconv.ParseFloat(s, 64); err != nil {
				canFloat = false
			}
		}

		if canBool {
			if _, ok := parseBoolToken(s); !ok {
				canBool = false
			}
		}

		if canTime {
			if _, ok := ParseTimestamp(s); !ok {
				canTime = false
			}
		}

		if !canInt && !canFloat && !canBool && !canTime {
			break
		}
	}

	dtype := DTypeString

	switch {
	case nonNull == 0:
		dtype = DTypeString
	case canInt:
		dtype = DTypeInt
	case canFloat:
		dtype = DTypeFloat
	case canBool:
		dtype = DTypeBool
	case canTime:
		dtype = DTypeTimestamp
	}

	cells := make([]any, len(raw))

	for i, s := range raw {
		if isNullToken(s) {
			continue
		}

		switch dtype {
		case DTypeInt:
			n, _ := strconv.ParseInt(s, 10, 64)
			cells[i] = n
		case DTypeFloat:
			f, _ := strconv.ParseFloat(s, 64)
			cells[i] = f
		case DTypeBool:
			b, _ := parseBoolToken(s)
			cells[i] = b
		case DTypeTimestamp:
			t, _ := ParseTimestamp(s)
			cells[i] = t
		case DTypeString:
			cells[i] = s
		}
	}

	return newColumn(name, dtype, cells)
}
