package tabular

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
)

// maxJSONLineBytes bounds a single newline-delimited JSON record.
const maxJSONLineBytes = 16 << 20

// ErrNotJSONObject indicates a record that is not a JSON object.
var ErrNotJSONObject = errors.New("record is not a JSON object")

// loadJSON reads either a JSON array of objects or newline-delimited JSON.
// Columns appear in first-seen key order; keys absent from a row are null.
func (l *Loader) loadJSON(ctx context.Context, path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	records, err := splitJSONRecords(data)
	if err != nil {
		return nil, err
	}

	var (
		order []string
		cells = map[string][]any{}
	)

	for n, record := range records {
		if n%rowsPerContextCheck == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		keys, values, err := decodeRecord(record)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", n+1, err)
		}

		for _, key := range keys {
			if _, seen := cells[key]; !seen {
				order = append(order, key)
				cells[key] = make([]any, n) // nulls for rows before the key appeared
			}
		}

		for _, key := range order {
			cells[key] = append(cells[key], values[key]) // nil when absent
		}
	}

	columns := make([]*Column, len(order))
	for i, name := range order {
		columns[i] = resolveJSONColumn(name, cells[name])
	}

	table, err := NewTable(columns...)
	if err != nil {
		return nil, fmt.Errorf("assemble table: %w", err)
	}

	return table, nil
}

// splitJSONRecords returns one raw JSON object per row.
func splitJSONRecords(data []byte) ([][]byte, error) {
	trimmed := bytes.TrimSpace(data)

	if len(trimmed) > 0 && trimmed[0] == '[' {
		var records []json.RawMessage
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, err
		}

		out := make([][]byte, len(records))
		for i, r := range records {
			out[i] = r
		}

		return out, nil
	}

	var records [][]byte

	scanner := bufio.NewScanner(bytes.NewReader(trimmed))
	scanner.Buffer(make([]byte, 0, 64*1024), maxJSONLineBytes)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		records = append(records, append([]byte(nil), line...))
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return records, nil
}

// decodeRecord parses one JSON object, preserving key order.
func decodeRecord(data []byte) ([]string, map[string]any, error) {
	keys, err := objectKeys(data)
	if err != nil {
		return nil, nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, nil, err
	}

	values := make(map[string]any, len(raw))
	for k, v := range raw {
		values[k] = normalizeJSONValue(v)
	}

	return keys, values, nil
}

// objectKeys returns the top-level keys of a JSON object in document order.
func objectKeys(data []byte) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, ErrNotJSONObject
	}

	var (
		keys      []string
		depth     = 1
		expectKey = true
	)

	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}

		switch v := tok.(type) {
		case json.Delim:
			switch v {
			case '{', '[':
				depth++
			case '}', ']':
				depth--
				if depth == 1 {
					expectKey = true
				}
			}
		case string:
			if depth == 1 && expectKey {
				keys = append(keys, v)
				expectKey = false
			} else if depth == 1 {
				expectKey = true
			}
		default:
			if depth == 1 {
				expectKey = true
			}
		}
	}

	return keys, nil
}

// normalizeJSONValue maps decoded JSON values onto cell types. Numbers
// become int64 when integral, float64 otherwise. Nested structures are
// re-marshaled into strings.
func normalizeJSONValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case json.Number:
		if n, err := strconv.ParseInt(val.String(), 10, 64); err == nil {
			return n
		}

		f, _ := val.Float64()

		return f
	case string:
		return val
	case bool:
		return val
	default:
		encoded, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}

		return string(encoded)
	}
}

// resolveJSONColumn picks a dtype for loosely typed JSON cells, widening
// mixed int/float columns to float64 and recognizing timestamp strings.
func resolveJSONColumn(name string, cells []any) *Column {
	allInt, allNumeric, allBool, allString := true, true, true, true
	nonNull := 0

	for _, v := range cells {
		if v == nil {
			continue
		}

		nonNull++

		switch v.(type) {
		case int64:
			allBool, allString = false, false
		case float64:
			allInt, allBool, allString = false, false, false
		case bool:
			allInt, allNumeric, allString = false, false, false
		case string:
			allInt, allNumeric, allBool = false, false, false
		default:
			allInt, allNumeric, allBool, allString = false, false, false, false
		}
	}

	switch {
	case nonNull == 0:
		return newColumn(name, DTypeString, cells)
	case allInt:
		return newColumn(name, DTypeInt, cells)
	case allNumeric:
		widened := make([]any, len(cells))

		for i, v := range cells {
			switch n := v.(type) {
			case int64:
				widened[i] = float64(n)
			case float64:
				widened[i] = n
			}
		}

		return newColumn(name, DTypeFloat, widened)
	case allBool:
		return newColumn(name, DTypeBool, cells)
	case allString:
		return resolveStringColumn(name, cells)
	default:
		stringified := make([]any, len(cells))

		for i, v := range cells {
			if v != nil {
				stringified[i] = stringifyCell(v)
			}
		}

		return newColumn(name, DTypeString, stringified)
	}
}

// resolveStringColumn promotes a string column to timestamp when every
// non-null cell parses as one.
func resolveStringColumn(name string, cells []any) *Column {
	parsed := make([]any, len(cells))

	for i, v := range cells {
		if v == nil {
			continue
		}

		s, _ := v.(string)

		t, ok := ParseTimestamp(s)
		if !ok {
			return newColumn(name, DTypeString, cells)
		}

		parsed[i] = t
	}

	return newColumn(name, DTypeTimestamp, parsed)
}

func stringifyCell(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprint(val)
	}
}
