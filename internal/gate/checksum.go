package gate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"sqlbeam/internal/domain"
)

// FloatPrecision is the number of fractional digits floating-point
// columns are rounded to before comparison.
const FloatPrecision = 6

// nullMarker renders SQL NULL in the canonical row encoding.
const nullMarker = `\N`

// Fingerprint executes query and reduces its result set to a row count
// and a canonical checksum: each row stringified with floats rounded to
// FloatPrecision, columns tab-joined, the full row set sorted, and the
// whole stream hashed with sha256. Row order in the result set therefore
// never affects the fingerprint.
func Fingerprint(ctx context.Context, exec domain.DatabaseExecutor, query string) (int64, string, int, error) {
	rows, err := exec.QueryRows(ctx, query)
	if err != nil {
		return 0, "", 0, classifyExecError(err, query)
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return 0, "", 0, fmt.Errorf("read columns: %w", err)
	}

	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}

	var encoded []string
	var count int64
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return 0, "", 0, fmt.Errorf("scan row: %w", err)
		}
		encoded = append(encoded, canonicalRow(vals))
		count++
	}
	if err := rows.Err(); err != nil {
		return 0, "", 0, classifyExecError(err, query)
	}

	sort.Strings(encoded)
	h := sha256.New()
	for _, row := range encoded {
		h.Write([]byte(row))
		h.Write([]byte{'\n'})
	}
	return count, hex.EncodeToString(h.Sum(nil)), len(cols), nil
}

// canonicalRow renders one scanned row as a tab-joined string.
func canonicalRow(vals []any) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = canonicalValue(v)
	}
	return strings.Join(parts, "\t")
}

func canonicalValue(v any) string {
	switch x := v.(type) {
	case nil:
		return nullMarker
	case bool:
		return strconv.FormatBool(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', FloatPrecision, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', FloatPrecision, 32)
	case []byte:
		return string(x)
	case string:
		return x
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprintf("%v", x)
	}
}

// classifyExecError maps a deadline expiry onto the timeout error type so
// a slow statement is never conflated with any other failure.
func classifyExecError(err error, query string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.ErrTimeout("statement exceeded its deadline: %s", firstLine(query))
	}
	return err
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 120 {
		s = s[:120] + "..."
	}
	return s
}
