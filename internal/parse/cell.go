package parse

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// EpochSeconds converts a wire cell holding seconds since the epoch into a time.
// Null, empty and zero cells mean "no timestamp" and return nil without error.
func EpochSeconds(v any) (*time.Time, error) {
	secs, err := Number(v)
	if err != nil {
		return nil, fmt.Errorf("invalid epoch seconds: %w", err)
	}
	if secs == 0 {
		return nil, nil
	}
	whole, frac := math.Modf(secs)
	t := time.Unix(int64(whole), int64(math.Round(frac*1e3))*int64(time.Millisecond)).UTC()
	return &t, nil
}

// Number converts a wire cell into a finite float. Null and empty cells are zero.
func Number(v any) (float64, error) {
	n, err := number(v)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, fmt.Errorf("non-finite number %v", v)
	}
	return n, nil
}

func number(v any) (float64, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0, nil
		}
		return strconv.ParseFloat(s, 64)
	case bool:
		if n {
			return 0, fmt.Errorf("unexpected boolean %v", n)
		}
		return 0, nil
	}
	return 0, fmt.Errorf("unsupported numeric value of type %T", v)
}

// Text converts a wire cell into a string. Null cells are empty.
func Text(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case json.Number:
		return s.String()
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}
