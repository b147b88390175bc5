package stream

import "reflect"

// maxStringLen bounds any string stored in a progress event.
const maxStringLen = 256

// Sanitize bounds an event payload: strings are clipped, slices and maps
// are replaced by their element counts, nested values collapse to scalars.
// The result's memory footprint is independent of pipeline input size.
func Sanitize(data map[string]interface{}) map[string]interface{} {
	if data == nil {
		return nil
	}
	out := make(map[string]interface{}, len(data))
	for k, v := range data {
		out[k] = sanitizeValue(v)
	}
	return out
}

func sanitizeValue(v interface{}) interface{} {
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		return clipString(val)
	case bool, int, int32, int64, float32, float64:
		return val
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len()
	default:
		return clipString(reflect.TypeOf(v).String())
	}
}

func clipString(s string) string {
	if len(s) <= maxStringLen {
		return s
	}
	return s[:maxStringLen] + "..."
}
