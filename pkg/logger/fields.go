package logger

import "go.uber.org/zap"

// SafeFields returns zap fields with anything that looks like a phone
// number masked, so session metadata can be logged without extra care at
// each call site.
func SafeFields(fields map[string]interface{}) []zap.Field {
	var zapFields []zap.Field

	for k, v := range fields {
		switch val := v.(type) {
		case string:
			if looksLikePhone(val) {
				zapFields = append(zapFields, MaskPhone(k, val))
			} else {
				zapFields = append(zapFields, zap.String(k, val))
			}
		case int:
			zapFields = append(zapFields, zap.Int(k, val))
		case int64:
			zapFields = append(zapFields, zap.Int64(k, val))
		case int32:
			zapFields = append(zapFields, zap.Int32(k, val))
		case bool:
			zapFields = append(zapFields, zap.Bool(k, val))
		default:
			zapFields = append(zapFields, zap.Any(k, val))
		}
	}

	return zapFields
}
