package logger

import "go.uber.org/zap"

// MaskPhone creates a zap field that masks a phone number, keeping only a
// leading '+' and the last two digits. Used for auth_request.metadata.phoneNumber
// and any outbound-call destination number that ends up in logs.
func MaskPhone(key, phone string) zap.Field {
	return zap.String(key, maskPhoneNumber(phone))
}

// MaskPhoneIfPresent masks phone if not empty.
func MaskPhoneIfPresent(key, phone string) zap.Field {
	if phone == "" {
		return zap.String(key, "")
	}
	return MaskPhone(key, phone)
}

func maskPhoneNumber(phone string) string {
	if len(phone) <= 4 {
		return "***"
	}
	visible := phone[len(phone)-2:]
	prefix := ""
	if phone[0] == '+' {
		prefix = "+"
		phone = phone[1:]
	}
	maskedLen := len(phone) - 2
	if maskedLen < 0 {
		maskedLen = 0
	}
	masked := ""
	for i := 0; i < maskedLen; i++ {
		masked += "*"
	}
	return prefix + masked + visible
}

func looksLikePhone(val string) bool {
	if len(val) < 8 || len(val) > 16 {
		return false
	}
	start := 0
	if val[0] == '+' {
		start = 1
	}
	if start == len(val) {
		return false
	}
	for i := start; i < len(val); i++ {
		if val[i] < '0' || val[i] > '9' {
			return false
		}
	}
	return true
}
