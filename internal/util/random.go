// Package util provides utility functions shared across radbot components.
package util

import (
	"math/rand/v2"
	"strings"
)

// GenerateRandomID generates a random ID with the specified prefix and hex length.
// The returned ID will be in the format: "{prefix}{hex_string}".
func GenerateRandomID(prefix string, hexLength int) string {
	return prefix + GenerateRandomHex(hexLength)
}

// GenerateRandomHex generates a random hexadecimal string of the specified length.
// Uses math/rand/v2; IDs are identifiers, not secrets.
func GenerateRandomHex(length int) string {
	if length <= 0 {
		return ""
	}

	const hexChars = "0123456789abcdef"
	var builder strings.Builder
	builder.Grow(length)

	for i := 0; i < length; i++ {
		builder.WriteByte(hexChars[rand.IntN(16)])
	}

	return builder.String()
}

// GenerateReminderID generates a unique reminder ID with "rem_" prefix.
func GenerateReminderID() string {
	return GenerateRandomID("rem_", 32)
}

// GenerateTaskID generates a unique scheduled task ID with "task_" prefix.
func GenerateTaskID() string {
	return GenerateRandomID("task_", 32)
}

// GenerateDeliveryID generates a unique delivery item ID with "dlv_" prefix.
func GenerateDeliveryID() string {
	return GenerateRandomID("dlv_", 32)
}
