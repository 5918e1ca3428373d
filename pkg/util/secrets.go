// SPDX-FileCopyrightText: © 2025 Nfrastack <code@nfrastack.com>
//
// SPDX-License-Identifier: BSD-3-Clause

package util

import (
	"os"
	"strings"
)

// ReadSecretValue reads a value from a file if it starts with "file://",
// reads from environment variable if it starts with "env://",
// otherwise returns the original value
func ReadSecretValue(value string) string {
	if strings.HasPrefix(value, "file://") {
		content, err := os.ReadFile(strings.TrimPrefix(value, "file://"))
		if err != nil {
			return value
		}
		return strings.TrimSpace(string(content))
	}

	if strings.HasPrefix(value, "env://") {
		if envValue := os.Getenv(strings.TrimPrefix(value, "env://")); envValue != "" {
			return envValue
		}
		return value
	}

	return value
}

// MaskSecret keeps the last four characters of a secret for log output
func MaskSecret(value string) string {
	if value == "" {
		return ""
	}
	if len(value) <= 8 {
		return "****"
	}
	return strings.Repeat("*", 8) + value[len(value)-4:]
}
