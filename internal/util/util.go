package util

import (
	"github.com/google/uuid"
	"github.com/lithammer/shortuuid/v4"
)

// GenUUID generates a random UUID string for persisted rows.
func GenUUID() string {
	return uuid.New().String()
}

// GenShortID generates a compact, URL-safe identifier for transient records.
func GenShortID() string {
	return shortuuid.New()
}
