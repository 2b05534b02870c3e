package utils

import (
	"time"
)

// Request-scoped context keys set by the HTTP handlers
type contextKey string

const (
	RequestIDKey  contextKey = "request_id"
	UserAgentKey  contextKey = "user_agent"
	IPAddressKey  contextKey = "ip_address"
	EndpointKey   contextKey = "endpoint"
	TimeoutKey    contextKey = "timeout"
	CancelFuncKey contextKey = "cancel_func"
)

// CORS and security constants
const (
	// CORSMaxAge is the maximum age for CORS preflight requests (24 hours)
	CORSMaxAge = 86400
)

// Numbering constants
const (
	// DefaultTimezone is the zone used to derive the default year and to render exports
	DefaultTimezone = "America/Sao_Paulo"

	// DefaultTimezoneOffset is used when the zone database is not available (UTC-3)
	DefaultTimezoneOffset = -3 * 60 * 60

	// MinDocumentYear and MaxDocumentYear bound the accepted year of a numbering scope
	MinDocumentYear = 2020
	MaxDocumentYear = 2100

	// MaxDocumentTypeCodeLength is the longest accepted document type code
	MaxDocumentTypeCodeLength = 10

	// RequestTimeout bounds a single API call
	RequestTimeout = 30 * time.Second

	// ExportTimeout bounds a history export
	ExportTimeout = 2 * time.Minute
)
