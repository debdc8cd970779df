package http

import (
	"time"

	xutil "PowerDesk/pkg/util"
)

// ParseTimeDefault parses a time or returns def if empty/invalid.
func ParseTimeDefault(s string, def time.Time) time.Time { return xutil.ParseTimeDefault(s, def) }

// ClientKey identifies the caller for rate limiting: the X-Client-ID header
// when present, otherwise the remote IP.
func ClientKey(header, realIP string) string {
	if header != "" {
		return header
	}
	return realIP
}
