package model

import (
	"strconv"
	"strings"
)

// RawLine is one complete line read from the followed log file.
type RawLine struct {
	Text   string `json:"text"`
	Source string `json:"source"` // resolved file path the line came from
}

// LogEvent is the structured form of one access-log line.
// Empty strings and nil pointers mean the field was absent ("-" in nginx).
type LogEvent struct {
	Pool                 string   `json:"pool,omitempty"`
	Release              string   `json:"release,omitempty"`
	UpstreamStatus       string   `json:"upstream_status,omitempty"` // may hold several codes, e.g. "502, 200"
	UpstreamAddr         string   `json:"upstream_addr,omitempty"`
	RequestTime          *float64 `json:"request_time,omitempty"`
	UpstreamResponseTime *float64 `json:"upstream_response_time,omitempty"`
	HTTPStatus           int      `json:"status,omitempty"` // client-facing status, 0 when absent
}

// IsServerError reports whether the request ended in a 5xx.
// Any 5xx among the upstream attempts counts; the client status is only
// consulted when the upstream status holds no numeric code.
func (e LogEvent) IsServerError() bool {
	codes := UpstreamCodes(e.UpstreamStatus)
	if len(codes) == 0 {
		return isServerError(e.HTTPStatus)
	}
	for _, c := range codes {
		if isServerError(c) {
			return true
		}
	}
	return false
}

// UpstreamCodes splits an nginx $upstream_status value ("502, 504 : 200")
// into its numeric codes. Non-numeric parts such as "-" are skipped.
func UpstreamCodes(s string) []int {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == ',' || r == ':'
	})
	var codes []int
	for _, f := range fields {
		if c, err := strconv.Atoi(f); err == nil {
			codes = append(codes, c)
		}
	}
	return codes
}

func isServerError(code int) bool {
	return code >= 500 && code <= 599
}
