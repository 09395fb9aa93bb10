package parser

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/atikulmunna/loomwatch/internal/model"
	"github.com/tidwall/gjson"
)

// Parser converts a raw access-log line into a LogEvent.
// The boolean is false when the line does not match the schema; that is an
// expected outcome, not an error.
type Parser interface {
	Parse(line string) (model.LogEvent, bool)
}

// Supported schema names for New.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// New returns the parser for the named schema.
func New(format string) (Parser, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case FormatText, "":
		return NewTextParser(), nil
	case FormatJSON:
		return NewJSONParser(), nil
	default:
		return nil, fmt.Errorf("unknown log format %q (want %s or %s)", format, FormatText, FormatJSON)
	}
}

// ---------------------------------------------------------------------------
// Text Parser (labeled nginx tokens)
// ---------------------------------------------------------------------------

// multi matches one nginx variable value, which may be several values joined
// by ", " (retries) or " : " (internal redirects).
const multi = `[^\s,]+(?:(?:, | : )[^\s,]+)*`

// TextParser handles lines written by the deployment's nginx log_format:
//
//	... "GET /path HTTP/1.1" 502 ... pool:blue release:v1 upstatus:502, 200 upaddr:10.0.0.2:80 req_time:0.010 upr_time:0.008
type TextParser struct {
	fields *regexp.Regexp
	status *regexp.Regexp
}

func NewTextParser() *TextParser {
	return &TextParser{
		fields: regexp.MustCompile(
			`pool:(\S+) release:(\S+) upstatus:(` + multi + `) ` +
				`upaddr:(` + multi + `) req_time:(\S+) upr_time:(` + multi + `)`),
		status: regexp.MustCompile(`"\S+\s+\S+\s+\S+"\s+(\d{3})`),
	}
}

func (p *TextParser) Parse(line string) (model.LogEvent, bool) {
	f := p.fields.FindStringSubmatch(line)
	s := p.status.FindStringSubmatch(line)
	if f == nil || s == nil {
		return model.LogEvent{}, false
	}

	status, ok := parseStatus(s[1])
	if !ok {
		return model.LogEvent{}, false
	}
	reqTime, ok := parseTiming(f[5])
	if !ok {
		return model.LogEvent{}, false
	}
	uprTime, ok := parseTiming(f[6])
	if !ok {
		return model.LogEvent{}, false
	}

	return model.LogEvent{
		Pool:                 orEmpty(f[1]),
		Release:              orEmpty(f[2]),
		UpstreamStatus:       orEmpty(f[3]),
		UpstreamAddr:         orEmpty(f[4]),
		RequestTime:          reqTime,
		UpstreamResponseTime: uprTime,
		HTTPStatus:           status,
	}, true
}

// ---------------------------------------------------------------------------
// JSON Parser
// ---------------------------------------------------------------------------

// JSONParser handles one JSON object per line with the keys pool, release,
// upstream_status, upstream_addr, request_time, upstream_response_time and
// status. Only status is required.
type JSONParser struct{}

func NewJSONParser() *JSONParser { return &JSONParser{} }

func (p *JSONParser) Parse(line string) (model.LogEvent, bool) {
	line = strings.TrimSpace(line)
	if len(line) == 0 || line[0] != '{' || !gjson.Valid(line) {
		return model.LogEvent{}, false
	}

	r := gjson.GetMany(line, "pool", "release", "upstream_status", "upstream_addr",
		"request_time", "upstream_response_time", "status")

	status, ok := jsonStatus(r[6])
	if !ok {
		return model.LogEvent{}, false
	}
	reqTime, ok := jsonTiming(r[4])
	if !ok {
		return model.LogEvent{}, false
	}
	uprTime, ok := jsonTiming(r[5])
	if !ok {
		return model.LogEvent{}, false
	}

	return model.LogEvent{
		Pool:                 orEmpty(r[0].String()),
		Release:              orEmpty(r[1].String()),
		UpstreamStatus:       orEmpty(r[2].String()),
		UpstreamAddr:         orEmpty(r[3].String()),
		RequestTime:          reqTime,
		UpstreamResponseTime: uprTime,
		HTTPStatus:           status,
	}, true
}

func jsonStatus(r gjson.Result) (int, bool) {
	switch r.Type {
	case gjson.Number:
		f := r.Float()
		if f != float64(int(f)) {
			return 0, false
		}
		return validStatus(int(f))
	case gjson.String:
		return parseStatus(r.Str)
	default:
		return 0, false
	}
}

func jsonTiming(r gjson.Result) (*float64, bool) {
	switch r.Type {
	case gjson.Null:
		return nil, true
	case gjson.Number:
		v := r.Float()
		return &v, true
	case gjson.String:
		return parseTiming(r.Str)
	default:
		return nil, false
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// orEmpty maps nginx's "-" placeholder to an absent value.
func orEmpty(s string) string {
	if s == "-" {
		return ""
	}
	return s
}

func parseStatus(s string) (int, bool) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return validStatus(n)
}

func validStatus(n int) (int, bool) {
	if n < 100 || n > 599 {
		return 0, false
	}
	return n, true
}

// parseTiming parses an nginx timing value. "-" or empty means absent; a
// joined list ("0.002, 0.004") is summed. Anything else unparsable fails.
func parseTiming(s string) (*float64, bool) {
	if s == "" || s == "-" {
		return nil, true
	}
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == ',' || r == ':'
	})
	var (
		total float64
		seen  bool
	)
	for _, part := range parts {
		if part == "-" {
			continue
		}
		v, err := strconv.ParseFloat(part, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return nil, false
		}
		total += v
		seen = true
	}
	if !seen {
		return nil, true
	}
	return &total, true
}
