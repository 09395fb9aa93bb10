package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const textLine = `172.18.0.1 - - [17/Feb/2026:12:00:00 +0000] "GET /version HTTP/1.1" 200 57 "-" "curl/8.5.0" ` +
	`pool:blue release:blue-v1.0.0 upstatus:200 upaddr:172.18.0.3:3000 req_time:0.004 upr_time:0.003`

func TestTextParser(t *testing.T) {
	p := NewTextParser()

	ev, ok := p.Parse(textLine)
	require.True(t, ok)

	assert.Equal(t, "blue", ev.Pool)
	assert.Equal(t, "blue-v1.0.0", ev.Release)
	assert.Equal(t, "200", ev.UpstreamStatus)
	assert.Equal(t, "172.18.0.3:3000", ev.UpstreamAddr)
	require.NotNil(t, ev.RequestTime)
	assert.InDelta(t, 0.004, *ev.RequestTime, 1e-9)
	require.NotNil(t, ev.UpstreamResponseTime)
	assert.InDelta(t, 0.003, *ev.UpstreamResponseTime, 1e-9)
	assert.Equal(t, 200, ev.HTTPStatus)
	assert.False(t, ev.IsServerError())
}

func TestTextParserRetriedUpstreams(t *testing.T) {
	p := NewTextParser()

	line := `10.0.0.1 - - [17/Feb/2026:12:00:00 +0000] "GET /version HTTP/1.1" 200 57 ` +
		`pool:green release:green-v2 upstatus:502, 200 upaddr:10.0.0.2:3000, 10.0.0.3:3000 req_time:0.020 upr_time:0.012, 0.006`

	ev, ok := p.Parse(line)
	require.True(t, ok)

	assert.Equal(t, "502, 200", ev.UpstreamStatus)
	assert.Equal(t, "10.0.0.2:3000, 10.0.0.3:3000", ev.UpstreamAddr)
	require.NotNil(t, ev.UpstreamResponseTime)
	assert.InDelta(t, 0.018, *ev.UpstreamResponseTime, 1e-9)
	assert.True(t, ev.IsServerError(), "a 5xx attempt counts even when the retry succeeded")
}

func TestTextParserDashValues(t *testing.T) {
	p := NewTextParser()

	line := `10.0.0.1 - - [17/Feb/2026:12:00:00 +0000] "GET / HTTP/1.1" 503 0 ` +
		`pool:- release:- upstatus:- upaddr:- req_time:0.000 upr_time:-`

	ev, ok := p.Parse(line)
	require.True(t, ok)

	assert.Empty(t, ev.Pool)
	assert.Empty(t, ev.UpstreamStatus)
	assert.Nil(t, ev.UpstreamResponseTime)
	assert.Equal(t, 503, ev.HTTPStatus)
	assert.True(t, ev.IsServerError(), "falls back to the client status without upstream codes")
}

func TestTextParserRejects(t *testing.T) {
	p := NewTextParser()

	cases := map[string]string{
		"empty":           "",
		"plain text":      "nginx: worker process started",
		"missing pool":    `"GET / HTTP/1.1" 200 0 release:v1 upstatus:200 upaddr:a:1 req_time:0.1 upr_time:0.1`,
		"missing status":  `pool:blue release:v1 upstatus:200 upaddr:a:1 req_time:0.1 upr_time:0.1`,
		"bad req_time":    `"GET / HTTP/1.1" 200 0 pool:blue release:v1 upstatus:200 upaddr:a:1 req_time:fast upr_time:0.1`,
		"bad upr_time":    `"GET / HTTP/1.1" 200 0 pool:blue release:v1 upstatus:200 upaddr:a:1 req_time:0.1 upr_time:0.1x`,
		"nan timing":      `"GET / HTTP/1.1" 200 0 pool:blue release:v1 upstatus:200 upaddr:a:1 req_time:NaN upr_time:0.1`,
		"status too high": `"GET / HTTP/1.1" 700 0 pool:blue release:v1 upstatus:200 upaddr:a:1 req_time:0.1 upr_time:0.1`,
	}

	for name, line := range cases {
		t.Run(name, func(t *testing.T) {
			_, ok := p.Parse(line)
			assert.False(t, ok)
		})
	}
}

func TestJSONParser(t *testing.T) {
	p := NewJSONParser()

	ev, ok := p.Parse(`{"pool":"green","release":"green-v2","upstream_status":"500","upstream_addr":"10.0.0.4:3000","request_time":0.25,"upstream_response_time":"0.24","status":500}`)
	require.True(t, ok)

	assert.Equal(t, "green", ev.Pool)
	assert.Equal(t, "green-v2", ev.Release)
	assert.Equal(t, "500", ev.UpstreamStatus)
	assert.Equal(t, "10.0.0.4:3000", ev.UpstreamAddr)
	require.NotNil(t, ev.RequestTime)
	assert.InDelta(t, 0.25, *ev.RequestTime, 1e-9)
	require.NotNil(t, ev.UpstreamResponseTime)
	assert.InDelta(t, 0.24, *ev.UpstreamResponseTime, 1e-9)
	assert.Equal(t, 500, ev.HTTPStatus)
	assert.True(t, ev.IsServerError())
}

func TestJSONParserOptionalFields(t *testing.T) {
	p := NewJSONParser()

	ev, ok := p.Parse(`{"status":"404","upstream_response_time":"-"}`)
	require.True(t, ok)

	assert.Empty(t, ev.Pool)
	assert.Nil(t, ev.RequestTime)
	assert.Nil(t, ev.UpstreamResponseTime)
	assert.Equal(t, 404, ev.HTTPStatus)
	assert.False(t, ev.IsServerError())
}

func TestJSONParserRejects(t *testing.T) {
	p := NewJSONParser()

	cases := map[string]string{
		"not json":       "not json at all",
		"truncated":      `{"pool":"blue","status":200`,
		"no status":      `{"pool":"blue"}`,
		"array":          `[1,2,3]`,
		"bad timing":     `{"status":200,"request_time":"slow"}`,
		"timing object":  `{"status":200,"request_time":{"v":1}}`,
		"fraction code":  `{"status":200.5}`,
		"status as text": `{"status":"ok"}`,
	}

	for name, line := range cases {
		t.Run(name, func(t *testing.T) {
			_, ok := p.Parse(line)
			assert.False(t, ok)
		})
	}
}

func TestNew(t *testing.T) {
	p, err := New("text")
	require.NoError(t, err)
	assert.IsType(t, &TextParser{}, p)

	p, err = New("JSON")
	require.NoError(t, err)
	assert.IsType(t, &JSONParser{}, p)

	_, err = New("clf")
	assert.Error(t, err)
}
