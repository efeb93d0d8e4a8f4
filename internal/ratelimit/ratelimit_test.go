package ratelimit

import (
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chatrelay/internal/config"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *clock {
	return &clock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func TestLimiterSlidingWindow(t *testing.T) {
	clk := newClock()
	l := NewLimiter(map[string]Rule{"chat": {MaxRequests: 3, Window: time.Minute}})
	l.now = clk.now

	for i := 0; i < 3; i++ {
		require.True(t, l.Check("1.1.1.1", "chat").Allowed)
		clk.advance(10 * time.Second)
	}

	d := l.Check("1.1.1.1", "chat")
	require.False(t, d.Allowed)
	require.Equal(t, time.Minute, d.RetryAfter)

	// Other IPs and endpoints have their own windows.
	require.True(t, l.Check("2.2.2.2", "chat").Allowed)
	require.True(t, l.Check("1.1.1.1", "unlisted").Allowed)

	// The first request leaves the window 60s after it was made.
	clk.advance(30 * time.Second)
	require.True(t, l.Check("1.1.1.1", "chat").Allowed)
	require.False(t, l.Check("1.1.1.1", "chat").Allowed)
}

func TestLimiterClearAndPrune(t *testing.T) {
	clk := newClock()
	l := NewLimiter(map[string]Rule{"chat": {MaxRequests: 1, Window: time.Minute}})
	l.now = clk.now

	require.True(t, l.Check("a", "chat").Allowed)
	require.False(t, l.Check("a", "chat").Allowed)

	l.Clear()
	require.True(t, l.Check("a", "chat").Allowed)

	clk.advance(2 * time.Minute)
	require.Equal(t, 1, l.Prune())
	require.Equal(t, 0, l.Prune())
}

func TestInspector(t *testing.T) {
	in, err := NewInspector(config.DefaultPatterns)
	require.NoError(t, err)

	tests := []struct {
		name   string
		body   string
		header http.Header
		query  url.Values
		danger bool
	}{
		{name: "clean", body: `{"message":"你好"}`},
		{name: "script tag", body: `{"message":"<SCRIPT>alert(1)</script>"}`, danger: true},
		{name: "escaped script tag", body: `{"message":"\u003cscript\u003ealert(1)"}`, danger: true},
		{name: "nested value", body: `{"data":{"notes":["fine","window.location"]}}`, danger: true},
		{name: "event handler", body: `<img onerror = x>`, danger: true},
		{name: "header", header: http.Header{"X-Note": {"javascript:void(0)"}}, danger: true},
		{name: "query", query: url.Values{"q": {"document.cookie"}}, danger: true},
		{name: "cookie skipped", header: http.Header{"Cookie": {"sessionid=abc"}}},
		{name: "content type", header: http.Header{"Content-Type": {"application/json; charset=utf-8"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := in.Inspect([]byte(tt.body), tt.header, tt.query)
			require.Equal(t, tt.danger, v.Dangerous, v.Reason)
		})
	}
}

func TestBlacklistExpiry(t *testing.T) {
	clk := newClock()
	b := NewBlacklist(10 * time.Minute)
	b.now = clk.now

	b.Add("9.9.9.9")
	require.True(t, b.Contains("9.9.9.9"))

	clk.advance(10 * time.Minute)
	require.False(t, b.Contains("9.9.9.9"))
	require.Equal(t, 0, b.Len())

	b.Add("a")
	b.Add("b")
	b.Remove("a")
	require.False(t, b.Contains("a"))
	require.Equal(t, 1, b.Clear())
	require.False(t, b.Contains("b"))
}

func TestPolicyOrder(t *testing.T) {
	p, err := New(map[string]config.RateLimitRule{
		"chat":  {MaxRequests: 1, Window: time.Minute, BlockMalicious: true},
		"voice": {MaxRequests: 5, Window: time.Minute},
	}, config.AbuseConfig{BlacklistDuration: time.Hour, Patterns: config.DefaultPatterns})
	require.NoError(t, err)

	require.Nil(t, p.Admit(Request{IP: "1.1.1.1", Endpoint: "chat", Body: []byte(`{"message":"hi"}`)}))

	rej := p.Admit(Request{IP: "1.1.1.1", Endpoint: "chat"})
	require.NotNil(t, rej)
	require.Equal(t, http.StatusTooManyRequests, rej.Status)
	require.Equal(t, MsgTooMany, rej.Message)
	require.Equal(t, 60, rej.RetryAfter)

	// Voice does not inspect content.
	require.Nil(t, p.Admit(Request{IP: "2.2.2.2", Endpoint: "voice", Body: []byte("<script>")}))

	rej = p.Admit(Request{IP: "2.2.2.2", Endpoint: "chat", Body: []byte("<script>")})
	require.Equal(t, http.StatusBadRequest, rej.Status)
	require.Equal(t, MsgMalicious, rej.Message)

	rej = p.Admit(Request{IP: "2.2.2.2", Endpoint: "voice"})
	require.Equal(t, http.StatusForbidden, rej.Status)
	require.Equal(t, MsgBlacklisted, rej.Message)

	p.Blacklist().Clear()
	require.Nil(t, p.Admit(Request{IP: "2.2.2.2", Endpoint: "voice"}))
}

func TestPolicyRejectsBadPattern(t *testing.T) {
	_, err := New(nil, config.AbuseConfig{BlacklistDuration: time.Minute, Patterns: []string{"("}})
	require.Error(t, err)
}
