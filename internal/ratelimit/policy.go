package ratelimit

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"chatrelay/internal/config"
)

// Messages returned to clients when a request is refused.
const (
	MsgBlacklisted = "您的IP已被加入黑名单，请联系管理员"
	MsgMalicious   = "检测到恶意内容，请求被拒绝"
	MsgTooMany     = "请求过于频繁，请稍后再试"
)

// Request is the part of an inbound HTTP request the policy looks at.
type Request struct {
	IP       string
	Endpoint string
	Body     []byte
	Header   http.Header
	Query    url.Values
}

// Rejection describes why a request was refused.
type Rejection struct {
	Status  int
	Message string
	// RetryAfter is set in seconds for rate-limit rejections.
	RetryAfter int
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%d: %s", r.Status, r.Message)
}

// Policy applies the blacklist, content inspection and rate limits in that order.
type Policy struct {
	limiter   *Limiter
	inspector *Inspector
	blacklist *Blacklist
	inspect   map[string]bool
}

// New builds a Policy from configuration.
func New(rules map[string]config.RateLimitRule, abuse config.AbuseConfig) (*Policy, error) {
	inspector, err := NewInspector(abuse.Patterns)
	if err != nil {
		return nil, err
	}

	limits := make(map[string]Rule, len(rules))
	inspect := make(map[string]bool, len(rules))
	for endpoint, rule := range rules {
		limits[endpoint] = Rule{MaxRequests: rule.MaxRequests, Window: rule.Window}
		inspect[endpoint] = rule.BlockMalicious
	}

	return &Policy{
		limiter:   NewLimiter(limits),
		inspector: inspector,
		blacklist: NewBlacklist(abuse.BlacklistDuration),
		inspect:   inspect,
	}, nil
}

// Admit returns nil when req may proceed.
func (p *Policy) Admit(req Request) *Rejection {
	if p.blacklist.Contains(req.IP) {
		slog.Warn("blocked blacklisted ip", "ip", req.IP, "endpoint", req.Endpoint)
		return &Rejection{Status: http.StatusForbidden, Message: MsgBlacklisted}
	}

	if p.inspect[req.Endpoint] {
		if verdict := p.inspector.Inspect(req.Body, req.Header, req.Query); verdict.Dangerous {
			slog.Warn("malicious content detected", "ip", req.IP, "endpoint", req.Endpoint, "reason", verdict.Reason)
			p.blacklist.Add(req.IP)
			return &Rejection{Status: http.StatusBadRequest, Message: MsgMalicious}
		}
	}

	if decision := p.limiter.Check(req.IP, req.Endpoint); !decision.Allowed {
		slog.Warn("rate limit exceeded", "ip", req.IP, "endpoint", req.Endpoint)
		return &Rejection{
			Status:     http.StatusTooManyRequests,
			Message:    MsgTooMany,
			RetryAfter: int(decision.RetryAfter.Seconds()),
		}
	}

	return nil
}

// Prune drops expired limiter windows and blacklist entries.
func (p *Policy) Prune() {
	windows := p.limiter.Prune()
	bans := p.blacklist.Prune()
	if windows > 0 || bans > 0 {
		slog.Debug("pruned rate limit state", "windows", windows, "bans", bans)
	}
}

// Limiter exposes the sliding-window registry.
func (p *Policy) Limiter() *Limiter { return p.limiter }

// Blacklist exposes the IP blacklist.
func (p *Policy) Blacklist() *Blacklist { return p.blacklist }
