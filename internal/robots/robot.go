package robots

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/rohmanhakim/docs-crawler/internal/metadata"
	"github.com/rohmanhakim/docs-crawler/internal/robots/cache"
)

/*
Responsibilities

- Fetch robots.txt per host
- Cache rules for crawl duration
- Enforce allow/disallow rules before enqueue

Robots checks occur before a URL enters the frontier.
*/

// Robot decides whether a URL may be crawled under a given user agent's
// robots.txt rules. CachedRobot is the only production implementation.
type Robot interface {
	Init(userAgent string)
	Decide(targetURL url.URL) (Decision, *RobotsError)
}

// CachedRobot fetches robots.txt once per host (via RobotsFetcher's own
// cache) and evaluates allow/disallow precedence against it per URL.
type CachedRobot struct {
	sink      metadata.MetadataSink
	userAgent string
	fetcher   *RobotsFetcher
}

// NewCachedRobot constructs a CachedRobot that has not yet been initialized.
// Init or InitWithCache must be called before Decide is used.
func NewCachedRobot(sink metadata.MetadataSink) CachedRobot {
	return CachedRobot{sink: sink}
}

// Init binds the robot to a user agent, using a fresh in-memory cache.
func (r *CachedRobot) Init(userAgent string) {
	r.InitWithCache(userAgent, cache.NewMemoryCache())
}

// InitWithCache binds the robot to a user agent using a caller-supplied
// cache, letting callers share a robots.txt cache across robots or tests.
func (r *CachedRobot) InitWithCache(userAgent string, c cache.Cache) {
	r.userAgent = userAgent
	r.fetcher = NewRobotsFetcher(r.sink, userAgent, c)
}

// Decide fetches (or reuses the cached) robots.txt for targetURL's host and
// reports whether the path may be crawled under this robot's user agent.
func (r *CachedRobot) Decide(targetURL url.URL) (Decision, *RobotsError) {
	scheme := targetURL.Scheme
	if scheme == "" {
		scheme = "https"
	}

	result, err := r.fetcher.Fetch(context.Background(), scheme, targetURL.Hostname())
	if err != nil {
		if r.sink != nil {
			r.sink.RecordError(
				time.Now(),
				"robots",
				"CachedRobot.Decide",
				mapRobotsErrorToMetadataCause(err),
				err.Error(),
				[]metadata.Attribute{
					metadata.NewAttr(metadata.AttrURL, targetURL.String()),
					metadata.NewAttr(metadata.AttrHost, targetURL.Hostname()),
				},
			)
		}
		return Decision{}, err
	}

	rs := MapResponseToRuleSet(result.Response, r.userAgent, result.FetchedAt)
	allowed, reason := decidePath(rs, requestPath(targetURL))

	decision := Decision{
		Url:     targetURL,
		Allowed: allowed,
		Reason:  reason,
	}
	if delay := rs.CrawlDelay(); delay != nil {
		decision.CrawlDelay = *delay
	}
	return decision, nil
}

// requestPath reassembles the path and query robots.txt rules are matched
// against, defaulting an empty path to "/".
func requestPath(u url.URL) string {
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return path
}

// decidePath applies standard robots.txt precedence: the longest matching
// rule wins, and an allow rule wins a tie against a disallow rule of the
// same matched length.
func decidePath(rs ruleSet, path string) (bool, DecisionReason) {
	if !rs.hasGroups {
		return true, EmptyRuleSet
	}
	if !rs.matchedGroup {
		return true, UserAgentNotMatched
	}

	allowLen := bestMatchLength(rs.AllowRules(), path)
	disallowLen := bestMatchLength(rs.DisallowRules(), path)

	if allowLen < 0 && disallowLen < 0 {
		return true, NoMatchingRules
	}
	if allowLen >= disallowLen {
		return true, AllowedByRobots
	}
	return false, DisallowedByRobots
}

// bestMatchLength returns the length of the longest rule pattern matching
// path, or -1 if none match.
func bestMatchLength(rules []pathRule, path string) int {
	best := -1
	for _, rule := range rules {
		if matchesPattern(path, rule.Prefix()) && len(rule.Prefix()) > best {
			best = len(rule.Prefix())
		}
	}
	return best
}

// matchesPattern reports whether path matches a robots.txt pattern that may
// contain "*" wildcards and a trailing "$" end-of-path anchor.
func matchesPattern(path, pattern string) bool {
	anchored := strings.HasSuffix(pattern, "$")
	if anchored {
		pattern = pattern[:len(pattern)-1]
	}

	segments := strings.Split(pattern, "*")
	pos := 0
	for i, seg := range segments {
		if seg == "" {
			continue
		}
		idx := strings.Index(path[pos:], seg)
		if idx == -1 {
			return false
		}
		if i == 0 && idx != 0 {
			return false
		}
		pos += idx + len(seg)
	}
	if anchored {
		return pos == len(path)
	}
	return true
}
