package robots

import (
	"net/url"
	"regexp"
	"strings"
	"sync"
)

// patternRegexCache memoizes the compiled regex for a raw robots.txt pattern
// since the same handful of patterns are tested against every path on a host.
var patternRegexCache sync.Map // map[string]*regexp.Regexp

// patternToRegex translates a robots.txt path pattern into an anchored regex:
// `*` becomes `.*`, a trailing `$` anchors the end of the string, all other
// characters are literal. Matching always starts at the beginning of the path.
func patternToRegex(pattern string) *regexp.Regexp {
	if cached, ok := patternRegexCache.Load(pattern); ok {
		return cached.(*regexp.Regexp)
	}

	anchored := strings.HasSuffix(pattern, "$")
	body := strings.TrimSuffix(pattern, "$")

	var b strings.Builder
	b.WriteString("^")
	for _, part := range strings.Split(body, "*") {
		b.WriteString(regexp.QuoteMeta(part))
		b.WriteString(".*")
	}
	expr := strings.TrimSuffix(b.String(), ".*")
	if anchored {
		expr += "$"
	}

	re := regexp.MustCompile(expr)
	patternRegexCache.Store(pattern, re)
	return re
}

// longestMatch returns the length of the longest pattern among rules that
// matches path, or -1 if none match.
func longestMatch(rules []pathRule, path string) int {
	best := -1
	for _, rule := range rules {
		re := patternToRegex(rule.Prefix())
		if re.MatchString(path) {
			if length := len(rule.Prefix()); length > best {
				best = length
			}
		}
	}
	return best
}

// Allowed applies the longest-match, allow-wins-ties decision procedure
// described in the robots policy: compute the longest matching allow
// pattern length A and longest matching disallow pattern length D; if
// neither matches, allow; otherwise allow iff A >= D.
func Allowed(rs ruleSet, target url.URL) Decision {
	path := target.Path
	if path == "" {
		path = "/"
	}
	if target.RawQuery != "" {
		path += "?" + target.RawQuery
	}

	if !rs.hasGroups {
		return Decision{Url: target, Allowed: true, Reason: EmptyRuleSet, CrawlDelay: rs.CrawlDelay()}
	}
	if !rs.matchedGroup {
		return Decision{Url: target, Allowed: true, Reason: UserAgentNotMatched, CrawlDelay: rs.CrawlDelay()}
	}

	allowRules := rs.AllowRules()
	disallowRules := rs.DisallowRules()
	if len(allowRules) == 0 && len(disallowRules) == 0 {
		return Decision{Url: target, Allowed: true, Reason: NoMatchingRules, CrawlDelay: rs.CrawlDelay()}
	}

	allowLen := longestMatch(allowRules, path)
	disallowLen := longestMatch(disallowRules, path)

	if allowLen == -1 && disallowLen == -1 {
		return Decision{Url: target, Allowed: true, Reason: NoMatchingRules, CrawlDelay: rs.CrawlDelay()}
	}

	allowed := allowLen >= disallowLen
	reason := DisallowedByRobots
	if allowed {
		reason = AllowedByRobots
	}
	return Decision{Url: target, Allowed: allowed, Reason: reason, CrawlDelay: rs.CrawlDelay()}
}
