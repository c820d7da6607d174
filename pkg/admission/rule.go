package admission

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"golang.org/x/net/http/httpguts"
)

// ErrInvalidConfig is wrapped by errors from NewRuleSet and New.
var ErrInvalidConfig = errors.New("invalid admission configuration")

// Rule maps a path pattern to an authentication requirement.
//
// Patterns are slash-separated. Within a segment "*", "?" and character
// classes behave as in path.Match; a segment that is exactly "**" matches
// zero or more whole segments. "/**" matches every path, "/api/*" matches
// "/api/items" but not "/api/items/1".
type Rule struct {
	Pattern string

	// Methods restricts the rule to these HTTP methods. Empty matches any.
	Methods []string

	RequiresAuth bool
}

// String renders the rule for logs.
func (r Rule) String() string {
	verb := "permit"
	if r.RequiresAuth {
		verb = "authenticate"
	}
	if len(r.Methods) == 0 {
		return verb + " " + r.Pattern
	}
	return verb + " " + strings.Join(r.Methods, ",") + " " + r.Pattern
}

type compiledRule struct {
	Rule
	segments []string
	methods  map[string]bool
}

// RuleSet is an immutable, ordered list of rules.
type RuleSet struct {
	rules []compiledRule
}

// NewRuleSet validates and compiles rules, preserving their order.
func NewRuleSet(rules []Rule) (*RuleSet, error) {
	var errs []error
	rs := &RuleSet{rules: make([]compiledRule, 0, len(rules))}
	for i, r := range rules {
		segs, err := compilePattern(r.Pattern)
		if err != nil {
			errs = append(errs, fmt.Errorf("rule %d: %w", i, err))
			continue
		}
		c := compiledRule{Rule: r, segments: segs}
		if len(r.Methods) > 0 {
			c.methods = make(map[string]bool, len(r.Methods))
			for _, m := range r.Methods {
				if !validMethod(m) {
					errs = append(errs, fmt.Errorf("rule %d: invalid method %q", i, m))
					continue
				}
				c.methods[m] = true
			}
		}
		c.Rule.Methods = append([]string(nil), r.Methods...)
		rs.rules = append(rs.rules, c)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return rs, nil
}

// Match returns the first rule matching method and path.
func (rs *RuleSet) Match(method, urlPath string) (Rule, bool) {
	if rs == nil {
		return Rule{}, false
	}
	segs := splitPath(CleanPath(urlPath))
	for _, r := range rs.rules {
		if r.methods != nil && !r.methods[method] {
			continue
		}
		if matchSegments(r.segments, segs) {
			return r.Rule, true
		}
	}
	return Rule{}, false
}

// RequiresAuth reports whether a request must be authenticated. Requests
// matching no rule always require authentication.
func (rs *RuleSet) RequiresAuth(method, urlPath string) bool {
	r, ok := rs.Match(method, urlPath)
	return !ok || r.RequiresAuth
}

// Rules returns a copy of the rules in evaluation order.
func (rs *RuleSet) Rules() []Rule {
	if rs == nil {
		return nil
	}
	out := make([]Rule, len(rs.rules))
	for i, r := range rs.rules {
		out[i] = r.Rule
	}
	return out
}

func compilePattern(pattern string) ([]string, error) {
	if !strings.HasPrefix(pattern, "/") {
		return nil, fmt.Errorf("pattern %q must start with /", pattern)
	}
	segs := splitPath(pattern)
	for _, s := range segs {
		if s == "**" {
			continue
		}
		if s == "" {
			return nil, fmt.Errorf("pattern %q has an empty segment", pattern)
		}
		if strings.Contains(s, "**") {
			return nil, fmt.Errorf("pattern %q: ** must be a whole segment", pattern)
		}
		if _, err := path.Match(s, ""); err != nil {
			return nil, fmt.Errorf("pattern %q: %w", pattern, err)
		}
	}
	return segs, nil
}

// CleanPath resolves dot segments and duplicate slashes. Rules are matched
// against the cleaned path, so "/public/../admin" is "/admin".
func CleanPath(p string) string {
	if p == "" {
		return "/"
	}
	if p[0] != '/' {
		p = "/" + p
	}
	return path.Clean(p)
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

func matchSegments(pattern, segs []string) bool {
	for len(pattern) > 0 {
		if pattern[0] == "**" {
			rest := pattern[1:]
			if len(rest) == 0 {
				return true
			}
			for i := 0; i <= len(segs); i++ {
				if matchSegments(rest, segs[i:]) {
					return true
				}
			}
			return false
		}
		if len(segs) == 0 {
			return false
		}
		if ok, _ := path.Match(pattern[0], segs[0]); !ok {
			return false
		}
		pattern, segs = pattern[1:], segs[1:]
	}
	return len(segs) == 0
}

func validMethod(m string) bool {
	if m == "" {
		return false
	}
	for _, r := range m {
		if !httpguts.IsTokenRune(r) {
			return false
		}
	}
	return true
}
