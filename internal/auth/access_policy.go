package auth

import "strings"

// AccessPolicy decides which signed-in users may open the dashboard. A non-empty
// allow-list is authoritative; otherwise a configured domain must match; otherwise
// every signed-in user is admitted.
type AccessPolicy struct {
	emails map[string]struct{}
	domain string
}

func NewAccessPolicy(emails []string, domain string) AccessPolicy {
	policy := AccessPolicy{
		domain: strings.TrimPrefix(normalizeEmail(domain), "@"),
	}
	for _, email := range emails {
		if normalized := normalizeEmail(email); normalized != "" {
			if policy.emails == nil {
				policy.emails = make(map[string]struct{})
			}
			policy.emails[normalized] = struct{}{}
		}
	}
	return policy
}

func (p AccessPolicy) Allowed(email string) bool {
	email = normalizeEmail(email)
	if email == "" {
		return false
	}
	if len(p.emails) > 0 {
		_, ok := p.emails[email]
		return ok
	}
	if p.domain != "" {
		return strings.HasSuffix(email, "@"+p.domain)
	}
	return true
}
