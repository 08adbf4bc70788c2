// Package scope derives the caller's owner identity and visibility from
// verified token claims. It is the only authorization boundary for listing
// and download.
package scope

import (
	"fmt"
	"strings"

	"github.com/dmitrijs2005/transcoder/internal/common"
)

// Claim names consulted, in priority order.
const (
	ClaimProviderUsername = "cognito:username"
	ClaimUsername         = "username"
	ClaimEmail            = "email"
	ClaimProviderGroups   = "cognito:groups"
	ClaimGroups           = "groups"
)

// Scope is recomputed for every request and never stored.
type Scope struct {
	OwnerID string
	IsAdmin bool
}

// Resolve derives the Scope for claims. Missing or malformed claims yield a
// non-admin scope owned by common.UnknownOwner.
func Resolve(claims map[string]any) Scope {
	return Scope{
		OwnerID: ownerID(claims),
		IsAdmin: isAdmin(claims),
	}
}

func ownerID(claims map[string]any) string {
	for _, name := range []string{ClaimProviderUsername, ClaimUsername} {
		if v := stringClaim(claims, name); v != "" {
			return sanitizeOwner(v)
		}
	}
	if email := stringClaim(claims, ClaimEmail); email != "" {
		if local, _, found := strings.Cut(email, "@"); found && local != "" {
			return sanitizeOwner(local)
		}
	}
	return common.UnknownOwner
}

// sanitizeOwner keeps owner IDs usable as a single key segment.
func sanitizeOwner(v string) string {
	v = common.SanitizeName(v)
	if strings.Trim(v, "._") == "" {
		return common.UnknownOwner
	}
	return v
}

func stringClaim(claims map[string]any, name string) string {
	s, ok := claims[name].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

func isAdmin(claims map[string]any) bool {
	for _, name := range []string{ClaimProviderGroups, ClaimGroups} {
		for _, g := range groups(claims[name]) {
			if strings.EqualFold(strings.TrimSpace(g), common.AdminGroup) {
				return true
			}
		}
	}
	return false
}

// groups accepts a JSON array of strings. Non-string members are skipped and
// any other shape yields no groups.
func groups(v any) []string {
	switch g := v.(type) {
	case []string:
		return g
	case []any:
		out := make([]string, 0, len(g))
		for _, item := range g {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// Anonymous reports whether no owner identity could be derived.
func (s Scope) Anonymous() bool {
	return s.OwnerID == common.UnknownOwner
}

// Prefix is the listing prefix for namespace: every owner for admins, the
// caller's own keys otherwise.
func (s Scope) Prefix(namespace string) string {
	if s.IsAdmin {
		return common.NamespacePrefix(namespace, "")
	}
	return common.NamespacePrefix(namespace, s.OwnerID)
}

// ListingPrefixes returns the upload and processed prefixes visible to s.
func (s Scope) ListingPrefixes() []string {
	return []string{s.Prefix(common.UploadsNamespace), s.Prefix(common.ProcessedNamespace)}
}

// CacheKey identifies the listing of namespace as seen from s. The admin
// key cannot be produced by any owner ID, including one named "admin".
func (s Scope) CacheKey(namespace string) string {
	if s.IsAdmin {
		return namespace + ":*"
	}
	return namespace + ":owner:" + s.OwnerID
}

// CanAccess reports whether s may touch keys belonging to ownerID.
func (s Scope) CanAccess(ownerID string) bool {
	if ownerID == "" {
		return false
	}
	return s.IsAdmin || ownerID == s.OwnerID
}

// Owner picks the namespace owner for a request: requested when set and
// permitted, the caller's own otherwise.
func (s Scope) Owner(requested string) (string, error) {
	requested = strings.TrimSpace(requested)
	if requested == "" {
		return s.OwnerID, nil
	}
	if common.SanitizeName(requested) != requested {
		return "", fmt.Errorf("%w: invalid owner %q", common.ErrValidation, requested)
	}
	if !s.CanAccess(requested) {
		return "", common.ErrAccessDenied
	}
	return requested, nil
}
