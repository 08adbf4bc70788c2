package scope

import (
	"errors"
	"testing"

	"github.com/dmitrijs2005/transcoder/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_OwnerPriority(t *testing.T) {
	tests := []struct {
		name   string
		claims map[string]any
		want   string
	}{
		{name: "provider username wins", claims: map[string]any{
			"cognito:username": "alice", "username": "al", "email": "a@x.io"}, want: "alice"},
		{name: "generic username", claims: map[string]any{"username": "bob", "email": "b@x.io"}, want: "bob"},
		{name: "email local part", claims: map[string]any{"email": "carol@example.com"}, want: "carol"},
		{name: "empty username falls through", claims: map[string]any{"username": "  ", "email": "dan@x.io"}, want: "dan"},
		{name: "email without at", claims: map[string]any{"email": "nobody"}, want: common.UnknownOwner},
		{name: "non-string username", claims: map[string]any{"username": 42}, want: common.UnknownOwner},
		{name: "nil claims", claims: nil, want: common.UnknownOwner},
		{name: "path separators sanitized", claims: map[string]any{"username": "eve/../bob"}, want: "eve_.._bob"},
		{name: "dots only", claims: map[string]any{"username": ".."}, want: common.UnknownOwner},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Resolve(tt.claims).OwnerID)
		})
	}
}

func TestResolve_Admin(t *testing.T) {
	tests := []struct {
		name   string
		claims map[string]any
		want   bool
	}{
		{name: "provider groups", claims: map[string]any{"cognito:groups": []any{"users", "Admin"}}, want: true},
		{name: "generic groups", claims: map[string]any{"groups": []string{"ADMIN"}}, want: true},
		{name: "not a member", claims: map[string]any{"cognito:groups": []any{"users"}}, want: false},
		{name: "string instead of list", claims: map[string]any{"cognito:groups": "admin"}, want: false},
		{name: "mixed member types", claims: map[string]any{"groups": []any{1, true, "admin"}}, want: true},
		{name: "substring only", claims: map[string]any{"groups": []any{"administrators"}}, want: false},
		{name: "no claims", claims: map[string]any{}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Resolve(tt.claims).IsAdmin)
		})
	}
}

func TestScope_Prefixes(t *testing.T) {
	user := Scope{OwnerID: "alice"}
	admin := Scope{OwnerID: "root", IsAdmin: true}

	assert.Equal(t, []string{"uploads/alice/", "processed/alice/"}, user.ListingPrefixes())
	assert.Equal(t, []string{"uploads/", "processed/"}, admin.ListingPrefixes())

	assert.Equal(t, "processed:owner:alice", user.CacheKey(common.ProcessedNamespace))
	assert.Equal(t, "uploads:*", admin.CacheKey(common.UploadsNamespace))

	for _, p := range user.ListingPrefixes() {
		found := false
		for _, ap := range admin.ListingPrefixes() {
			if len(p) >= len(ap) && p[:len(ap)] == ap {
				found = true
			}
		}
		assert.True(t, found, "admin prefixes must cover %s", p)
	}
}

func TestScope_CacheKeyOwnerNamedAdmin(t *testing.T) {
	impostor := Resolve(map[string]any{"cognito:username": "admin"})
	require.Equal(t, "admin", impostor.OwnerID)
	require.False(t, impostor.IsAdmin)

	admin := Resolve(map[string]any{"cognito:username": "root", "cognito:groups": []any{"admin"}})
	for _, ns := range []string{common.UploadsNamespace, common.ProcessedNamespace} {
		assert.NotEqual(t, admin.CacheKey(ns), impostor.CacheKey(ns))
	}
}

func TestScope_Owner(t *testing.T) {
	user := Scope{OwnerID: "alice"}
	admin := Scope{OwnerID: "root", IsAdmin: true}

	got, err := user.Owner("")
	require.NoError(t, err)
	assert.Equal(t, "alice", got)

	got, err = user.Owner("alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", got)

	_, err = user.Owner("bob")
	assert.True(t, errors.Is(err, common.ErrAccessDenied))

	got, err = admin.Owner("bob")
	require.NoError(t, err)
	assert.Equal(t, "bob", got)

	_, err = admin.Owner("bob/x")
	assert.True(t, errors.Is(err, common.ErrValidation))

	assert.False(t, admin.CanAccess(""))
	assert.True(t, Scope{OwnerID: common.UnknownOwner}.Anonymous())
}
