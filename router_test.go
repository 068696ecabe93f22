package bpush_test

import (
	"testing"

	"github.com/advdv/bpush"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func paramTexts(path string, params []bpush.Param) map[string]string {
	res := map[string]string{}
	for _, p := range params {
		res[p.Name] = path[p.Start : p.Start+p.Len]
	}

	return res
}

func newTestTree(t *testing.T, patterns ...string) *bpush.Tree[string] {
	t.Helper()

	tree := bpush.NewTree[string](bpush.DefaultSeparator)
	for _, p := range patterns {
		require.NoError(t, tree.Insert(p, p))
	}

	return tree
}

func TestTreeFind(t *testing.T) {
	tree := newTestTree(t,
		"/",
		"/users/{id}",
		"/users/me",
		"/users/{id}/posts/{post}",
		"/users/me/settings",
		"/files/{name}/raw",
		"/files/latest/meta",
		"/arithmetic/sum/{a}/{b}",
	)

	require.Equal(t, 8, tree.Len())

	tests := []struct {
		path   string
		exp    string
		params map[string]string
	}{
		{"/", "/", map[string]string{}},
		{"", "/", map[string]string{}},
		{"/users/me", "/users/me", map[string]string{}},
		{"/users/123", "/users/{id}", map[string]string{"id": "123"}},
		{"/users/123/posts/abc", "/users/{id}/posts/{post}", map[string]string{"id": "123", "post": "abc"}},
		{"/users/me/posts/abc", "/users/{id}/posts/{post}", map[string]string{"id": "me", "post": "abc"}},
		{"/users/me/settings", "/users/me/settings", map[string]string{}},
		{"/files/latest/raw", "/files/{name}/raw", map[string]string{"name": "latest"}},
		{"/files/latest/meta", "/files/latest/meta", map[string]string{}},
		{"//users//123/", "/users/{id}", map[string]string{"id": "123"}},
		{"/users/123?foo=bar", "/users/{id}", map[string]string{"id": "123"}},
		{"/arithmetic/sum/3/4", "/arithmetic/sum/{a}/{b}", map[string]string{"a": "3", "b": "4"}},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			v, params, ok := tree.Find(tt.path, nil)
			require.True(t, ok)
			require.Equal(t, tt.exp, v)
			require.Equal(t, tt.params, paramTexts(tt.path, params))
		})
	}
}

func TestTreeParamOrder(t *testing.T) {
	tree := newTestTree(t, "/users/{id}/posts/{post}")

	_, params, ok := tree.Find("/users/1/posts/2", nil)
	require.True(t, ok)
	require.Equal(t, []bpush.Param{
		{Name: "id", Start: 7, Len: 1},
		{Name: "post", Start: 15, Len: 1},
	}, params)
}

func TestTreeNotFound(t *testing.T) {
	tree := newTestTree(t, "/users/{id}", "/users/me/settings", "/Files")

	for _, path := range []string{
		"/",
		"/nope",
		"/users",
		"/users/1/2",
		"/users/me/settings/more",
		"/files",
	} {
		t.Run(path, func(t *testing.T) {
			_, _, ok := tree.Find(path, nil)
			assert.False(t, ok)
		})
	}
}

func TestTreeCustomSeparator(t *testing.T) {
	tree := bpush.NewTree[int]('.')
	require.NoError(t, tree.Insert("orders.{id}.created", 1))

	v, params, ok := tree.Find("orders.42.created", nil)
	require.True(t, ok)
	require.Equal(t, 1, v)
	require.Equal(t, map[string]string{"id": "42"}, paramTexts("orders.42.created", params))
}

func TestTreeInsertErrors(t *testing.T) {
	tests := []struct {
		name     string
		existing []string
		pattern  string
		errStr   string
	}{
		{"empty", nil, "", "empty pattern"},
		{"unclosed", nil, "/users/{id", "must be exactly {name}"},
		{"mixed", nil, "/users/x{id}", "must be exactly {name}"},
		{"empty name", nil, "/users/{}", "empty name"},
		{"duplicate param name", nil, "/{a}/{a}", "duplicate parameter name"},
		{"conflicting param", []string{"/users/{id}"}, "/users/{name}/x", "conflicts with"},
		{"duplicate route", []string{"/users/{id}"}, "/users/{id}/", "already registered as"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree := newTestTree(t, tt.existing...)
			err := tree.Insert(tt.pattern, tt.pattern)
			require.ErrorContains(t, err, tt.errStr)
		})
	}
}

func TestTreeFindReusesParams(t *testing.T) {
	tree := newTestTree(t, "/users/{id}/posts/{post}")
	buf := make([]bpush.Param, 0, 4)

	allocs := testing.AllocsPerRun(100, func() {
		_, res, _ := tree.Find("/users/1/posts/2", buf[:0])
		buf = res
	})

	assert.Zero(t, allocs)
}
