package flow

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryValue(t *testing.T) {
	testCases := []struct {
		name     string
		rawURL   string
		key      string
		expected string
	}{
		{"encoded value", "https://a.example/?url=https%3A%2F%2Fexample.com%2F", "url", "https://example.com/"},
		{"plus is a space", "https://a.example/?q=a+b", "q", "a b"},
		{"unencoded value", "https://a.example/?url=https://example.com/x", "url", "https://example.com/x"},
		{"stray percent at the end", "https://a.example/?url=https://example.com/sale?off=100%", "url", "https://example.com/sale?off=100%"},
		{"malformed escape keeps valid ones", "https://a.example/?url=https%3A%2F%2Fexample.com%2F%zz", "url", "https://example.com/%zz"},
		{"first occurrence wins", "https://a.example/?url=one&url=two", "url", "one"},
		{"other keys are skipped", "https://a.example/?a=1&__dest=x%26y&b=%", "__dest", "x&y"},
		{"encoded key", "https://a.example/?%5F%5Fdest=v", "__dest", "v"},
		{"key without value", "https://a.example/?url", "url", ""},
		{"absent", "https://a.example/?other=1", "url", ""},
		{"no query", "https://a.example/", "url", ""},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			u, err := url.Parse(tc.rawURL)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, QueryValue(u, tc.key))
		})
	}
	assert.Empty(t, QueryValue(nil, "url"))
}
