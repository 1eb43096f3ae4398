package helpers

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderTable_Empty(t *testing.T) {
	var out bytes.Buffer
	renderTable(&out, []string{"User ID", "Nickname"}, nil)
	assert.Contains(t, out.String(), "No data to display")
}

func TestRenderTable_HeadersAndRows(t *testing.T) {
	var out bytes.Buffer
	renderTable(&out, []string{"User ID", "Nickname"}, [][]any{
		{"user-1", "ash"},
		{"user-2", "gary"},
	})

	got := out.String()
	assert.Contains(t, strings.ToUpper(got), "USER ID")
	assert.Contains(t, got, "user-1")
	assert.Contains(t, got, "gary")
}

func TestRenderTable_KeyValuesKeepOrder(t *testing.T) {
	var out bytes.Buffer
	renderTable(&out, []string{"Key", "Value"}, [][]any{
		{"Service", "coral"},
		{"User ID", "user-1"},
		{"TTL", "59.0m"},
	})

	got := out.String()
	first := strings.Index(got, "Service")
	second := strings.Index(got, "User ID")
	third := strings.Index(got, "TTL")
	require.True(t, first >= 0 && second >= 0 && third >= 0)
	assert.Less(t, first, second)
	assert.Less(t, second, third)
}
