// internal/services/parse_test.go
package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestExtractJSONPayload(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		ok   bool
	}{
		{"bare object", `{"a": 1}`, true},
		{"json code fence", "```json\n{\"a\": 1}\n```", true},
		{"plain code fence", "```\n{\"a\": 1}\n```", true},
		{"prefix noise", "好的，以下是结果：\n{\"a\": 1}", true},
		{"suffix noise", `{"a": 1}` + "\n希望对你有帮助！", true},
		{"no json", "抱歉，我无法完成这个请求。", false},
		{"empty", "   ", false},
		{"broken json", `{"a": `, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			payload, ok := extractJSONPayload(tc.raw)
			assert.Equal(t, tc.ok, ok)
			if tc.ok {
				require.True(t, gjson.Valid(payload))
				assert.Equal(t, int64(1), gjson.Get(payload, "a").Int())
			}
		})
	}
}

func TestStringSlice(t *testing.T) {
	result := gjson.Parse(`{"items": ["a", "  ", "b", ""]}`)

	assert.Equal(t, []string{"a", "b"}, stringSlice(result.Get("items")))
	assert.Nil(t, stringSlice(result.Get("missing")))
	assert.Nil(t, stringSlice(gjson.Parse(`{"x": "not array"}`).Get("x")))
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 1.0, clamp(-3, 1, 5))
	assert.Equal(t, 5.0, clamp(9, 1, 5))
	assert.Equal(t, 3.2, clamp(3.2, 1, 5))
}
