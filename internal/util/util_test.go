package util

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTruncateString(t *testing.T) {
	tests := []struct {
		name          string
		input         string
		maxLen        int
		preserveWords bool
		want          string
	}{
		{"short", "hello", 10, false, "hello"},
		{"exact", "1234567890", 10, false, "1234567890"},
		{"cut", "abcdefghijkl", 8, false, "abcde..."},
		{"word boundary", "Show me the users who churned", 16, true, "Show me the..."},
		{"no space before cut", "abcdefghijkl", 8, true, "abcde..."},
		{"tiny limit", "abcdef", 2, false, ".."},
		{"zero", "abc", 0, false, ""},
		{"negative", "abc", -1, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TruncateString(tt.input, tt.maxLen, tt.preserveWords))
		})
	}
}

func TestTruncateStringUTF8(t *testing.T) {
	for _, in := range []string{"查询中文数据库中的用户信息", "データベース システム から ユーザー 情報", "Hello 👋 World 🌍 Testing 🎉"} {
		out := TruncateString(in, 10, true)
		assert.True(t, utf8.ValidString(out), out)
		assert.LessOrEqual(t, utf8.RuneCountInString(out), 10)
	}
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "SELECT * FROM users", Preview("SELECT *\n  FROM\tusers", 40))
	assert.Equal(t, "SELECT * FROM...", Preview("SELECT *\n  FROM\tusers WHERE active", 17))
}
