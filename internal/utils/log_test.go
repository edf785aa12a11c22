package utils

import "testing"

func TestTruncateForLog(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		input  string
		limit  int
		expect string
	}{
		{name: "disabled preview", input: "Go developer at Acme", limit: 0, expect: ""},
		{name: "short job title", input: "Go developer", limit: 40, expect: "Go developer"},
		{name: "long profile text", input: "Senior Go engineer, distributed systems", limit: 9, expect: "Senior Go..."},
		{
			name:   "digest body on one line",
			input:  "Your job matches for 2025-06-02\n1. Go developer at Acme\n   score 0.91",
			limit:  200,
			expect: "Your job matches for 2025-06-02 1. Go developer at Acme score 0.91",
		},
		{name: "multibyte runes", input: "  Разработчик Go  ", limit: 11, expect: "Разработчик..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := TruncateForLog(tt.input, tt.limit); got != tt.expect {
				t.Fatalf("expected %q, got %q", tt.expect, got)
			}
		})
	}
}
