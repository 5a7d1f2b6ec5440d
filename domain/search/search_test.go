package search

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewSearchQuery(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Query
	}{
		{
			name:  "terms only",
			input: "/find deploy failed",
			want:  Query{Terms: "deploy failed", Limit: DefaultLimit},
		},
		{
			name:  "every flag",
			input: `/find "invoice" --channel general --from bob --limit 5`,
			want:  Query{Terms: "invoice", Channel: "general", Sender: "bob", Limit: 5},
		},
		{
			name:  "invalid limit keeps the default",
			input: "/find x --limit nope",
			want:  Query{Terms: "x", Limit: DefaultLimit},
		},
		{
			name:  "trailing flag without value is a term",
			input: "/find --channel",
			want:  Query{Terms: "--channel", Limit: DefaultLimit},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			tt.want.RawInput = tt.input

			req.Equal(tt.want, NewSearchQuery(tt.input))
		})
	}
}
