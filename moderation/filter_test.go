package moderation

import (
	"log/slog"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

const mask = '#'

func TestFilter_Mask(t *testing.T) {
	filter, err := NewFilter([]string{"spoiler", "darn", "heck"}, mask, logs.GetLoggerFromLevel(slog.LevelDebug))
	require.NoError(t, err)

	tests := []struct {
		name  string
		body  string
		want  string
		words []string
	}{
		{"one word", "no spoiler please", "no ####### please", []string{"spoiler"}},
		{"repeated word", "darn darn", "#### ####", []string{"darn", "darn"}},
		{"leet and dots", "d.4.r.n!", "#######!", []string{"darn"}},
		{"dashes and case", "H-E-C-K off", "####### off", []string{"heck"}},
		{"spaced letters", "d a r n it", "####### it", []string{"darn"}},
		{"prefix of a longer word", "spoilers ahead", "#######s ahead", []string{"spoiler"}},
		{"accents untouched", "Crème brûlée, darn", "Crème brûlée, ####", []string{"darn"}},
		{"clean body", "cim is amazing", "cim is amazing", nil},
		{"empty body", "", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			body, words := filter.Mask(tt.body)
			req.Equal(tt.want, body)
			req.Equal(tt.words, words)
		})
	}
}

func TestFilter_NoiseOnlyWordsAreIgnored(t *testing.T) {
	req := require.New(t)

	// Given a muted list polluted by punctuation only entries
	filter, err := NewFilter([]string{"...", "?-", "", "spoiler"}, mask, slog.Default())
	req.NoError(err)

	// Then the real word is still masked
	body, words := filter.Mask("spoiler: he lives")
	req.Equal("#######: he lives", body)
	req.Equal([]string{"spoiler"}, words)

	// And punctuation in a body is left alone
	body, words = filter.Mask("wait...")
	req.Equal("wait...", body)
	req.Nil(words)
}

func TestFilter_WithoutWordsNeverMasks(t *testing.T) {
	req := require.New(t)
	filter, err := NewFilter(nil, mask, slog.Default())
	req.NoError(err)

	body, words := filter.Mask("darn")
	req.Equal("darn", body)
	req.Nil(words)

	var disabled *Filter
	body, _ = disabled.Mask("darn")
	req.Equal("darn", body)
}
