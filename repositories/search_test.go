package repositories

import (
	"cim/domain/search"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/blugelabs/bluge"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func openIndex(t *testing.T) *HistoryIndex {
	t.Helper()
	writer, err := bluge.OpenWriter(bluge.DefaultConfig(t.TempDir()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = writer.Close() })
	return NewHistoryIndex(writer, slog.Default())
}

func seed(t *testing.T, index *HistoryIndex) {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Millisecond)
	hits := []SearchHit{
		{MessageID: "m1", Channel: "general", Sender: "alice", Body: "the deploy failed again", At: now},
		{MessageID: "m2", Channel: "general", Sender: "bob", Body: "lunch anyone?", At: now.Add(time.Minute)},
		{MessageID: "m3", Channel: "ops", Sender: "bob", Body: "deploy is green now", At: now.Add(2 * time.Minute)},
	}
	for _, hit := range hits {
		require.NoError(t, index.Index(hit))
	}
}

func ids(hits []SearchHit) []string {
	return lo.Map(hits, func(h SearchHit, _ int) string { return h.MessageID })
}

func TestHistoryIndex_Search(t *testing.T) {
	index := openIndex(t)
	seed(t, index)

	tests := []struct {
		name    string
		input   string
		want    []string
		ordered bool
	}{
		{name: "terms across channels", input: "/find deploy", want: []string{"m1", "m3"}},
		{name: "channel filter", input: "/find deploy --channel ops", want: []string{"m3"}},
		{name: "sender filter without terms, newest first", input: "/find --from bob", want: []string{"m3", "m2"}, ordered: true},
		{name: "no match", input: "/find kubernetes", want: nil},
		{name: "limit", input: "/find --limit 1", want: []string{"m3"}, ordered: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)

			hits, err := index.Search(context.Background(), search.NewSearchQuery(tt.input))

			req.NoError(err)
			req.ElementsMatch(tt.want, ids(hits))
			if tt.ordered {
				req.Equal(tt.want, ids(hits))
			}
		})
	}
}

func TestHistoryIndex_StoresFields(t *testing.T) {
	req := require.New(t)
	index := openIndex(t)
	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	req.NoError(index.Index(SearchHit{MessageID: "m1", Channel: "general", Sender: "alice", Body: "hello world", At: at}))

	hits, err := index.Search(context.Background(), search.NewSearchQuery("/find hello"))

	req.NoError(err)
	req.Len(hits, 1)
	req.Equal("general", hits[0].Channel)
	req.Equal("alice", hits[0].Sender)
	req.Equal("hello world", hits[0].Body)
	req.True(at.Equal(hits[0].At))
	req.Positive(hits[0].Score)
}

func TestHistoryIndex_ReindexReplaces(t *testing.T) {
	req := require.New(t)
	index := openIndex(t)
	hit := SearchHit{MessageID: "m1", Channel: "general", Body: "first version", At: time.Now()}
	req.NoError(index.Index(hit))
	hit.Body = "second version"
	req.NoError(index.Index(hit))

	hits, err := index.Search(context.Background(), search.NewSearchQuery("/find version"))

	req.NoError(err)
	req.Len(hits, 1)
	req.Equal("second version", hits[0].Body)
	req.Error(index.Index(SearchHit{}))
}
