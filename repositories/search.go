//go:generate go run go.uber.org/mock/mockgen -source=search.go -destination=../mocks/mock_history_index.go -package=mocks
package repositories

import (
	"cim/domain/search"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/blugelabs/bluge"
)

const (
	fieldChannel   = "channel"
	fieldSender    = "sender"
	fieldBody      = "body"
	fieldMessageID = "message_id"
	fieldAt        = "at"
)

type IHistoryIndex interface {
	Index(hit SearchHit) error
	Search(ctx context.Context, query search.Query) ([]SearchHit, error)
}

// SearchHit is one indexed chat message.
type SearchHit struct {
	MessageID string
	Channel   string
	Sender    string
	Body      string
	At        time.Time
	Score     float64
}

// HistoryIndex is the full-text index of displayed messages.
type HistoryIndex struct {
	writer *bluge.Writer
	log    *slog.Logger
}

func NewHistoryIndex(writer *bluge.Writer, log *slog.Logger) *HistoryIndex {
	return &HistoryIndex{writer: writer, log: log}
}

// Index adds or replaces a message, keyed by its id, so a message indexed
// twice is found once.
func (h *HistoryIndex) Index(hit SearchHit) error {
	if hit.MessageID == "" {
		return fmt.Errorf("index message: empty id")
	}
	doc := bluge.NewDocument(hit.MessageID).
		AddField(bluge.NewKeywordField(fieldMessageID, hit.MessageID).StoreValue()).
		AddField(bluge.NewKeywordField(fieldChannel, hit.Channel).StoreValue()).
		AddField(bluge.NewKeywordField(fieldSender, hit.Sender).StoreValue()).
		AddField(bluge.NewTextField(fieldBody, hit.Body).StoreValue()).
		AddField(bluge.NewDateTimeField(fieldAt, hit.At).StoreValue().Sortable())
	return h.writer.Update(doc.ID(), doc)
}

// Search matches query terms against message bodies. Channel and sender
// filters are exact. Without terms the newest messages are returned.
func (h *HistoryIndex) Search(ctx context.Context, query search.Query) ([]SearchHit, error) {
	reader, err := h.writer.Reader()
	if err != nil {
		return nil, fmt.Errorf("open index reader: %w", err)
	}
	defer func() {
		if err := reader.Close(); err != nil {
			h.log.Debug("Closing index reader", "error", err)
		}
	}()

	q := bluge.NewBooleanQuery()
	if query.Terms != "" {
		q.AddMust(bluge.NewMatchQuery(query.Terms).SetField(fieldBody))
	} else {
		q.AddMust(bluge.NewMatchAllQuery())
	}
	if query.Channel != "" {
		q.AddMust(bluge.NewTermQuery(query.Channel).SetField(fieldChannel))
	}
	if query.Sender != "" {
		q.AddMust(bluge.NewTermQuery(query.Sender).SetField(fieldSender))
	}

	request := bluge.NewTopNSearch(query.Limit, q)
	if query.Terms == "" {
		request = request.SortBy([]string{"-" + fieldAt})
	}
	matches, err := reader.Search(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query.RawInput, err)
	}

	var hits []SearchHit
	match, err := matches.Next()
	for err == nil && match != nil {
		hit := SearchHit{Score: match.Score}
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			switch field {
			case fieldMessageID:
				hit.MessageID = string(value)
			case fieldChannel:
				hit.Channel = string(value)
			case fieldSender:
				hit.Sender = string(value)
			case fieldBody:
				hit.Body = string(value)
			case fieldAt:
				if at, decodeErr := bluge.DecodeDateTime(value); decodeErr == nil {
					hit.At = at
				}
			}
			return true
		})
		if err != nil {
			break
		}
		hits = append(hits, hit)
		match, err = matches.Next()
	}
	if err != nil {
		return nil, fmt.Errorf("read search results: %w", err)
	}
	return hits, nil
}
