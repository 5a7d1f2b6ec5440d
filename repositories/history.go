//go:generate go run go.uber.org/mock/mockgen -source=history.go -destination=../mocks/mock_history_repository.go -package=mocks
package repositories

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServerChannel is the key segment of records that belong to no channel.
const ServerChannel = "_"

type IHistoryRepository interface {
	Store(record HistoryRecord) error
	GetHistory(channel string, cursor *string) ([]HistoryRecord, *string, error)
}

// HistoryRecord is one display event as kept on disk.
type HistoryRecord struct {
	ID        uuid.UUID
	Kind      string
	Channel   string
	Sender    string
	Body      string
	MessageID string
	// Detail is the human readable rest of the event: status, reason, members.
	Detail string
	At     time.Time
}

type HistoryRepository struct {
	db           *badger.DB
	log          *slog.Logger
	limitRecords *int
}

func NewHistoryRepository(db *badger.DB, log *slog.Logger, limitRecords *int) HistoryRepository {
	return HistoryRepository{db: db, log: log, limitRecords: limitRecords}
}

// Store persists a record in BadgerDB.
// The key is formatted as "evt:{channel}:{timestamp_padded}:{uuid}" to:
//  1. Ensure chronological sorting using 19-digit zero padding (lexicographical order).
//  2. Prevent data loss by using UUID as a collision disconnector if two events
//     happen at the same nanosecond.
func (h HistoryRepository) Store(record HistoryRecord) error {
	key := fmt.Sprintf("evt:%s:%019d:%s",
		channelSegment(record.Channel),
		record.At.UnixNano(),
		record.ID,
	)
	bytes, err := marshalRecord(record)
	if err != nil {
		return err
	}
	return h.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), bytes)
	})
}

// GetHistory returns the records of a channel, newest first, one page at a
// time. The returned cursor is passed back to read the next, older, page.
func (h HistoryRepository) GetHistory(channel string, cursor *string) ([]HistoryRecord, *string, error) {
	var raw [][]byte
	var lastKey string
	err := h.db.View(func(txn *badger.Txn) error {
		prefixStr := fmt.Sprintf("evt:%s:", channelSegment(channel))
		prefix := []byte(prefixStr)
		prefixLen := len(prefixStr)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch cursor {
		case nil:
			// Reverse iteration starts after the newest possible key
			seekKey = append(prefix, []byte("9999999999999999999")...)
		default:
			seekKey = append(prefix, []byte(*cursor)...)
		}

		it.Seek(seekKey)
		if cursor != nil && it.ValidForPrefix(prefix) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if h.limitRecords != nil && len(raw) == *h.limitRecords {
				h.log.Debug(fmt.Sprintf("Maximum of %d records reached", *h.limitRecords))
				break
			}
			item := it.Item()
			lastKey = string(item.Key()[prefixLen:])
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			raw = append(raw, value)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	records := make([]HistoryRecord, 0, len(raw))
	for _, b := range raw {
		record, err := unmarshalRecord(b)
		if err != nil {
			return nil, nil, err
		}
		records = append(records, record)
	}
	return records, &lastKey, nil
}

func channelSegment(channel string) string {
	if channel == "" {
		return ServerChannel
	}
	return channel
}

func marshalRecord(r HistoryRecord) ([]byte, error) {
	s, err := structpb.NewStruct(map[string]any{
		"id":         r.ID.String(),
		"kind":       r.Kind,
		"channel":    r.Channel,
		"sender":     r.Sender,
		"body":       r.Body,
		"message_id": r.MessageID,
		"detail":     r.Detail,
		"at":         r.At.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, err
	}
	return proto.Marshal(s)
}

func unmarshalRecord(b []byte) (HistoryRecord, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(b, &s); err != nil {
		return HistoryRecord{}, err
	}
	fields := s.GetFields()
	str := func(key string) string { return fields[key].GetStringValue() }

	id, err := uuid.Parse(str("id"))
	if err != nil {
		return HistoryRecord{}, err
	}
	at, err := time.Parse(time.RFC3339Nano, str("at"))
	if err != nil {
		return HistoryRecord{}, err
	}
	return HistoryRecord{
		ID:        id,
		Kind:      str("kind"),
		Channel:   str("channel"),
		Sender:    str("sender"),
		Body:      str("body"),
		MessageID: str("message_id"),
		Detail:    str("detail"),
		At:        at,
	}, nil
}
