package repositories

import (
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func openBadger(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func Test_Store_And_Get_History(t *testing.T) {
	req := require.New(t)
	repository := NewHistoryRepository(openBadger(t), slog.Default(), nil)
	at := time.Now().UTC()
	records := []HistoryRecord{
		{ID: uuid.New(), Kind: "NEW_MESSAGE", Channel: "general", Sender: "alice", Body: "hello", MessageID: "srv-1", At: at},
		{ID: uuid.New(), Kind: "PRESENCE_CHANGED", Channel: "general", Sender: "bob", Detail: "online", At: at.Add(time.Minute)},
		{ID: uuid.New(), Kind: "NEW_MESSAGE", Channel: "random", Sender: "carol", Body: "elsewhere", At: at.Add(2 * time.Minute)},
	}
	for _, r := range records {
		req.NoError(repository.Store(r))
	}

	fetched, _, err := repository.GetHistory("general", nil)

	req.NoError(err)
	req.Equal([]HistoryRecord{records[1], records[0]}, fetched)
}

func Test_Server_Wide_Records_Have_Their_Own_Prefix(t *testing.T) {
	req := require.New(t)
	repository := NewHistoryRepository(openBadger(t), slog.Default(), nil)
	notice := HistoryRecord{ID: uuid.New(), Kind: "NOTICE", Detail: "Welcome", At: time.Now().UTC()}
	req.NoError(repository.Store(notice))

	fetched, _, err := repository.GetHistory("", nil)

	req.NoError(err)
	req.Equal([]HistoryRecord{notice}, fetched)
}

func Test_History_Pagination(t *testing.T) {
	req := require.New(t)
	repository := NewHistoryRepository(openBadger(t), slog.Default(), lo.ToPtr(2))
	now := time.Now().UTC()
	for i := 1; i <= 5; i++ {
		req.NoError(repository.Store(HistoryRecord{
			ID:      uuid.New(),
			Kind:    "NEW_MESSAGE",
			Channel: "general",
			Body:    fmt.Sprintf("Message %d", i),
			At:      now.Add(time.Duration(i) * time.Minute),
		}))
	}

	// --- PAGE 1 ---
	page1, cursor1, err := repository.GetHistory("general", nil)
	req.NoError(err)
	req.Equal([]string{"Message 5", "Message 4"}, bodiesOf(page1))
	req.NotEmpty(*cursor1)

	// --- PAGE 2 ---
	page2, cursor2, err := repository.GetHistory("general", cursor1)
	req.NoError(err)
	req.Equal([]string{"Message 3", "Message 2"}, bodiesOf(page2))

	// --- PAGE 3 ---
	page3, _, err := repository.GetHistory("general", cursor2)
	req.NoError(err)
	req.Equal([]string{"Message 1"}, bodiesOf(page3))
}

func bodiesOf(records []HistoryRecord) []string {
	return lo.Map(records, func(r HistoryRecord, _ int) string { return r.Body })
}
