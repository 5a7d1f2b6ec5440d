package main

import (
	"cim/domain/search"
	"cim/repositories"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/kelseyhightower/envconfig"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"
)

type Config struct {
	BadgerPath string `envconfig:"HISTORY_BADGER_PATH" default:"./history/badger"`
	BlugePath  string `envconfig:"HISTORY_BLUGE_PATH" default:"./history/bluge"`
	LogLevel   string `envconfig:"LOG_LEVEL" default:"ERROR"`
}

func main() {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		log.Fatal("Config error: ", err)
	}
	channel := flag.String("channel", "", "Channel to list, empty for server events")
	limit := flag.Int("limit", 50, "Maximum number of records")
	find := flag.String("find", "", `Full-text query, e.g. "invoice --from bob"`)
	flag.Parse()

	logger := logs.GetLoggerFromString(config.LogLevel)
	table := newTable()

	if *find != "" {
		writer, err := bluge.OpenWriter(bluge.DefaultConfig(config.BlugePath))
		if err != nil {
			log.Fatal("Error while opening Bluge: ", err)
		}
		defer writer.Close()

		query := search.NewSearchQuery(*find)
		hits, err := repositories.NewHistoryIndex(writer, logger).Search(context.Background(), query)
		if err != nil {
			log.Fatal(err)
		}
		table.SetHeader([]string{"At", "Channel", "Sender", "Message ID", "Score", "Body"})
		for _, hit := range hits {
			table.Append([]string{
				hit.At.Local().Format(time.DateTime),
				hit.Channel,
				hit.Sender,
				hit.MessageID,
				fmt.Sprintf("%.2f", hit.Score),
				hit.Body,
			})
		}
		table.Render()
		return
	}

	db, err := badger.Open(badger.DefaultOptions(config.BadgerPath).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true))
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	records, _, err := repositories.NewHistoryRepository(db, logger, limit).GetHistory(*channel, nil)
	if err != nil {
		log.Fatal(err)
	}
	table.SetHeader([]string{"At", "Kind", "Channel", "Sender", "Message ID", "Body", "Detail"})
	for _, r := range records {
		table.Append([]string{
			r.At.Local().Format(time.DateTime),
			r.Kind,
			r.Channel,
			r.Sender,
			shortID(r.MessageID),
			r.Body,
			r.Detail,
		})
	}
	table.Render()
}

func newTable() *tablewriter.Table {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	return table
}

// Provisional ids are long, keep the readable part.
func shortID(id string) string {
	id = strings.TrimPrefix(id, "local-")
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
