package main

import (
	"flag"
	"fmt"
	"os"

	"vetchat/internal"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/database"
	"github.com/olekukonko/tablewriter"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "inspect: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	dbPath := flag.String("db", database.DefaultPath, "Path to badger DB")
	prefix := flag.String("prefix", "", "Key prefix to scan (conv:, pair:, uconv:, msg:, unread:, notif:, profile:)")
	limit := flag.Int("limit", 0, "Maximum number of keys, 0 for all")
	raw := flag.Bool("raw", false, "Print value sizes instead of decoded records")
	flag.Parse()

	// The server may be holding the directory lock.
	db, err := badger.Open(badger.DefaultOptions(*dbPath).
		WithReadOnly(true).
		WithLoggingLevel(badger.ERROR))
	if err != nil {
		return fmt.Errorf("opening badger at %s: %w", *dbPath, err)
	}
	defer func() { _ = db.Close() }()

	mapper := internal.RecordMapper
	if *raw {
		mapper = internal.DefaultMapper
	}
	rows, err := internal.Scan(db, *prefix, *limit, mapper)
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Type", "Timestamp", "Entity ID", "Detail"})
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
	for _, row := range rows {
		table.Append([]string{row.Key, row.Type, row.Timestamp, row.EntityID, row.Detail})
	}
	table.Render()
	fmt.Printf("\n%d keys\n", len(rows))
	return nil
}
