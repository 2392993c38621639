// Command inspect prints the most recent games with their sizes.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gift-circle/internal/config"
	"gift-circle/internal/db"
	"gift-circle/internal/store"

	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "inspect: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	limit := flag.Int("limit", 20, "number of games to list")
	flag.Parse()

	if err := config.LoadDotEnv(".env"); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}
	cfg, err := config.LoadDatabase()
	if err != nil {
		return err
	}
	if cfg.DBDriver == config.StoreMemory {
		return fmt.Errorf("DB_DRIVER=memory has nothing to inspect")
	}
	conn, err := db.Open(db.OptionsFrom(cfg))
	if err != nil {
		return err
	}
	if sqlDB, err := conn.DB(); err == nil {
		defer sqlDB.Close()
	}

	games, err := store.NewGormStore(conn).Overview(context.Background(), *limit)
	if err != nil {
		return err
	}
	render(os.Stdout, games)
	return nil
}

func render(w io.Writer, games []store.GameOverview) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Game", "Owner", "Status", "Created", "Participants", "Conversations", "Messages"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	for _, g := range games {
		table.Append([]string{
			g.ID,
			strconv.FormatInt(g.OwnerID, 10),
			statusLabel(g.Status),
			g.CreatedAt.Format(time.DateTime),
			strconv.Itoa(g.Participants),
			strconv.Itoa(g.Conversations),
			strconv.Itoa(g.Messages),
		})
	}
	table.Render()
}

func statusLabel(status store.GameStatus) string {
	if status == store.StatusActive {
		return color.Green.Render(string(status))
	}
	return color.Gray.Render(string(status))
}
