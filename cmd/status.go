package cmd

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/rowplane/rowplane/internal/idmap"
	"github.com/rowplane/rowplane/internal/migration"
	"github.com/rowplane/rowplane/internal/state"
)

var (
	colorPrimary = lipgloss.Color("86")  // Cyan
	colorSuccess = lipgloss.Color("42")  // Green
	colorError   = lipgloss.Color("196") // Red
	colorMuted   = lipgloss.Color("240") // Gray

	headerStyle = lipgloss.NewStyle().
			Foreground(colorPrimary).
			Bold(true)

	cellStyle = lipgloss.NewStyle().
			PaddingRight(2)

	mutedStyle = lipgloss.NewStyle().
			Foreground(colorMuted)

	completeStyle = lipgloss.NewStyle().
			Foreground(colorSuccess)

	failedStyle = lipgloss.NewStyle().
			Foreground(colorError).
			Bold(true)
)

var statusCmd = &cobra.Command{
	Use:   "status [migration...]",
	Short: "Show the progress of migrations",
	Long: `Status counts the source rows of each migration and the identity map
entries per status. Without arguments every migration is shown.`,
	Run: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	s, err := openSession(ctx)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer s.Close()

	defs, err := s.catalog.Ordered(args...)
	if err != nil {
		log.Fatalf("%v", err)
	}

	var reports []*migration.Status
	for _, def := range defs {
		runner, err := s.migrate.Runner(def.ID)
		if err != nil {
			log.Fatalf("%v", err)
		}
		st, err := runner.Status(ctx)
		if err != nil {
			log.Fatalf("%s: %v", def.ID, err)
		}
		reports = append(reports, st)
	}

	fmt.Print(renderStatus(reports))

	orphans, err := orphanedMapTables(ctx, s)
	if err != nil {
		log.Fatalf("%v", err)
	}
	for _, table := range orphans {
		fmt.Println(mutedStyle.Render(fmt.Sprintf("%s belongs to no migration definition", table)))
	}

	st, err := state.Load(s.cfg.ConfigDir())
	if err != nil {
		log.Fatalf("%v", err)
	}
	for _, op := range st.Active(s.env.Name) {
		fmt.Println(mutedStyle.Render(fmt.Sprintf("%s: %s in progress since %s (pid %d)",
			op.MigrationID, op.Kind, op.StartedAt.Local().Format("2006-01-02 15:04:05"), op.PID)))
	}
}

// orphanedMapTables lists map tables left behind by migrations whose
// definition was removed.
func orphanedMapTables(ctx context.Context, s *session) ([]string, error) {
	tables, err := idmap.MapTables(ctx, s.db, s.dialect)
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool)
	for _, id := range s.catalog.IDs() {
		known[idmap.MapTableName(id)] = true
	}
	var orphans []string
	for _, table := range tables {
		if !known[table] {
			orphans = append(orphans, table)
		}
	}
	return orphans, nil
}

var statusColumns = []string{"MIGRATION", "TOTAL", "IMPORTED", "UPDATE", "IGNORED", "FAILED", "UNPROCESSED", "MESSAGES"}

// renderStatus lays the reports out as an aligned table.
func renderStatus(reports []*migration.Status) string {
	rows := [][]string{statusColumns}
	for _, st := range reports {
		total := strconv.Itoa(st.Total)
		if st.Total < 0 {
			total = "n/a"
		}
		rows = append(rows, []string{
			st.MigrationID,
			total,
			strconv.Itoa(st.Counts[idmap.StatusImported]),
			strconv.Itoa(st.Counts[idmap.StatusNeedsUpdate]),
			strconv.Itoa(st.Counts[idmap.StatusIgnored]),
			strconv.Itoa(st.Counts[idmap.StatusFailed]),
			strconv.Itoa(st.Unprocessed),
			strconv.Itoa(st.Messages),
		})
	}

	widths := make([]int, len(statusColumns))
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}

	var b strings.Builder
	for r, row := range rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			style := cellStyle.Width(widths[i] + 2)
			switch {
			case r == 0:
				style = style.Inherit(headerStyle)
			case i == 0 && reports[r-1].Unprocessed == 0 && reports[r-1].Total > 0:
				style = style.Inherit(completeStyle)
			case i == 5 && cell != "0":
				style = style.Inherit(failedStyle)
			case cell == "0":
				style = style.Inherit(mutedStyle)
			}
			cells[i] = style.Render(cell)
		}
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, cells...))
		b.WriteString("\n")
	}
	return b.String()
}
