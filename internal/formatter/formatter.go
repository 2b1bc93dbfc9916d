// package formatter exports list snapshots to various formats (CSV, JSON, Markdown, plain text)
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/rmtj/malup/internal/shared"
	"github.com/rmtj/malup/internal/tasks"
)

// Export formats understood by Export and WriteExport.
const (
	FormatCSV      = "csv"
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
	FormatText     = "txt"
)

// Export renders entries in the named format.
// Fails with [shared.ErrInvalidFlag] for an unknown format name.
func Export(entries []tasks.ListEntry, format string) ([]byte, error) {
	switch format {
	case FormatCSV:
		return ExportToCSV(entries)
	case FormatJSON:
		return ExportToJSON(entries)
	case FormatMarkdown, "md":
		return ExportToMarkdown(entries)
	case FormatText, "text":
		return ExportToText(entries)
	default:
		return nil, fmt.Errorf("%w: unknown export format %q", shared.ErrInvalidFlag, format)
	}
}

// ContentType returns the MIME type served for the given format.
func ContentType(format string) string {
	switch format {
	case FormatJSON:
		return "application/json"
	case FormatCSV:
		return "text/csv"
	case FormatMarkdown, "md":
		return "text/markdown"
	default:
		return "text/plain"
	}
}

// Extension returns the file extension used for the given format.
func Extension(format string) string {
	switch format {
	case FormatJSON:
		return "json"
	case FormatCSV:
		return "csv"
	case FormatMarkdown, "md":
		return "md"
	default:
		return "txt"
	}
}

// ExportToCSV converts a snapshot to CSV format with columns: ID, Title, Status, Watched, Total, Score, UpdatedAt
func ExportToCSV(entries []tasks.ListEntry) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"ID", "Title", "Status", "Watched", "Total", "Score", "UpdatedAt"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, entry := range entries {
		record := []string{
			strconv.Itoa(entry.ID),
			entry.Title,
			entry.Status,
			intField(entry.WatchedEpisodes),
			intField(entry.TotalEpisodes),
			intField(entry.Score),
			stringField(entry.UpdatedAt),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToJSON converts a snapshot to indented JSON, preserving nulls for
// absent values.
func ExportToJSON(entries []tasks.ListEntry) ([]byte, error) {
	return shared.MarshalJSON(entries, true)
}

// ExportToMarkdown converts a snapshot to a Markdown table.
func ExportToMarkdown(entries []tasks.ListEntry) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString("# Anime List\n\n")
	buf.WriteString(fmt.Sprintf("**Entries**: %d\n\n", len(entries)))
	buf.WriteString("| Title | Status | Progress | Score |\n")
	buf.WriteString("| --- | --- | --- | --- |\n")

	for _, entry := range entries {
		buf.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n",
			entry.Title, entry.Status, progressField(entry), intField(entry.Score)))
	}

	return buf.Bytes(), nil
}

// ExportToText converts a snapshot to plain text format.
func ExportToText(entries []tasks.ListEntry) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("Anime list (%d entries)\n\n", len(entries)))
	for i, entry := range entries {
		line := fmt.Sprintf("%d. %s [%s]", i+1, entry.Title, entry.Status)
		if progress := progressField(entry); progress != "" {
			line += " " + progress
		}
		if entry.Score != nil {
			line += fmt.Sprintf(" (score %d)", *entry.Score)
		}
		buf.WriteString(line + "\n")
	}

	return buf.Bytes(), nil
}

// WriteExport renders entries in the named format and writes them to path.
//
// Defaults to animelist.{ext} when path is empty; returns the path written.
func WriteExport(entries []tasks.ListEntry, format, path string) (string, error) {
	data, err := Export(entries, format)
	if err != nil {
		return "", err
	}

	if path == "" {
		path = "animelist." + Extension(format)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write export file: %w", err)
	}

	return path, nil
}

func intField(p *int) string {
	if p == nil {
		return ""
	}
	return strconv.Itoa(*p)
}

func stringField(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// progressField renders watched/total, leaving the unknown side blank.
func progressField(entry tasks.ListEntry) string {
	if entry.WatchedEpisodes == nil && entry.TotalEpisodes == nil {
		return ""
	}
	return fmt.Sprintf("%s/%s", orDash(entry.WatchedEpisodes), orDash(entry.TotalEpisodes))
}

func orDash(p *int) string {
	if p == nil {
		return "?"
	}
	return strconv.Itoa(*p)
}
