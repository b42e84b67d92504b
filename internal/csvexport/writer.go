package csvexport

import (
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"reclaim/internal/domain"
)

// UTF-8 BOM bytes for Excel compatibility on Windows.
var BOM = []byte{0xEF, 0xBB, 0xBF}

// columns defines the CSV header row.
var columns = []string{
	"Issue Type",
	"Summary",
	"Max Savings",
	"Confidence",
	"Source",
	"Status",
	"Document ID",
	"Notes",
	"Created At",
}

// Writer wraps csv.Writer for exporting analysis issues as CSV.
type Writer struct {
	csv *csv.Writer
}

// NewWriter creates a Writer that writes CSV to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{csv: csv.NewWriter(w)}
}

// WriteHeader writes the header row.
func (w *Writer) WriteHeader() error {
	return w.csv.Write(columns)
}

// WriteIssues converts issues to CSV rows and writes them, followed by a
// totals row summing savings over non-ignored issues.
func (w *Writer) WriteIssues(issues []domain.Issue) error {
	var total float64
	for i := range issues {
		issue := &issues[i]
		if err := w.csv.Write(issueToRow(issue)); err != nil {
			return err
		}
		if issue.Status != domain.IssueStatusIgnored {
			total += issue.MaxSavings
		}
	}
	totalRow := make([]string, len(columns))
	totalRow[0] = "TOTAL"
	totalRow[2] = formatMoney(total)
	return w.csv.Write(totalRow)
}

// Flush flushes the underlying csv.Writer buffer.
func (w *Writer) Flush() {
	w.csv.Flush()
}

// Error returns any error from the underlying csv.Writer.
func (w *Writer) Error() error {
	return w.csv.Error()
}

func issueToRow(issue *domain.Issue) []string {
	row := make([]string, len(columns))
	row[0] = string(issue.Type)
	row[1] = issue.Summary
	row[2] = formatMoney(issue.MaxSavings)
	row[3] = string(issue.Confidence)
	row[4] = issue.Source
	row[5] = string(issue.Status)
	if issue.DocumentID != nil {
		row[6] = issue.DocumentID.String()
	}
	row[7] = issue.Notes
	row[8] = issue.CreatedAt.Format(time.RFC3339)
	return row
}

func formatMoney(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// nonAlphanumeric matches characters that are not alphanumeric, hyphen, or underscore.
var nonAlphanumeric = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// multiUnderscore matches consecutive underscores.
var multiUnderscore = regexp.MustCompile(`_{2,}`)

// SanitizeFilename cleans a name for use in Content-Disposition. Replaces
// non-alphanumeric chars (except - _) with _, collapses consecutive
// underscores, and truncates to 100 chars.
func SanitizeFilename(name string) string {
	s := nonAlphanumeric.ReplaceAllString(name, "_")
	s = multiUnderscore.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if len(s) > 100 {
		s = s[:100]
	}
	return s
}

// BuildFilename returns a sanitized filename for the Content-Disposition
// header. Format: {sanitized_name}_{YYYY-MM-DD}.csv
func BuildFilename(name string) string {
	sanitized := SanitizeFilename(name)
	date := time.Now().Format("2006-01-02")
	return fmt.Sprintf("%s_%s.csv", sanitized, date)
}
