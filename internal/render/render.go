// Package render turns documents and upload tasks into view descriptions.
// Functions here hold no state and do no I/O.
package render

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/and161185/docdesk/internal/model"
)

// Display constants.
const (
	DateLayout    = "2006-01-02 15:04"
	UnknownAuthor = "Unknown"
	SummaryLimit  = 100
	NoSummary     = "No summary available"
)

// Row is one document line of a listing.
type Row struct {
	ID        string
	Filename  string
	Category  string
	Author    string
	Uploaded  string
	Summary   string
	Relevance string // empty unless the row came from a search
}

// Rows maps documents to rows in order.
func Rows(docs []model.Document) []Row {
	out := make([]Row, 0, len(docs))
	for _, d := range docs {
		r := Row{
			ID:       d.ID,
			Filename: d.Filename,
			Category: d.Category,
			Author:   UnknownAuthor,
			Summary:  NoSummary,
		}
		if d.Author != nil {
			r.Author = *d.Author
		}
		if !d.UploadDate.IsZero() {
			r.Uploaded = d.UploadDate.Format(DateLayout)
		}
		if d.Summary != nil {
			r.Summary = Truncate(*d.Summary, SummaryLimit)
		}
		if d.Relevance != nil {
			r.Relevance = fmt.Sprintf("%.2f", *d.Relevance)
		}
		out = append(out, r)
	}
	return out
}

// Truncate shortens s to n runes and appends "..." when it was longer.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "..."
}

var headerStyle = lipgloss.NewStyle().Bold(true)

// Table lays rows out as a bordered text table.
func Table(rows []Row) string {
	if len(rows) == 0 {
		return "No documents found."
	}
	withScore := false
	for _, r := range rows {
		if r.Relevance != "" {
			withScore = true
			break
		}
	}
	headers := []string{"ID", "FILENAME", "CATEGORY", "AUTHOR", "UPLOADED"}
	if withScore {
		headers = append(headers, "SCORE")
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return lipgloss.NewStyle()
		})
	for _, r := range rows {
		cells := []string{r.ID, r.Filename, r.Category, r.Author, r.Uploaded}
		if withScore {
			cells = append(cells, r.Relevance)
		}
		t.Row(cells...)
	}
	return t.Render()
}

// Detail is the full text view of one document.
func Detail(d model.Document) string {
	r := Rows([]model.Document{d})[0]
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", d.Filename)
	fmt.Fprintf(&b, "  ID:       %s\n", d.ID)
	fmt.Fprintf(&b, "  Category: %s\n", r.Category)
	fmt.Fprintf(&b, "  Author:   %s\n", r.Author)
	fmt.Fprintf(&b, "  Uploaded: %s\n", r.Uploaded)
	if d.OwnerUUID != "" {
		fmt.Fprintf(&b, "  Owner:    %s\n", d.OwnerUUID)
	}
	if r.Relevance != "" {
		fmt.Fprintf(&b, "  Score:    %s\n", r.Relevance)
	}
	summary := NoSummary
	if d.Summary != nil {
		summary = *d.Summary
	}
	fmt.Fprintf(&b, "\nSummary:\n  %s\n", summary)
	if d.ContentPreview != nil {
		fmt.Fprintf(&b, "\nPreview:\n  %s\n", *d.ContentPreview)
	}
	return b.String()
}

// ProgressBar draws p (clamped to 0..100) in width cells followed by the percentage.
func ProgressBar(p, width int) string {
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}
	if width < 1 {
		width = 1
	}
	filled := p * width / 100
	return "[" + strings.Repeat("#", filled) + strings.Repeat("-", width-filled) + fmt.Sprintf("] %3d%%", p)
}

// Task renders one upload line.
func Task(t model.UploadTask, width int) string {
	switch t.State {
	case model.UploadFailed:
		msg := "failed"
		if t.Err != nil {
			msg = t.Err.Error()
		}
		return fmt.Sprintf("%s  %s", t.Name, msg)
	case model.UploadPending:
		return fmt.Sprintf("%s  waiting", t.Name)
	}
	return fmt.Sprintf("%s  %s", t.Name, ProgressBar(t.Progress, width))
}

// Options renders a selector line with the chosen value marked; an empty value stands for "All".
func Options(values []string, selected string) string {
	all := append([]string{""}, values...)
	parts := make([]string, 0, len(all))
	for _, v := range all {
		label := v
		if label == "" {
			label = "All"
		}
		if v == selected {
			label = "[" + label + "]"
		}
		parts = append(parts, label)
	}
	return strings.Join(parts, " ")
}

// Logs renders access-log records one per line.
func Logs(logs []model.AccessLog) string {
	if len(logs) == 0 {
		return "No access logs."
	}
	var b strings.Builder
	for _, l := range logs {
		doc := "-"
		if l.DocUUID != nil {
			doc = *l.DocUUID
		}
		fmt.Fprintf(&b, "%d  %s  %-10s user=%s doc=%s\n", l.LogID, l.Timestamp.Format(DateLayout), l.Action, l.UserUUID, doc)
	}
	return b.String()
}
