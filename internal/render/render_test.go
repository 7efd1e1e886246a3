package render

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/and161185/docdesk/internal/model"
)

func sp(s string) *string { return &s }

func TestRows(t *testing.T) {
	t.Parallel()
	score := 0.8765
	long := strings.Repeat("é", 120)
	docs := []model.Document{
		{ID: "1", Filename: "a.pdf", Category: "HR", UploadDate: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC), Summary: sp(long)},
		{ID: "2", Filename: "b.pdf", Category: "Legal", Author: sp("Ann"), Relevance: &score},
	}

	rows := Rows(docs)
	require.Len(t, rows, 2)
	assert.Equal(t, UnknownAuthor, rows[0].Author)
	assert.Equal(t, "2025-01-02 03:04", rows[0].Uploaded)
	assert.Equal(t, 103, len([]rune(rows[0].Summary)))
	assert.True(t, strings.HasSuffix(rows[0].Summary, "..."))
	assert.Equal(t, "Ann", rows[1].Author)
	assert.Equal(t, NoSummary, rows[1].Summary)
	assert.Equal(t, "0.88", rows[1].Relevance)
}

func TestTruncate(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "abc", Truncate("abc", 3))
	assert.Equal(t, "ab...", Truncate("abc", 2))
	assert.Equal(t, "", Truncate("", 5))
}

func TestTable(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "No documents found.", Table(nil))

	out := Table([]Row{{ID: "7", Filename: "policy.txt", Category: "HR", Author: "Ann", Uploaded: "2025-01-02 03:04"}})
	assert.Contains(t, out, "FILENAME")
	assert.Contains(t, out, "policy.txt")
	assert.NotContains(t, out, "SCORE")

	out = Table([]Row{{ID: "7", Filename: "policy.txt", Relevance: "0.50"}})
	assert.Contains(t, out, "SCORE")
	assert.Contains(t, out, "0.50")
}

func TestDetail(t *testing.T) {
	t.Parallel()
	out := Detail(model.Document{ID: "3", Filename: "c.txt", Category: "Finance", ContentPreview: sp("hello")})
	assert.Contains(t, out, "c.txt")
	assert.Contains(t, out, "Author:   Unknown")
	assert.Contains(t, out, NoSummary)
	assert.Contains(t, out, "Preview:\n  hello")
}

func TestProgressBar(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "[----------]   0%", ProgressBar(0, 10))
	assert.Equal(t, "[#####-----]  50%", ProgressBar(50, 10))
	assert.Equal(t, "[##########] 100%", ProgressBar(150, 10))
	assert.Equal(t, "[-]   0%", ProgressBar(-3, 0))
}

func TestTask(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "a.txt  waiting", Task(model.UploadTask{Name: "a.txt", State: model.UploadPending}, 10))
	assert.Equal(t, "a.txt  boom", Task(model.UploadTask{Name: "a.txt", State: model.UploadFailed, Err: errors.New("boom")}, 10))
	assert.Equal(t, "a.txt  [#---]  30%", Task(model.UploadTask{Name: "a.txt", State: model.UploadInFlight, Progress: 30}, 4))
}

func TestOptions(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "[All] HR Legal", Options([]string{"HR", "Legal"}, ""))
	assert.Equal(t, "All HR [Legal]", Options([]string{"HR", "Legal"}, "Legal"))
}

func TestLogs(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "No access logs.", Logs(nil))
	out := Logs([]model.AccessLog{{LogID: 1, UserUUID: "u", Action: "view", Timestamp: time.Date(2025, 1, 2, 3, 4, 0, 0, time.UTC)}})
	assert.Contains(t, out, "doc=-")
	assert.Contains(t, out, "2025-01-02 03:04")
}
