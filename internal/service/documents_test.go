package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/and161185/docdesk/internal/errs"
	"github.com/and161185/docdesk/internal/model"
)

func loggedIn(t *testing.T) *stack {
	t.Helper()
	s := newStack(t)
	_, err := s.sess.Login(context.Background(), "admin", "admin123")
	require.NoError(t, err)
	return s
}

func TestFilter_WeekExcludesOlderThanSevenDays(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	docs := []model.Document{
		{ID: "1", UploadDate: now.Add(-1 * time.Hour)},
		{ID: "2", UploadDate: now.Add(-6 * 24 * time.Hour)},
		{ID: "3", UploadDate: now.Add(-7 * 24 * time.Hour)},
		{ID: "4", UploadDate: now.Add(-7*24*time.Hour - time.Second)},
		{ID: "5", UploadDate: now.Add(-20 * 24 * time.Hour)},
	}

	got := Filter(docs, model.Filter{Range: model.RangeWeek}, now)
	ids := make([]string, 0, len(got))
	for _, d := range got {
		ids = append(ids, d.ID)
	}
	require.Equal(t, []string{"1", "2", "3"}, ids)
}

func TestFilter_Ranges(t *testing.T) {
	t.Parallel()
	loc := time.FixedZone("UTC+3", 3*60*60)
	now := time.Date(2025, 6, 10, 1, 0, 0, 0, loc)
	docs := []model.Document{
		{ID: "today-utc-yesterday", UploadDate: time.Date(2025, 6, 9, 22, 30, 0, 0, time.UTC)},
		{ID: "yesterday", UploadDate: now.Add(-25 * time.Hour)},
		{ID: "29d", UploadDate: now.Add(-29 * 24 * time.Hour)},
		{ID: "31d", UploadDate: now.Add(-31 * 24 * time.Hour)},
	}

	cases := []struct {
		r    model.DateRange
		want []string
	}{
		{model.RangeAll, []string{"today-utc-yesterday", "yesterday", "29d", "31d"}},
		{"", []string{"today-utc-yesterday", "yesterday", "29d", "31d"}},
		{model.RangeToday, []string{"today-utc-yesterday"}},
		{model.RangeMonth, []string{"today-utc-yesterday", "yesterday", "29d"}},
	}
	for _, tc := range cases {
		var ids []string
		for _, d := range Filter(docs, model.Filter{Range: tc.r}, now) {
			ids = append(ids, d.ID)
		}
		assert.Equal(t, tc.want, ids, "range %q", tc.r)
	}
}

func TestFilter_ComposesWithAnd(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	docs := []model.Document{
		{ID: "1", Category: "HR", Author: strptr("Ann"), UploadDate: now},
		{ID: "2", Category: "HR", Author: strptr("Bob"), UploadDate: now},
		{ID: "3", Category: "Legal", Author: strptr("Ann"), UploadDate: now},
		{ID: "4", Category: "HR", UploadDate: now},
		{ID: "5", Category: "HR", Author: strptr("Ann"), UploadDate: now.Add(-40 * 24 * time.Hour)},
	}

	got := Filter(docs, model.Filter{Category: "HR", Author: "Ann", Range: model.RangeMonth}, now)
	require.Len(t, got, 1)
	require.Equal(t, "1", got[0].ID)
}

func TestApplyFilters_PureAndIdempotent(t *testing.T) {
	t.Parallel()
	s := loggedIn(t)
	now := s.clk.Now()
	s.be.AddDoc(wireDoc{DocID: 1, Filename: "a.pdf", Category: "HR", UploadDate: now.Format(time.RFC3339)})
	s.be.AddDoc(wireDoc{DocID: 2, Filename: "b.pdf", Category: "Finance", UploadDate: now.Add(-48 * time.Hour).Format(time.RFC3339)})
	require.NoError(t, s.docs.LoadAll(context.Background()))

	before := s.docs.Snapshot()
	f := model.Filter{Category: "HR", Range: model.RangeToday}
	first := s.docs.ApplyFilters(f)
	second := s.docs.ApplyFilters(f)
	require.Equal(t, first, second)
	require.Len(t, first, 1)
	require.Equal(t, before, s.docs.Snapshot(), "ApplyFilters must not touch the collection")

	after := s.docs.ShowFiltered(f)
	require.Equal(t, first, after.View)
	require.Len(t, after.All, 2)
	require.Greater(t, after.Version, before.Version)
}

func TestLoadAll_ReplacesAndComputesFacets(t *testing.T) {
	t.Parallel()
	s := loggedIn(t)
	ctx := context.Background()
	ts := s.clk.Now().Format("2006-01-02T15:04:05")

	s.be.AddDoc(wireDoc{DocID: 1, Filename: "a.pdf", Category: "Legal", Author: strptr("Zed"), UploadDate: ts})
	s.be.AddDoc(wireDoc{DocID: 2, Filename: "b.pdf", Category: "HR", Author: strptr("Ann"), UploadDate: ts})
	s.be.AddDoc(wireDoc{DocID: 1, Filename: "dup.pdf", Category: "Other", UploadDate: ts})
	s.be.AddDoc(wireDoc{DocID: 3, Filename: "c.pdf", Category: "HR", Author: strptr(""), UploadDate: ts})

	var versions []uint64
	s.docs.Subscribe(func(sn Snapshot) { versions = append(versions, sn.Version) })

	require.NoError(t, s.docs.LoadAll(ctx))
	snap := s.docs.Snapshot()
	require.Len(t, snap.All, 3)
	require.Equal(t, "a.pdf", snap.All[0].Filename, "server order, first duplicate wins")
	require.Equal(t, snap.All, snap.View)
	require.Equal(t, []string{"HR", "Legal"}, snap.Categories)
	require.Equal(t, []string{"Ann", "Zed"}, snap.Authors)
	require.Nil(t, snap.All[2].Author)
	require.Len(t, versions, 1)
}

func TestGet(t *testing.T) {
	t.Parallel()
	s := loggedIn(t)
	ctx := context.Background()
	s.be.AddDoc(wireDoc{DocID: 7, Filename: "policy.txt", Category: "HR", UploadDate: "2025-06-01T10:00:00"})

	d, err := s.docs.Get(ctx, "7")
	require.NoError(t, err)
	require.Equal(t, "policy.txt", d.Filename)
	require.NotNil(t, d.ContentPreview)

	_, err = s.docs.Get(ctx, "404")
	require.ErrorIs(t, err, errs.ErrNotFound)
	require.Equal(t, "Document not found", errs.UserMessage(err))

	_, err = s.docs.Get(ctx, " ")
	require.ErrorIs(t, err, errs.ErrValidation)
}

func TestDownload(t *testing.T) {
	t.Parallel()
	s := loggedIn(t)
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "out")
	s.be.AddDoc(wireDoc{DocID: 7, Filename: "policy.txt", UploadDate: "2025-06-01T10:00:00"})
	s.be.AddDoc(wireDoc{DocID: 8, Filename: "", UploadDate: "2025-06-01T10:00:00"})

	p, err := s.docs.Download(ctx, "7", dir)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "policy.txt"), p)
	b, err := os.ReadFile(p)
	require.NoError(t, err)
	require.Equal(t, "content of policy.txt", string(b))

	p, err = s.docs.Download(ctx, "8", dir)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "document-8"), p)

	_, err = s.docs.Download(ctx, "9", dir)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestSafeName(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"report.pdf":          "report.pdf",
		"../../etc/passwd":    "passwd",
		`C:\temp\evil.docx`:   "evil.docx",
		"":                    "",
		"..":                  "",
		"we\x00ird\nname.txt": "weirdname.txt",
	}
	for in, want := range cases {
		assert.Equal(t, want, SafeName(in), "input %q", in)
	}
}

func TestAccessLogs(t *testing.T) {
	t.Parallel()
	s := loggedIn(t)

	logs, err := s.docs.AccessLogs(context.Background(), 1, 2)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Equal(t, "download", logs[0].Action)
	require.Equal(t, "d-1", *logs[0].DocUUID)
}
