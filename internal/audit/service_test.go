package audit

import (
	"bytes"
	"context"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	rows []Entry
}

func (m *memoryStore) TimelineWindow(ctx context.Context, f TimelineFilters, offset, limit int) ([]Entry, error) {
	filtered := m.filter(f)
	if offset >= len(filtered) {
		return nil, nil
	}
	end := offset + limit
	if end > len(filtered) {
		end = len(filtered)
	}
	return filtered[offset:end], nil
}

func (m *memoryStore) TimelineAll(ctx context.Context, f TimelineFilters) ([]Entry, error) {
	return m.filter(f), nil
}

func (m *memoryStore) filter(f TimelineFilters) []Entry {
	var out []Entry
	for _, e := range m.rows {
		if f.UserID != "" && e.UserID != f.UserID {
			continue
		}
		if f.Decision != "" && e.Decision != f.Decision {
			continue
		}
		out = append(out, e)
	}
	return out
}

func seedEntries(n int) []Entry {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	rows := make([]Entry, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, Entry{
			ID:           strconv.Itoa(i),
			EventType:    "authorization.check",
			OccurredAt:   base.Add(time.Duration(i) * time.Minute),
			UserID:       "alice",
			ResourceType: "case",
			Action:       "read",
			Decision:     "ALLOW",
			Engine:       "LOCAL",
		})
	}
	return rows
}

func TestTimelinePaging(t *testing.T) {
	svc := NewService(&memoryStore{rows: seedEntries(25)})

	res, err := svc.Timeline(context.Background(), TimelineFilters{Page: 1, PageSize: 10})
	require.NoError(t, err)
	require.Len(t, res.Rows, 10)
	require.True(t, res.Paging.HasNext)
	require.Equal(t, 2, res.Paging.NextPage)

	res, err = svc.Timeline(context.Background(), TimelineFilters{Page: 3, PageSize: 10})
	require.NoError(t, err)
	require.Len(t, res.Rows, 5)
	require.False(t, res.Paging.HasNext)
	require.Equal(t, 2, res.Paging.PrevPage)
}

func TestTimelineClampsPageSize(t *testing.T) {
	svc := NewService(&memoryStore{rows: seedEntries(5)})

	res, err := svc.Timeline(context.Background(), TimelineFilters{PageSize: 5000})
	require.NoError(t, err)
	require.Equal(t, 100, res.Paging.PageSize)

	res, err = svc.Timeline(context.Background(), TimelineFilters{PageSize: -1})
	require.NoError(t, err)
	require.Equal(t, 20, res.Paging.PageSize)
}

func TestTimelineDecisionFilter(t *testing.T) {
	rows := seedEntries(4)
	rows[1].Decision = "DENY"
	svc := NewService(&memoryStore{rows: rows})

	res, err := svc.Timeline(context.Background(), TimelineFilters{Decision: "DENY"})
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	require.Equal(t, "1", res.Rows[0].ID)
}

func TestWriteCSV(t *testing.T) {
	entries := seedEntries(2)
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, entries))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	require.True(t, strings.HasPrefix(lines[0], "occurred_at,"))
	require.Contains(t, lines[1], "ALLOW")
}
