package audit

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"time"
)

// Store abstracts the timeline queries the service needs.
type Store interface {
	TimelineWindow(ctx context.Context, f TimelineFilters, offset, limit int) ([]Entry, error)
	TimelineAll(ctx context.Context, f TimelineFilters) ([]Entry, error)
}

// Service coordinates audit timeline retrieval.
type Service struct {
	store Store
}

// NewService creates a new audit timeline service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Timeline fetches one page of audit data. Page size is clamped to 1..100.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s.store == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * pageSize

	rows, err := s.store.TimelineWindow(ctx, filters, offset, pageSize+1)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: rows, Paging: paging}, nil
}

// Export fetches the full matching timeline without paging.
func (s *Service) Export(ctx context.Context, filters TimelineFilters) ([]Entry, error) {
	if s.store == nil {
		return nil, fmt.Errorf("audit: repository not configured")
	}
	return s.store.TimelineAll(ctx, filters)
}

// WriteCSV streams entries as CSV for forensic tooling.
func WriteCSV(w io.Writer, entries []Entry) error {
	cw := csv.NewWriter(w)
	header := []string{"occurred_at", "event_type", "user_id", "resource_type", "resource_id", "action", "decision", "reason", "engine", "session_id", "ip"}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, e := range entries {
		record := []string{
			e.OccurredAt.Format(time.RFC3339),
			e.EventType,
			e.UserID,
			e.ResourceType,
			e.ResourceID,
			e.Action,
			e.Decision,
			e.Reason,
			e.Engine,
			e.SessionID,
			e.IP,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

var _ Store = (*Repository)(nil)
