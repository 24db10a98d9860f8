// Package audit exposes the read side of the decision audit log: a filtered,
// paginated timeline and a CSV export for forensics. The log itself is
// append-only; nothing here updates or deletes records.
package audit

import "time"

// Entry is one decision record read back from the log.
type Entry struct {
	ID           string         `json:"id"`
	EventType    string         `json:"event_type"`
	OccurredAt   time.Time      `json:"occurred_at"`
	UserID       string         `json:"user_id"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id"`
	Action       string         `json:"action"`
	Decision     string         `json:"decision"`
	Reason       string         `json:"reason"`
	Engine       string         `json:"engine"`
	RequestMeta  map[string]any `json:"request_meta,omitempty"`
	ResponseMeta map[string]any `json:"response_meta,omitempty"`
	SessionID    string         `json:"session_id,omitempty"`
	IP           string         `json:"ip,omitempty"`
	UserAgent    string         `json:"user_agent,omitempty"`
}

// TimelineFilters narrows the timeline query. Zero values mean "no filter".
type TimelineFilters struct {
	From     time.Time
	To       time.Time
	UserID   string
	Decision string
	Engine   string
	Page     int
	PageSize int
}

// PagingInfo describes the returned window.
type PagingInfo struct {
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasNext  bool `json:"has_next"`
	PrevPage int  `json:"prev_page,omitempty"`
	NextPage int  `json:"next_page,omitempty"`
}

// Result bundles timeline rows with paging information.
type Result struct {
	Rows   []Entry    `json:"rows"`
	Paging PagingInfo `json:"paging"`
}
