// Package convert maps backend JSON payloads to domain entities and back.
package convert

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/and161185/docdesk/internal/model"
)

// --- helpers ---

// ID accepts both numeric and string identifiers and keeps them opaque.
type ID string

// UnmarshalJSON implements json.Unmarshaler.
func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("invalid id %s: %w", b, err)
	}
	*id = ID(n.String())
	return nil
}

// Time parses the backend's ISO-8601 timestamps; values without a zone are UTC.
type Time struct{ time.Time }

var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Time) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("invalid timestamp %s: %w", b, err)
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	parsed, err := ParseTime(s)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

// ParseTime accepts RFC 3339 and zone-less ISO-8601 variants.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if v, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return v, nil
	}
	for _, layout := range naiveLayouts {
		if v, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return v, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

// --- documents ---

// Document is the backend's document payload.
type Document struct {
	DocID          ID       `json:"docid"`
	Filename       string   `json:"filename"`
	Category       string   `json:"category"`
	Author         *string  `json:"author"`
	Summary        *string  `json:"summary"`
	UploadDate     Time     `json:"upload_date"`
	UUID           string   `json:"uuid"`
	ContentPreview *string  `json:"content_preview"`
	Relevance      *float64 `json:"relevance_score"`
}

// ToDocument converts a wire document to the domain entity. Empty optional strings become absent.
func ToDocument(in Document) model.Document {
	return model.Document{
		ID:             string(in.DocID),
		Filename:       in.Filename,
		Category:       in.Category,
		Author:         nonEmpty(in.Author),
		UploadDate:     in.UploadDate.Time,
		Summary:        nonEmpty(in.Summary),
		ContentPreview: nonEmpty(in.ContentPreview),
		OwnerUUID:      in.UUID,
		Relevance:      in.Relevance,
	}
}

// ToDocuments converts a response list, keeping server order and dropping repeated IDs.
func ToDocuments(in []Document) []model.Document {
	out := make([]model.Document, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, d := range in {
		doc := ToDocument(d)
		if _, dup := seen[doc.ID]; dup {
			continue
		}
		seen[doc.ID] = struct{}{}
		out = append(out, doc)
	}
	return out
}

func nonEmpty(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	v := *s
	return &v
}

// --- users ---

// User is the /users/me payload.
type User struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	UUID     string `json:"uuid"`
}

// ToProfile converts a wire user into a profile.
func ToProfile(in User) model.UserProfile {
	return model.UserProfile{Username: in.Username, Role: in.Role, UUID: in.UUID}
}

// UserCreate is the registration body.
type UserCreate struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// FromRegistration builds the registration body; the confirmation never leaves the client.
func FromRegistration(r model.Registration) UserCreate {
	return UserCreate{Username: strings.TrimSpace(r.Username), Password: r.Password, Role: r.Role}
}

// --- logs / health ---

// AccessLog is the /logs/ payload.
type AccessLog struct {
	LogID     int64   `json:"log_id"`
	UserUUID  string  `json:"user_uuid"`
	DocUUID   *string `json:"doc_uuid"`
	Action    string  `json:"action"`
	Timestamp Time    `json:"timestamp"`
}

// ToAccessLogs converts a list of wire logs.
func ToAccessLogs(in []AccessLog) []model.AccessLog {
	out := make([]model.AccessLog, 0, len(in))
	for _, l := range in {
		out = append(out, model.AccessLog{
			LogID:     l.LogID,
			UserUUID:  l.UserUUID,
			DocUUID:   nonEmpty(l.DocUUID),
			Action:    l.Action,
			Timestamp: l.Timestamp.Time,
		})
	}
	return out
}

// Health is the /health payload.
type Health struct {
	Status           string `json:"status"`
	Timestamp        Time   `json:"timestamp"`
	IndexedDocuments int    `json:"indexed_documents"`
	TotalMappings    int    `json:"total_mappings"`
}

// ToHealth converts the liveness payload.
func ToHealth(in Health) model.Health {
	return model.Health{
		Status:           in.Status,
		Timestamp:        in.Timestamp.Time,
		IndexedDocuments: in.IndexedDocuments,
		TotalMappings:    in.TotalMappings,
	}
}
