package domain

import (
	"encoding/json"
	"time"
)

const DefaultSubscriberName = "Subscriber"

// TimestampLayout is the wire format of subscriber timestamps (JSON, CSV and
// the file backend).
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

type Subscriber struct {
	ID           string
	Name         string
	Email        string
	CreatedAt    time.Time
	Unsubscribed bool
}

func (s Subscriber) Active() bool { return !s.Unsubscribed }

type subscriberJSON struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	Timestamp    string `json:"timestamp"`
	Unsubscribed bool   `json:"unsubscribed"`
}

func (s Subscriber) MarshalJSON() ([]byte, error) {
	return json.Marshal(subscriberJSON{
		ID:           s.ID,
		Name:         s.Name,
		Email:        s.Email,
		Timestamp:    FormatTimestamp(s.CreatedAt),
		Unsubscribed: s.Unsubscribed,
	})
}

func (s *Subscriber) UnmarshalJSON(b []byte) error {
	var raw struct {
		ID           json.RawMessage `json:"id"`
		Name         string          `json:"name"`
		Email        string          `json:"email"`
		Timestamp    string          `json:"timestamp"`
		Unsubscribed bool            `json:"unsubscribed"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	*s = Subscriber{
		ID:           rawID(raw.ID),
		Name:         raw.Name,
		Email:        raw.Email,
		Unsubscribed: raw.Unsubscribed,
	}
	if raw.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339Nano, raw.Timestamp)
		if err == nil {
			s.CreatedAt = ts.UTC()
		}
	}
	return nil
}

// rawID accepts both string ids and the numeric ids written by older
// waitlist files.
func rawID(m json.RawMessage) string {
	if len(m) == 0 || string(m) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(m, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(m, &n); err == nil {
		return n.String()
	}
	return ""
}

func FormatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(TimestampLayout)
}

type AddStatus string

const (
	AddStatusInvalid      AddStatus = "invalid"
	AddStatusDuplicate    AddStatus = "duplicate"
	AddStatusCreated      AddStatus = "created"
	AddStatusResubscribed AddStatus = "resubscribed"
)

type MergeRow struct {
	Name  string
	Email string
}

// NormalizeMergeRows normalizes names and emails, drops rows with invalid
// emails and collapses duplicates so the last occurrence wins. The order of
// first appearance is kept.
func NormalizeMergeRows(rows []MergeRow) []MergeRow {
	out := make([]MergeRow, 0, len(rows))
	index := make(map[string]int, len(rows))
	for _, r := range rows {
		email := NormalizeEmail(r.Email)
		if !IsValidEmail(email) {
			continue
		}
		row := MergeRow{Name: NormalizeName(r.Name), Email: email}
		if i, ok := index[email]; ok {
			out[i] = row
			continue
		}
		index[email] = len(out)
		out = append(out, row)
	}
	return out
}
