package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/weararcstarz/arcstar/internal/domain"
)

const (
	MaxSubjectLength = 140
	MaxMessageLength = 10000
	MaxMergeRows     = 5000
)

type BroadcastNotifier interface {
	Configured() bool
	SendBroadcast(ctx context.Context, subject, message string, to domain.Subscriber) error
}

type AdminService struct {
	Store    SubscriberStore
	Notifier BroadcastNotifier
	Logger   *slog.Logger
}

func (s *AdminService) ListSubscribers(ctx context.Context) ([]domain.Subscriber, error) {
	subs, err := s.Store.ListSubscribers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}
	return subs, nil
}

// WriteCSV writes subscribers with the header name,email,timestamp,unsubscribed.
func WriteCSV(w io.Writer, subs []domain.Subscriber) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"name", "email", "timestamp", "unsubscribed"}); err != nil {
		return err
	}
	for _, sub := range subs {
		rec := []string{
			csvCell(sub.Name),
			csvCell(sub.Email),
			domain.FormatTimestamp(sub.CreatedAt),
			strconv.FormatBool(sub.Unsubscribed),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// csvCell neutralizes values a spreadsheet would evaluate as a formula.
func csvCell(v string) string {
	if v == "" {
		return v
	}
	switch v[0] {
	case '=', '+', '-', '@', '\t', '\r':
		return "'" + v
	}
	return v
}

type MergeResult struct {
	Count    int
	Imported int
	Skipped  int
}

// ParseMergeRows reads newline-delimited "name,email" or "email" lines.
// Fields may be CSV-quoted. Header lines and lines without a valid email are
// counted as skipped.
func ParseMergeRows(raw string) ([]domain.MergeRow, int, error) {
	lines := 0
	for _, l := range strings.Split(raw, "\n") {
		if strings.TrimSpace(l) != "" {
			lines++
		}
	}
	if lines > MaxMergeRows {
		return nil, 0, domain.NewValidationError(map[string]string{
			"rows": fmt.Sprintf("Too many rows (max %d)", MaxMergeRows),
		})
	}

	r := csv.NewReader(strings.NewReader(raw))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	var (
		rows    []domain.MergeRow
		skipped int
	)
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			skipped++
			continue
		}
		row, ok := mergeRowFromRecord(rec)
		if !ok {
			skipped++
			continue
		}
		rows = append(rows, row)
	}
	return rows, skipped, nil
}

func mergeRowFromRecord(rec []string) (domain.MergeRow, bool) {
	var fields []string
	for _, f := range rec {
		if f = strings.TrimSpace(f); f != "" {
			fields = append(fields, f)
		}
	}
	if len(fields) == 0 {
		return domain.MergeRow{}, false
	}

	emailIdx := -1
	for i := len(fields) - 1; i >= 0; i-- {
		if strings.Contains(fields[i], "@") {
			emailIdx = i
			break
		}
	}
	if emailIdx < 0 || !domain.IsValidEmail(fields[emailIdx]) {
		return domain.MergeRow{}, false
	}

	var name string
	for i, f := range fields {
		if i != emailIdx {
			name = f
			break
		}
	}
	return domain.MergeRow{Name: SanitizeName(name), Email: fields[emailIdx]}, true
}

func (s *AdminService) Merge(ctx context.Context, raw string) (MergeResult, error) {
	rows, skipped, err := ParseMergeRows(raw)
	if err != nil {
		return MergeResult{}, err
	}
	return s.MergeRows(ctx, rows, skipped)
}

func (s *AdminService) MergeRows(ctx context.Context, rows []domain.MergeRow, skipped int) (MergeResult, error) {
	if len(rows)+skipped > MaxMergeRows {
		return MergeResult{}, domain.NewValidationError(map[string]string{
			"rows": fmt.Sprintf("Too many rows (max %d)", MaxMergeRows),
		})
	}

	normalized := domain.NormalizeMergeRows(rows)
	skipped += len(rows) - len(normalized)
	count, err := s.Store.MergeSubscribers(ctx, normalized)
	if err != nil {
		return MergeResult{}, fmt.Errorf("merge subscribers: %w", err)
	}
	logger(s.Logger).Info("subscribers merged", "imported", len(normalized), "skipped", skipped, "total", count)
	return MergeResult{Count: count, Imported: len(normalized), Skipped: skipped}, nil
}

type RecipientResult struct {
	Email string
	Err   error
}

type BroadcastResult struct {
	Sent    int
	Failed  int
	Results []RecipientResult
}

// Broadcast sends one personalized email per active subscriber. A failed send
// is recorded and never stops the batch.
func (s *AdminService) Broadcast(ctx context.Context, subject, message string) (BroadcastResult, error) {
	subject = strings.TrimSpace(strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ").Replace(subject))
	message = strings.TrimSpace(message)

	switch {
	case subject == "":
		return BroadcastResult{}, domain.NewValidationError(map[string]string{"subject": "Subject is required"})
	case utf8.RuneCountInString(subject) > MaxSubjectLength:
		return BroadcastResult{}, domain.NewValidationError(map[string]string{
			"subject": fmt.Sprintf("Subject must be at most %d characters", MaxSubjectLength),
		})
	case message == "":
		return BroadcastResult{}, domain.NewValidationError(map[string]string{"message": "Message is required"})
	case utf8.RuneCountInString(message) > MaxMessageLength:
		return BroadcastResult{}, domain.NewValidationError(map[string]string{
			"message": fmt.Sprintf("Message must be at most %d characters", MaxMessageLength),
		})
	}

	subs, err := s.Store.ListSubscribers(ctx)
	if err != nil {
		return BroadcastResult{}, fmt.Errorf("list subscribers: %w", err)
	}
	recipients := ActiveRecipients(subs)
	if len(recipients) == 0 {
		return BroadcastResult{}, domain.ErrNoRecipients
	}
	if s.Notifier == nil || !s.Notifier.Configured() {
		return BroadcastResult{}, domain.ErrMailNotConfigured
	}

	log := logger(s.Logger)
	res := BroadcastResult{Results: make([]RecipientResult, 0, len(recipients))}
	for _, to := range recipients {
		err := s.Notifier.SendBroadcast(ctx, subject, message, to)
		res.Results = append(res.Results, RecipientResult{Email: to.Email, Err: err})
		if err != nil {
			res.Failed++
			log.Warn("broadcast send failed", "email", domain.RedactEmail(to.Email), "err", err)
			continue
		}
		res.Sent++
	}
	log.Info("broadcast finished", "sent", res.Sent, "failed", res.Failed)
	return res, nil
}

// ActiveRecipients keeps subscribed records with valid emails, one per
// address.
func ActiveRecipients(subs []domain.Subscriber) []domain.Subscriber {
	seen := make(map[string]bool, len(subs))
	out := make([]domain.Subscriber, 0, len(subs))
	for _, sub := range subs {
		if !sub.Active() {
			continue
		}
		addr := domain.NormalizeEmail(sub.Email)
		if !domain.IsValidEmail(addr) || seen[addr] {
			continue
		}
		seen[addr] = true
		sub.Email = addr
		out = append(out, sub)
	}
	return out
}
