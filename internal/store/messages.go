package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TimeLayout is the storage format of the date columns (UTC, second precision).
const TimeLayout = "2006-01-02 15:04:05"

// timestampLayouts are accepted by ParseTimestamp, most specific first.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseTimestamp parses an ISO-8601 timestamp. A trailing "Z" or numeric
// zone is honoured; values without a zone are taken as UTC. The result is
// always in UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	// Lowercase zone markers show up in hand-written queries.
	if strings.HasSuffix(s, "z") {
		s = s[:len(s)-1] + "Z"
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

// FormatTime renders t in the storage format.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// Message is one archived chat message.
type Message struct {
	ID              int64     `json:"id"`
	ChatID          int64     `json:"chat_id"`
	ChatName        string    `json:"chat_name"`
	Username        string    `json:"username"`
	SenderChatID    int64     `json:"sender_chat_id"`
	Title           string    `json:"title"`
	Date            time.Time `json:"date"`
	InsertDate      time.Time `json:"insert_date"`
	DocumentPresent bool      `json:"document_present"`
	DocumentName    string    `json:"document_name"`
	DocumentType    string    `json:"document_type"`
	DocumentSize    int64     `json:"document_size"`
	Forwarded       bool      `json:"msg_fwd"`
	FwdUsername     string    `json:"msg_fwd_username"`
	FwdTitle        string    `json:"msg_fwd_title"`
	FwdID           int64     `json:"msg_fwd_id"`
	Text            string    `json:"text"`
	Lang            string    `json:"lang"`
	URLs            []string  `json:"urls"`
	Hashtags        []string  `json:"hashtags"`
}

// UnmarshalJSON accepts dates in any ParseTimestamp layout and 0/1 flags.
func (m *Message) UnmarshalJSON(data []byte) error {
	type plain Message
	var aux struct {
		plain
		Date            string          `json:"date"`
		InsertDate      string          `json:"insert_date"`
		DocumentPresent json.RawMessage `json:"document_present"`
		Forwarded       json.RawMessage `json:"msg_fwd"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*m = Message(aux.plain)

	var err error
	if m.Date, err = ParseTimestamp(aux.Date); err != nil {
		return fmt.Errorf("date: %w", err)
	}
	if aux.InsertDate != "" {
		if m.InsertDate, err = ParseTimestamp(aux.InsertDate); err != nil {
			return fmt.Errorf("insert_date: %w", err)
		}
	}
	m.DocumentPresent = jsonFlag(aux.DocumentPresent)
	m.Forwarded = jsonFlag(aux.Forwarded)
	return nil
}

// jsonFlag reads true, 1, "1" or "true" as set.
func jsonFlag(raw json.RawMessage) bool {
	switch strings.Trim(string(raw), `" `) {
	case "true", "1":
		return true
	}
	return false
}

const messageColumns = 20

// InsertMessages appends msgs to the message table in one transaction and
// returns the number of rows written. A zero InsertDate is stamped with the
// current time.
func (s *Store) InsertMessages(ctx context.Context, msgs []Message) (int, error) {
	if len(msgs) == 0 {
		return 0, nil
	}
	now := time.Now()

	prefix := fmt.Sprintf(`INSERT INTO %s (
		id, chat_id, chat_name, username, sender_chat_id, title, date, insert_date,
		document_present, document_name, document_type, document_size,
		msg_fwd, msg_fwd_username, msg_fwd_title, msg_fwd_id,
		text, lang, urls, hashtags
	) VALUES `, QuoteIdent(s.table))
	placeholder := "(" + strings.TrimSuffix(strings.Repeat("?,", messageColumns), ",") + ")"

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		return insertInChunks(ctx, tx, len(msgs), messageColumns, prefix, func(start, end int) ([]string, []interface{}) {
			values := make([]string, 0, end-start)
			args := make([]interface{}, 0, (end-start)*messageColumns)
			for _, m := range msgs[start:end] {
				insertDate := m.InsertDate
				if insertDate.IsZero() {
					insertDate = now
				}
				values = append(values, placeholder)
				args = append(args,
					m.ID, m.ChatID, m.ChatName, m.Username, m.SenderChatID, m.Title,
					FormatTime(m.Date), FormatTime(insertDate),
					m.DocumentPresent, m.DocumentName, m.DocumentType, m.DocumentSize,
					m.Forwarded, m.FwdUsername, m.FwdTitle, m.FwdID,
					m.Text, m.Lang, jsonList(m.URLs), jsonList(m.Hashtags),
				)
			}
			return values, args
		})
	})
	if err != nil {
		return 0, fmt.Errorf("insert messages: %w", err)
	}
	return len(msgs), nil
}

// jsonList encodes a string list as a JSON array; nil becomes "[]".
func jsonList(items []string) string {
	if len(items) == 0 {
		return "[]"
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "[]"
	}
	return string(b)
}
