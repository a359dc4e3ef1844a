// Package exporter renders user records as delimited text for admins.
package exporter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/arthall/onboard-bot/internal/domain"
)

// Header is the fixed column order of the export.
var Header = []string{"user_id", "username", "first_name", "last_name", "phone", "joined_at"}

// CSV renders users (already in creation order) as RFC-4180 CSV with a
// header row. encoding/csv handles quoting of embedded delimiters.
func CSV(users []domain.User) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(Header); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}

	for _, user := range users {
		record := []string{
			strconv.FormatInt(user.TelegramID, 10),
			user.Username,
			user.FirstName,
			user.LastName,
			user.Phone,
			user.JoinedAt.UTC().Format(time.RFC3339),
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("write csv row for user %d: %w", user.TelegramID, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}

	return buf.Bytes(), nil
}
