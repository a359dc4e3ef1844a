package exporter

import (
	"bytes"
	"encoding/csv"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arthall/onboard-bot/internal/domain"
)

func TestCSVRoundTrip(t *testing.T) {
	joined := time.Date(2025, 3, 14, 10, 30, 0, 0, time.UTC)
	users := []domain.User{
		{TelegramID: 111, Username: "anna", FirstName: "Anna", Phone: "+15551234567", JoinedAt: joined, GiveawayNumber: 1},
		{TelegramID: 222, FirstName: "Boris", LastName: "Ivanov", JoinedAt: joined.Add(time.Minute), GiveawayNumber: 2},
	}

	data, err := CSV(users)
	require.NoError(t, err)

	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	require.Equal(t, Header, records[0])

	// Re-parsing reconstructs the exported tuples.
	for i, user := range users {
		row := records[i+1]
		require.Equal(t, strconv.FormatInt(user.TelegramID, 10), row[0])
		require.Equal(t, user.Phone, row[4])

		parsed, err := time.Parse(time.RFC3339, row[5])
		require.NoError(t, err)
		require.True(t, parsed.Equal(user.JoinedAt))
	}
}

func TestCSVQuotesEmbeddedDelimiters(t *testing.T) {
	users := []domain.User{
		{TelegramID: 1, FirstName: `Olga "O," Petrova`, JoinedAt: time.Now().UTC()},
	}

	data, err := CSV(users)
	require.NoError(t, err)

	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	require.Equal(t, `Olga "O," Petrova`, records[1][2])
}

func TestCSVEmptyRegistry(t *testing.T) {
	data, err := CSV(nil)
	require.NoError(t, err)

	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 1) // header only
}
