package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/blockedby/telememo/internal/database"
	"github.com/blockedby/telememo/internal/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, database.Migrate(context.Background(), db.GORM))
	return db.GORM
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(newTestDB(t))
}

func seedChannel(t *testing.T, s *Store, id int64, username string) *models.Channel {
	t.Helper()
	ch, err := s.Channels.Upsert(context.Background(), &models.Channel{ID: id, Title: "Channel " + username, Username: username})
	require.NoError(t, err)
	return ch
}

func textMessage(id int64, text string) models.Message {
	return models.Message{
		MessageID: id,
		Text:      text,
		Date:      time.Unix(1700000000+id*60, 0).UTC(),
		MediaType: models.MediaNone,
	}
}

func ptr[T any](v T) *T { return &v }
