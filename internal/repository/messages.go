package repository

import (
	"context"
	"strings"

	"github.com/samber/lo"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/blockedby/telememo/internal/models"
)

// DefaultSearchLimit applies when a search does not set a limit.
const DefaultSearchLimit = 50

// columns refreshed when a message is stored again
var messageUpdateColumns = []string{
	"text", "search_text", "date", "sender_id", "sender_name", "post_author",
	"views", "forwards", "replies", "media_type", "grouped_id",
	"fwd_from_channel_id", "fwd_from_user_id", "fwd_from_name", "fwd_message_id", "fwd_date", "fwd_signature",
	"edit_date", "updated_at",
}

// BatchResult reports how a batch upsert split between new and existing rows.
type BatchResult struct {
	Inserted int
	Updated  int
}

// SearchQuery describes a text search.
type SearchQuery struct {
	Text      string
	ChannelID *int64
	Limit     int
}

// MessagesRepository handles messages table operations
type MessagesRepository struct {
	db *gorm.DB
}

// NewMessagesRepository creates a new messages repository
func NewMessagesRepository(db *gorm.DB) *MessagesRepository {
	return &MessagesRepository{db: db}
}

// UpsertBatch stores msgs for channelID in a single transaction, inserting new ids and
// refreshing existing ones. Either the whole batch is visible afterwards or none of it.
// Duplicate ids within msgs collapse to the last occurrence.
func (r *MessagesRepository) UpsertBatch(ctx context.Context, channelID int64, msgs []models.Message) (BatchResult, error) {
	if len(msgs) == 0 {
		return BatchResult{}, nil
	}

	rows := make([]models.Message, 0, len(msgs))
	pos := make(map[int64]int, len(msgs))
	for _, m := range msgs {
		m.ChannelID = channelID
		m.SearchText = models.FoldText(m.Text)
		if i, ok := pos[m.MessageID]; ok {
			rows[i] = m
			continue
		}
		pos[m.MessageID] = len(rows)
		rows = append(rows, m)
	}
	ids := lo.Map(rows, func(m models.Message, _ int) int64 { return m.MessageID })

	var result BatchResult
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing := 0
		for _, chunk := range lo.Chunk(ids, 500) {
			var n int64
			err := tx.Model(&models.Message{}).
				Where("channel_id = ? AND message_id IN ?", channelID, chunk).
				Count(&n).Error
			if err != nil {
				return err
			}
			existing += int(n)
		}

		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "channel_id"}, {Name: "message_id"}},
			DoUpdates: clause.AssignmentColumns(messageUpdateColumns),
		}).CreateInBatches(&rows, 100).Error
		if err != nil {
			return err
		}

		result = BatchResult{Inserted: len(rows) - existing, Updated: existing}
		return nil
	})
	if err != nil {
		return BatchResult{}, storageErr("upsert messages", err)
	}

	return result, nil
}

// Search matches text case-insensitively, newest first, optionally within one channel.
func (r *MessagesRepository) Search(ctx context.Context, q SearchQuery) ([]models.Message, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return nil, ErrEmptyQuery
	}
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	tx := r.db.WithContext(ctx).
		Where("search_text LIKE ? ESCAPE '\\'", "%"+escapeLike(models.FoldText(text))+"%")
	if q.ChannelID != nil {
		tx = tx.Where("channel_id = ?", *q.ChannelID)
	}

	var msgs []models.Message
	err := tx.Order("date DESC, message_id DESC").Limit(limit).Find(&msgs).Error
	if err != nil {
		return nil, storageErr("search messages", err)
	}
	return msgs, nil
}

// Latest returns the newest messages of a channel.
func (r *MessagesRepository) Latest(ctx context.Context, channelID int64, limit, offset int) ([]models.Message, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	var msgs []models.Message
	err := r.db.WithContext(ctx).
		Where("channel_id = ?", channelID).
		Order("date DESC, message_id DESC").
		Limit(limit).
		Offset(offset).
		Find(&msgs).Error
	if err != nil {
		return nil, storageErr("latest messages", err)
	}
	return msgs, nil
}

// Get returns one message or ErrNotFound.
func (r *MessagesRepository) Get(ctx context.Context, channelID, messageID int64) (*models.Message, error) {
	var msgs []models.Message
	err := r.db.WithContext(ctx).
		Where("channel_id = ? AND message_id = ?", channelID, messageID).
		Limit(1).
		Find(&msgs).Error
	if err != nil {
		return nil, storageErr("get message", err)
	}
	if len(msgs) == 0 {
		return nil, ErrNotFound
	}
	return &msgs[0], nil
}

// Count returns the number of stored messages of a channel.
func (r *MessagesRepository) Count(ctx context.Context, channelID int64) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Message{}).Where("channel_id = ?", channelID).Count(&n).Error
	if err != nil {
		return 0, storageErr("count messages", err)
	}
	return n, nil
}

// escapeLike neutralises LIKE wildcards; the statement declares '\' as escape character.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
