package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/blockedby/telememo/internal/models"
)

// ChannelsRepository handles channels table operations
type ChannelsRepository struct {
	db *gorm.DB
}

// NewChannelsRepository creates a new channels repository
func NewChannelsRepository(db *gorm.DB) *ChannelsRepository {
	return &ChannelsRepository{db: db}
}

// Upsert inserts the channel or refreshes its metadata.
// The checkpoint and lease columns are never written here. Returns the stored row.
func (r *ChannelsRepository) Upsert(ctx context.Context, ch *models.Channel) (*models.Channel, error) {
	row := *ch
	row.LastSyncedMessageID = nil
	row.LastSyncedAt = nil
	row.RunOwner = ""
	row.RunLeaseUntil = nil
	row.Username = strings.TrimPrefix(row.Username, "@")

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"access_hash", "title", "username", "description", "member_count", "updated_at",
			}),
		}).
		Create(&row).Error
	if err != nil {
		return nil, storageErr("upsert channel", err)
	}

	return r.GetByID(ctx, ch.ID)
}

// GetByID returns the channel or ErrNotFound.
func (r *ChannelsRepository) GetByID(ctx context.Context, id int64) (*models.Channel, error) {
	var ch models.Channel
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&ch).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("channel %d: %w", id, ErrNotFound)
		}
		return nil, storageErr("get channel", err)
	}
	return &ch, nil
}

// GetByUsername looks a channel up by username, case-insensitively, with or without "@".
func (r *ChannelsRepository) GetByUsername(ctx context.Context, username string) (*models.Channel, error) {
	username = strings.TrimPrefix(username, "@")

	var ch models.Channel
	err := r.db.WithContext(ctx).Where("LOWER(username) = LOWER(?)", username).Take(&ch).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("channel @%s: %w", username, ErrNotFound)
		}
		return nil, storageErr("get channel by username", err)
	}
	return &ch, nil
}

// List returns all stored channels ordered by title.
func (r *ChannelsRepository) List(ctx context.Context) ([]models.Channel, error) {
	var channels []models.Channel
	if err := r.db.WithContext(ctx).Order("title ASC, id ASC").Find(&channels).Error; err != nil {
		return nil, storageErr("list channels", err)
	}
	return channels, nil
}

// SetCheckpoint advances last_synced_message_id. Moving it backwards fails with
// *CheckpointRegressionError and leaves the stored value untouched; the same value is accepted.
func (r *ChannelsRepository) SetCheckpoint(ctx context.Context, channelID, messageID int64) error {
	res := r.db.WithContext(ctx).
		Model(&models.Channel{}).
		Where("id = ? AND (last_synced_message_id IS NULL OR last_synced_message_id <= ?)", channelID, messageID).
		Updates(map[string]any{
			"last_synced_message_id": messageID,
			"last_synced_at":         time.Now().UTC(),
		})
	if res.Error != nil {
		return storageErr("set checkpoint", res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	ch, err := r.GetByID(ctx, channelID)
	if err != nil {
		return err
	}
	var stored int64
	if ch.LastSyncedMessageID != nil {
		stored = *ch.LastSyncedMessageID
	}
	return &CheckpointRegressionError{ChannelID: channelID, Stored: stored, Requested: messageID}
}

// AcquireLease marks owner as the only writer of the channel until the given time.
// It succeeds when the lease is free, expired or already held by owner (which extends it)
// and fails with ErrLeaseHeld otherwise. The check and the write are one statement,
// so two processes sharing the database cannot both win.
func (r *ChannelsRepository) AcquireLease(ctx context.Context, channelID int64, owner string, until time.Time) error {
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).
		Model(&models.Channel{}).
		Where("id = ? AND (run_owner = '' OR run_owner IS NULL OR run_owner = ? OR run_lease_until < ?)", channelID, owner, now).
		Updates(map[string]any{
			"run_owner":       owner,
			"run_lease_until": until.UTC(),
		})
	if res.Error != nil {
		return storageErr("acquire lease", res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	ch, err := r.GetByID(ctx, channelID)
	if err != nil {
		return err
	}
	until = time.Time{}
	if ch.RunLeaseUntil != nil {
		until = *ch.RunLeaseUntil
	}
	return fmt.Errorf("channel %d held by %s until %s: %w",
		channelID, ch.RunOwner, until.Format(time.RFC3339), ErrLeaseHeld)
}

// ReleaseLease frees the lease if owner still holds it.
func (r *ChannelsRepository) ReleaseLease(ctx context.Context, channelID int64, owner string) error {
	err := r.db.WithContext(ctx).
		Model(&models.Channel{}).
		Where("id = ? AND run_owner = ?", channelID, owner).
		Updates(map[string]any{
			"run_owner":       "",
			"run_lease_until": nil,
		}).Error
	return storageErr("release lease", err)
}
