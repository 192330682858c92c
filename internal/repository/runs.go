package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/blockedby/telememo/internal/models"
)

// RunsRepository handles sync_runs table operations
type RunsRepository struct {
	db *gorm.DB
}

// NewRunsRepository creates a new runs repository
func NewRunsRepository(db *gorm.DB) *RunsRepository {
	return &RunsRepository{db: db}
}

// Start records a new running run.
func (r *RunsRepository) Start(ctx context.Context, channelID int64, kind models.RunKind, checkpoint *int64) (*models.SyncRun, error) {
	run := &models.SyncRun{
		ID:               uuid.New(),
		ChannelID:        channelID,
		Kind:             kind,
		Status:           models.RunStatusRunning,
		CheckpointBefore: checkpoint,
		StartedAt:        time.Now().UTC(),
	}
	if err := r.db.WithContext(ctx).Create(run).Error; err != nil {
		return nil, storageErr("start run", err)
	}
	return run, nil
}

// Finish stamps the run as completed, or failed when runErr is set, and saves its counters.
func (r *RunsRepository) Finish(ctx context.Context, run *models.SyncRun, runErr error) error {
	now := time.Now().UTC()
	run.FinishedAt = &now
	run.Status = models.RunStatusCompleted
	if runErr != nil {
		run.Status = models.RunStatusFailed
		run.Error = runErr.Error()
	}
	if err := r.db.WithContext(ctx).Save(run).Error; err != nil {
		return storageErr("finish run", err)
	}
	return nil
}

// Latest returns the most recent runs of a channel, newest first.
func (r *RunsRepository) Latest(ctx context.Context, channelID int64, limit int) ([]models.SyncRun, error) {
	if limit <= 0 {
		limit = 10
	}
	var runs []models.SyncRun
	err := r.db.WithContext(ctx).
		Where("channel_id = ?", channelID).
		Order("started_at DESC").
		Limit(limit).
		Find(&runs).Error
	if err != nil {
		return nil, storageErr("latest runs", err)
	}
	return runs, nil
}
