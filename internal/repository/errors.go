package repository

import (
	"errors"
	"fmt"
)

// errors
var (
	ErrNotFound             = errors.New("not found")
	ErrCheckpointRegression = errors.New("checkpoint regression")
	ErrStorageIO            = errors.New("storage i/o error")
	ErrEmptyQuery           = errors.New("search query is empty")
	ErrLeaseHeld            = errors.New("run lease held by another owner")
)

// CheckpointRegressionError is returned when a checkpoint would move backwards.
type CheckpointRegressionError struct {
	ChannelID int64
	Stored    int64
	Requested int64
}

func (e *CheckpointRegressionError) Error() string {
	return fmt.Sprintf("checkpoint regression for channel %d: stored %d, requested %d", e.ChannelID, e.Stored, e.Requested)
}

// Is matches ErrCheckpointRegression.
func (e *CheckpointRegressionError) Is(target error) bool {
	return target == ErrCheckpointRegression
}

// StorageError wraps a failure of the underlying database.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Is matches ErrStorageIO.
func (e *StorageError) Is(target error) bool {
	return target == ErrStorageIO
}

// storageErr wraps err unless it is nil or already one of ours.
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrCheckpointRegression) || errors.Is(err, ErrStorageIO) || errors.Is(err, ErrLeaseHeld) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
