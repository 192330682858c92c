// Package repository persists channels, messages and sync runs through gorm.
package repository

import "gorm.io/gorm"

// Store groups the repositories sharing one database.
type Store struct {
	Channels *ChannelsRepository
	Messages *MessagesRepository
	Runs     *RunsRepository
}

// NewStore creates all repositories over db.
func NewStore(db *gorm.DB) *Store {
	return &Store{
		Channels: NewChannelsRepository(db),
		Messages: NewMessagesRepository(db),
		Runs:     NewRunsRepository(db),
	}
}
