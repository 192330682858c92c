package telegram

import (
	"github.com/gotd/td/tg"

	"github.com/blockedby/telememo/internal/models"
)

// Channel is a resolved broadcast channel.
type Channel struct {
	ID          int64
	AccessHash  int64
	Username    string
	Title       string
	Description string
	Members     *int
}

// Model converts the channel into its stored form.
func (c *Channel) Model() *models.Channel {
	return &models.Channel{
		ID:          c.ID,
		AccessHash:  c.AccessHash,
		Username:    c.Username,
		Title:       c.Title,
		Description: c.Description,
		MemberCount: c.Members,
	}
}

// HistoryQuery selects a page of channel history.
//
// Descending pages (the default) hold up to Limit messages below OffsetID, newest first;
// OffsetID 0 starts at the newest message. Ascending pages hold up to Limit messages
// above MinID, oldest first. MinID and MaxID, when set, bound ids exclusively.
type HistoryQuery struct {
	OffsetID  int
	MinID     int
	MaxID     int
	Limit     int
	Ascending bool
}

// Page is one history response: the raw messages in the requested order plus the
// users and chats they reference.
type Page struct {
	Messages []tg.MessageClass
	Users    []tg.UserClass
	Chats    []tg.ChatClass
}

// IDs returns the message ids in page order.
func (p *Page) IDs() []int {
	ids := make([]int, 0, len(p.Messages))
	for _, m := range p.Messages {
		ids = append(ids, m.GetID())
	}
	return ids
}
