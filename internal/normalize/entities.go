package normalize

import (
	"strings"

	"github.com/gotd/td/tg"
)

// Entities indexes the users and chats that accompany a history page,
// so peers referenced by messages can be given display names.
type Entities struct {
	users map[int64]string
	chats map[int64]string
}

// NewEntities builds the index from the users and chats of a history response.
func NewEntities(users []tg.UserClass, chats []tg.ChatClass) *Entities {
	e := &Entities{
		users: make(map[int64]string, len(users)),
		chats: make(map[int64]string, len(chats)),
	}

	for _, u := range users {
		if user, ok := u.(*tg.User); ok {
			e.users[user.ID] = userName(user)
		}
	}

	for _, c := range chats {
		switch chat := c.(type) {
		case *tg.Channel:
			e.chats[chat.ID] = chat.Title
		case *tg.ChannelForbidden:
			e.chats[chat.ID] = chat.Title
		case *tg.Chat:
			e.chats[chat.ID] = chat.Title
		case *tg.ChatForbidden:
			e.chats[chat.ID] = chat.Title
		}
	}

	return e
}

// UserName returns the display name of a user, empty when unknown.
func (e *Entities) UserName(id int64) string {
	if e == nil {
		return ""
	}
	return e.users[id]
}

// ChatTitle returns the title of a channel or chat, empty when unknown.
func (e *Entities) ChatTitle(id int64) string {
	if e == nil {
		return ""
	}
	return e.chats[id]
}

// userName prefers "First Last", then the username.
func userName(u *tg.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name != "" {
		return name
	}
	return u.Username
}
