// Package telegram wraps the MTProto client with the channel and history calls the dumper needs.
package telegram

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/gotd/td/tg"

	"github.com/blockedby/telememo/internal/logger"
)

// MaxPageSize is the largest history page telegram serves.
const MaxPageSize = 100

// API is the part of the raw tg.Client used here.
type API interface {
	ContactsResolveUsername(ctx context.Context, request *tg.ContactsResolveUsernameRequest) (*tg.ContactsResolvedPeer, error)
	ChannelsGetFullChannel(ctx context.Context, channel tg.InputChannelClass) (*tg.MessagesChatFull, error)
	MessagesGetHistory(ctx context.Context, request *tg.MessagesGetHistoryRequest) (tg.MessagesMessagesClass, error)
}

// Client provides high-level telegram operations on top of an API.
type Client struct {
	api         func() (API, error)
	manager     *Manager
	rateLimiter *RateLimiter
	log         *logger.Logger
}

// NewClient creates a client that reaches telegram through the manager's authorized connection.
func NewClient(manager *Manager, limiter *RateLimiter) *Client {
	c := NewClientWithAPI(nil, limiter)
	c.manager = manager
	c.api = func() (API, error) {
		proto := manager.GetClient()
		if proto == nil {
			return nil, fmt.Errorf("telegram client not authorized: %w", ErrUnavailable)
		}
		return proto.API(), nil
	}
	return c
}

// NewClientWithAPI creates a client over a ready API, e.g. a fake in tests.
func NewClientWithAPI(api API, limiter *RateLimiter) *Client {
	if limiter == nil {
		limiter = DefaultRateLimiter()
	}
	return &Client{
		api: func() (API, error) {
			if api == nil {
				return nil, fmt.Errorf("telegram client not configured: %w", ErrUnavailable)
			}
			return api, nil
		},
		rateLimiter: limiter,
		log:         logger.Get().Component("telegram"),
	}
}

// Close stops the underlying connection, if the client owns one.
func (c *Client) Close() {
	if c.manager != nil {
		c.manager.Stop()
	}
}

// call waits for the rate limiter, runs fn and classifies its error.
func (c *Client) call(ctx context.Context, op string, fn func(API) error) error {
	api, err := c.api()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	err = classify(op, fn(api))
	var fw *FloodWaitError
	if errors.As(err, &fw) {
		c.log.Warn().Dur("wait", fw.Wait).Str("op", op).Msg("telegram: FLOOD_WAIT received")
		c.rateLimiter.SetFloodWait(fw.Wait)
	}
	return err
}

// ResolveChannel resolves a public username (with or without @) into a channel.
func (c *Client) ResolveChannel(ctx context.Context, username string) (*Channel, error) {
	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	if username == "" {
		return nil, fmt.Errorf("resolve channel: empty username: %w", ErrChannelNotFound)
	}

	c.log.Debug().Str("username", username).Msg("telegram: resolving channel")

	var resolved *tg.ContactsResolvedPeer
	err := c.call(ctx, "resolve username "+username, func(api API) (err error) {
		resolved, err = api.ContactsResolveUsername(ctx, &tg.ContactsResolveUsernameRequest{Username: username})
		return err
	})
	if err != nil {
		return nil, err
	}

	peer, ok := resolved.Peer.(*tg.PeerChannel)
	if !ok {
		return nil, fmt.Errorf("%s is not a channel: %w", username, ErrChannelNotFound)
	}
	ch := findChannel(resolved.Chats, peer.ChannelID)
	if ch == nil {
		return nil, fmt.Errorf("channel %s missing from response: %w", username, ErrChannelNotFound)
	}

	return c.GetChannel(ctx, ch.ID, ch.AccessHash)
}

// GetChannel loads a channel by id and access hash, including its description and member count.
func (c *Client) GetChannel(ctx context.Context, id, accessHash int64) (*Channel, error) {
	var full *tg.MessagesChatFull
	err := c.call(ctx, fmt.Sprintf("get full channel %d", id), func(api API) (err error) {
		full, err = api.ChannelsGetFullChannel(ctx, &tg.InputChannel{ChannelID: id, AccessHash: accessHash})
		return err
	})
	if err != nil {
		return nil, err
	}

	ch := findChannel(full.Chats, id)
	if ch == nil {
		return nil, fmt.Errorf("channel %d missing from response: %w", id, ErrChannelNotFound)
	}

	out := &Channel{
		ID:         ch.ID,
		AccessHash: ch.AccessHash,
		Username:   ch.Username,
		Title:      ch.Title,
	}
	if out.AccessHash == 0 {
		out.AccessHash = accessHash
	}
	if chFull, ok := full.FullChat.(*tg.ChannelFull); ok {
		out.Description = chFull.About
		if n, ok := chFull.GetParticipantsCount(); ok {
			out.Members = &n
		}
	}
	return out, nil
}

// History fetches one page of channel history. The page is ordered by id,
// descending unless q.Ascending is set.
func (c *Client) History(ctx context.Context, ch *Channel, q HistoryQuery) (*Page, error) {
	limit := q.Limit
	if limit <= 0 || limit > MaxPageSize {
		limit = MaxPageSize
	}

	req := &tg.MessagesGetHistoryRequest{
		Peer:     &tg.InputPeerChannel{ChannelID: ch.ID, AccessHash: ch.AccessHash},
		OffsetID: q.OffsetID,
		MinID:    q.MinID,
		MaxID:    q.MaxID,
		Limit:    limit,
	}
	if q.Ascending {
		// the window starts right above MinID and extends limit messages upward
		req.OffsetID = q.MinID + 1
		req.AddOffset = -limit
	}

	c.log.Debug().
		Int64("channel_id", ch.ID).
		Int("offset_id", req.OffsetID).
		Int("min_id", req.MinID).
		Int("limit", limit).
		Bool("ascending", q.Ascending).
		Msg("telegram: get history")

	var res tg.MessagesMessagesClass
	err := c.call(ctx, fmt.Sprintf("get history %d", ch.ID), func(api API) (err error) {
		res, err = api.MessagesGetHistory(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}

	page := extractPage(res)
	page.Messages = slices.DeleteFunc(page.Messages, func(m tg.MessageClass) bool {
		id := m.GetID()
		return (q.MinID > 0 && id <= q.MinID) || (q.MaxID > 0 && id >= q.MaxID)
	})
	slices.SortFunc(page.Messages, func(a, b tg.MessageClass) int {
		if q.Ascending {
			return cmp.Compare(a.GetID(), b.GetID())
		}
		return cmp.Compare(b.GetID(), a.GetID())
	})
	return page, nil
}

// extractPage unpacks the history response variants.
func extractPage(res tg.MessagesMessagesClass) *Page {
	switch h := res.(type) {
	case *tg.MessagesMessages:
		return &Page{Messages: h.Messages, Users: h.Users, Chats: h.Chats}
	case *tg.MessagesMessagesSlice:
		return &Page{Messages: h.Messages, Users: h.Users, Chats: h.Chats}
	case *tg.MessagesChannelMessages:
		return &Page{Messages: h.Messages, Users: h.Users, Chats: h.Chats}
	default:
		return &Page{}
	}
}

func findChannel(chats []tg.ChatClass, id int64) *tg.Channel {
	for _, c := range chats {
		if ch, ok := c.(*tg.Channel); ok && ch.ID == id {
			return ch
		}
	}
	return nil
}
