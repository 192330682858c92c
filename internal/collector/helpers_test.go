package collector

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/gotd/td/tg"
	"github.com/stretchr/testify/require"

	"github.com/blockedby/telememo/internal/database"
	"github.com/blockedby/telememo/internal/repository"
	"github.com/blockedby/telememo/internal/telegram"
)

const baseDate = 1700000000

// fakeSource serves channel history from memory with telegram's paging semantics.
type fakeSource struct {
	mu       sync.Mutex
	channels map[string]*telegram.Channel
	history  map[int64][]tg.MessageClass
	users    []tg.UserClass

	// errs are returned, one per call, before history is served
	errs []error
	// echoMinID makes ascending pages include the MinID message itself
	echoMinID bool
	// entered is signalled on every History call, then the call waits for release
	entered chan struct{}
	release chan struct{}

	queries      []telegram.HistoryQuery
	getChannelID []int64
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		channels: make(map[string]*telegram.Channel),
		history:  make(map[int64][]tg.MessageClass),
	}
}

func (f *fakeSource) addChannel(id int64, username string) *telegram.Channel {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := &telegram.Channel{ID: id, AccessHash: id * 10, Username: username, Title: "Channel " + username}
	f.channels[username] = ch
	return ch
}

func (f *fakeSource) post(channelID int64, msgs ...tg.MessageClass) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history[channelID] = append(f.history[channelID], msgs...)
}

func (f *fakeSource) failWith(errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs = append(f.errs, errs...)
}

func (f *fakeSource) ResolveChannel(_ context.Context, username string) (*telegram.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.channels[username]
	if !ok {
		return nil, fmt.Errorf("resolve %s: %w", username, telegram.ErrChannelNotFound)
	}
	cp := *ch
	return &cp, nil
}

func (f *fakeSource) GetChannel(_ context.Context, id, accessHash int64) (*telegram.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getChannelID = append(f.getChannelID, id)
	for _, ch := range f.channels {
		if ch.ID == id && ch.AccessHash == accessHash {
			cp := *ch
			return &cp, nil
		}
	}
	return nil, telegram.ErrChannelNotFound
}

func (f *fakeSource) History(ctx context.Context, ch *telegram.Channel, q telegram.HistoryQuery) (*telegram.Page, error) {
	if f.entered != nil {
		f.entered <- struct{}{}
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)

	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, err
	}

	var out []tg.MessageClass
	for _, m := range f.history[ch.ID] {
		id := m.GetID()
		if q.Ascending {
			if id > q.MinID || (f.echoMinID && id == q.MinID) {
				out = append(out, m)
			}
			continue
		}
		if (q.OffsetID == 0 || id < q.OffsetID) && id > q.MinID {
			out = append(out, m)
		}
	}

	slices.SortFunc(out, func(a, b tg.MessageClass) int {
		if q.Ascending {
			return cmp.Compare(a.GetID(), b.GetID())
		}
		return cmp.Compare(b.GetID(), a.GetID())
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return &telegram.Page{Messages: out, Users: f.users}, nil
}

func (f *fakeSource) queryLog() []telegram.HistoryQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.queries)
}

// fakePublisher records events.
type fakePublisher struct {
	mu     sync.Mutex
	events []MessagesStoredEvent
	err    error
}

func (p *fakePublisher) PublishMessagesStored(_ context.Context, event MessagesStoredEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func newTestStore(t *testing.T) *repository.Store {
	t.Helper()
	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, database.Migrate(context.Background(), db.GORM))
	return repository.NewStore(db.GORM)
}

// newTestService wires a service over an in-memory store; sleeps are recorded, not slept.
func newTestService(t *testing.T, src *fakeSource, pageSize int) (*Service, *[]time.Duration) {
	t.Helper()
	svc := NewService(src, newTestStore(t), nil, Config{PageSize: pageSize, MaxThrottleRetries: 5}, nil)
	var sleeps []time.Duration
	svc.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return ctx.Err()
	}
	return svc, &sleeps
}

func post(id int, text string) *tg.Message {
	return &tg.Message{ID: id, Date: baseDate + id, Message: text}
}

func posts(from, to int) []tg.MessageClass {
	out := make([]tg.MessageClass, 0, to-from+1)
	for id := from; id <= to; id++ {
		out = append(out, post(id, fmt.Sprintf("post %d", id)))
	}
	return out
}

func albumPart(id int, groupedID int64, text string, views int, replies int) *tg.Message {
	m := post(id, text)
	m.GroupedID = groupedID
	m.Views = views
	m.Replies = tg.MessageReplies{Replies: replies}
	m.Media = &tg.MessageMediaPhoto{}
	return m
}
