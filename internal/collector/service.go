// Package collector runs dumps and incremental syncs of channels into the store
// and serves the stored data over HTTP.
package collector

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/blockedby/telememo/internal/display"
	"github.com/blockedby/telememo/internal/logger"
	"github.com/blockedby/telememo/internal/models"
	"github.com/blockedby/telememo/internal/normalize"
	"github.com/blockedby/telememo/internal/repository"
	"github.com/blockedby/telememo/internal/telegram"
)

// ErrNoPriorDump is returned by Sync for a channel that was never dumped.
var ErrNoPriorDump = errors.New("channel has no prior dump")

// Source is the remote side of a sync.
type Source interface {
	ResolveChannel(ctx context.Context, username string) (*telegram.Channel, error)
	GetChannel(ctx context.Context, id, accessHash int64) (*telegram.Channel, error)
	History(ctx context.Context, ch *telegram.Channel, q telegram.HistoryQuery) (*telegram.Page, error)
}

// EventPublisher publishes an event after each stored batch.
type EventPublisher interface {
	PublishMessagesStored(ctx context.Context, event MessagesStoredEvent) error
}

// MessagesStoredEvent describes one committed batch.
type MessagesStoredEvent struct {
	RunID      uuid.UUID      `json:"run_id"`
	ChannelID  int64          `json:"channel_id"`
	Kind       models.RunKind `json:"kind"`
	MessageIDs []int64        `json:"message_ids"`
	Inserted   int            `json:"inserted"`
	Updated    int            `json:"updated"`
	Checkpoint int64          `json:"checkpoint"`
	StoredAt   time.Time      `json:"stored_at"`
}

// Config tunes paging and throttle handling.
type Config struct {
	PageSize           int
	MaxThrottleRetries int
}

// DefaultConfig returns full pages and five throttle retries per page.
func DefaultConfig() Config {
	return Config{PageSize: telegram.MaxPageSize, MaxThrottleRetries: 5}
}

// DumpOptions holds options for a full backfill.
type DumpOptions struct {
	Channel string
	// Limit caps the number of fetched messages, 0 means the whole history
	Limit int
	// Resume continues below the oldest stored message instead of starting from the newest
	Resume   bool
	Progress ProgressFunc
}

// Result contains run statistics.
type Result struct {
	RunID            uuid.UUID       `json:"run_id"`
	Channel          *models.Channel `json:"channel"`
	Pages            int             `json:"pages"`
	Fetched          int             `json:"fetched"`
	Inserted         int             `json:"inserted"`
	Updated          int             `json:"updated"`
	Skipped          int             `json:"skipped"`
	CheckpointBefore *int64          `json:"checkpoint_before,omitempty"`
	CheckpointAfter  *int64          `json:"checkpoint_after,omitempty"`
}

// ChannelInfo is a channel together with its local statistics.
type ChannelInfo struct {
	Channel *models.Channel         `json:"channel"`
	Stored  int64                   `json:"stored"`
	Range   repository.ParsedRange `json:"range"`
	LastRun *models.SyncRun         `json:"last_run,omitempty"`
}

// defaultLeaseTTL bounds how long a crashed process keeps a channel locked.
// Every committed page extends the lease.
const defaultLeaseTTL = 15 * time.Minute

// Service orchestrates fetching, normalizing and storing channel history.
type Service struct {
	source    Source
	store     *repository.Store
	publisher EventPublisher
	cfg       Config
	log       *logger.Logger

	// guard serializes runs per channel, see Manager
	guard func(channelID int64) (release func(), err error)
	sleep func(ctx context.Context, d time.Duration) error

	// owner names this service in the channel run lease, shared by every process on the store
	owner    string
	leaseTTL time.Duration
}

// NewService creates a new collector service. publisher may be nil.
func NewService(source Source, store *repository.Store, publisher EventPublisher, cfg Config, log *logger.Logger) *Service {
	if cfg.PageSize <= 0 || cfg.PageSize > telegram.MaxPageSize {
		cfg.PageSize = telegram.MaxPageSize
	}
	if cfg.MaxThrottleRetries < 0 {
		cfg.MaxThrottleRetries = 0
	}
	if log == nil {
		log = logger.Get()
	}
	return &Service{
		source:    source,
		store:     store,
		publisher: publisher,
		cfg:       cfg,
		log:       log.Component("collector"),
		guard:     func(int64) (func(), error) { return func() {}, nil },
		sleep:     sleepCtx,
		owner:     fmt.Sprintf("pid-%d-%s", os.Getpid(), uuid.NewString()[:8]),
		leaseTTL:  defaultLeaseTTL,
	}
}

// Store returns the repositories the service writes to.
func (s *Service) Store() *repository.Store {
	return s.store
}

// Info resolves a channel remotely, stores its metadata and returns it with local statistics.
func (s *Service) Info(ctx context.Context, ref string) (*ChannelInfo, error) {
	ch, err := s.refreshChannel(ctx, ref)
	if err != nil {
		return nil, err
	}
	return s.Stats(ctx, ch)
}

// Stats collects local statistics of a stored channel.
func (s *Service) Stats(ctx context.Context, ch *models.Channel) (*ChannelInfo, error) {
	count, err := s.store.Messages.Count(ctx, ch.ID)
	if err != nil {
		return nil, err
	}
	rng, err := s.store.Messages.Range(ctx, ch.ID)
	if err != nil {
		return nil, err
	}
	info := &ChannelInfo{Channel: ch, Stored: count, Range: rng}

	runs, err := s.store.Runs.Latest(ctx, ch.ID, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) > 0 {
		info.LastRun = &runs[0]
	}
	return info, nil
}

// unitScanBatch is how many raw messages LatestUnits reads per query.
const unitScanBatch = 200

// LatestUnits returns the newest display units of a stored channel, skipping offset units.
// Paging counts units, not raw rows, so an album is never split between two pages.
func (s *Service) LatestUnits(ctx context.Context, ch *models.Channel, limit, offset int) ([]models.DisplayUnit, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	if offset < 0 {
		return nil, ErrInvalidOffset
	}

	// read until a unit past the requested window has started; album members are adjacent
	// in newest-first order, so every unit before it is complete
	want := offset + limit
	var msgs []models.Message
	for {
		batch, err := s.store.Messages.Latest(ctx, ch.ID, unitScanBatch, len(msgs))
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, batch...)
		if len(batch) < unitScanBatch || len(display.GroupSlice(msgs)) > want {
			break
		}
	}

	units := display.GroupSlice(msgs)
	if offset >= len(units) {
		return []models.DisplayUnit{}, nil
	}
	return units[offset:min(want, len(units))], nil
}

// Lookup finds a stored channel by reference without touching the network.
func (s *Service) Lookup(ctx context.Context, ref string) (*models.Channel, error) {
	parsed, err := ParseChannelRef(ref)
	if err != nil {
		return nil, err
	}
	if parsed.Username != "" {
		return s.store.Channels.GetByUsername(ctx, parsed.Username)
	}
	return s.store.Channels.GetByID(ctx, parsed.ID)
}

// refreshChannel resolves ref on telegram and upserts the channel row.
// Numeric references need the access hash of a previously stored row.
func (s *Service) refreshChannel(ctx context.Context, ref string) (*models.Channel, error) {
	parsed, err := ParseChannelRef(ref)
	if err != nil {
		return nil, err
	}

	var remote *telegram.Channel
	if parsed.Username != "" {
		remote, err = s.source.ResolveChannel(ctx, parsed.Username)
	} else {
		var local *models.Channel
		local, err = s.store.Channels.GetByID(ctx, parsed.ID)
		if err != nil {
			return nil, fmt.Errorf("channel %d: %w", parsed.ID, err)
		}
		remote, err = s.source.GetChannel(ctx, local.ID, local.AccessHash)
	}
	if err != nil {
		return nil, err
	}

	return s.store.Channels.Upsert(ctx, remote.Model())
}

// Dump backfills channel history newest first.
// The checkpoint only moves forward: it ends at the highest stored id.
func (s *Service) Dump(ctx context.Context, opts DumpOptions) (*Result, error) {
	ch, err := s.refreshChannel(ctx, opts.Channel)
	if err != nil {
		return nil, err
	}

	release, err := s.guard(ch.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	unlease, err := s.lease(ctx, ch.ID)
	if err != nil {
		return nil, err
	}
	defer unlease()

	offsetID := 0
	if opts.Resume {
		rng, err := s.store.Messages.Range(ctx, ch.ID)
		if err != nil {
			return nil, err
		}
		if !rng.IsEmpty() {
			offsetID = int(rng.MinMsgID)
		}
	}

	r, err := s.begin(ctx, ch, models.RunKindDump, opts.Progress)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Int64("channel_id", ch.ID).
		Str("channel", ch.Handle()).
		Int("limit", opts.Limit).
		Int("offset_id", offsetID).
		Msg("collector: dump started")

	err = s.dumpPages(ctx, r, offsetID, opts.Limit)
	if err == nil && r.checkpoint == nil {
		// an empty channel still counts as dumped
		err = s.advance(ctx, r, 0)
	}
	return s.finish(ctx, r, err)
}

func (s *Service) dumpPages(ctx context.Context, r *run, offsetID, limit int) error {
	if offsetID == 1 {
		// nothing is older than the first message
		return nil
	}
	for {
		size := s.cfg.PageSize
		if limit > 0 {
			size = min(size, limit-r.result.Fetched)
		}

		page, err := s.fetch(ctx, r, telegram.HistoryQuery{OffsetID: offsetID, Limit: size})
		if err != nil {
			return err
		}
		if len(page.Messages) == 0 {
			return nil
		}

		if err := s.persist(ctx, r, page, nil); err != nil {
			return err
		}

		// descending page, the last id is the lowest
		offsetID = page.Messages[len(page.Messages)-1].GetID()
		if offsetID <= 1 || (limit > 0 && r.result.Fetched >= limit) {
			return nil
		}
	}
}

// Sync fetches messages newer than the checkpoint, oldest first.
func (s *Service) Sync(ctx context.Context, ref string) (*Result, error) {
	ch, err := s.Lookup(ctx, ref)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", ref, ErrNoPriorDump)
	}
	if err != nil {
		return nil, err
	}

	release, err := s.guard(ch.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	return s.syncChannel(ctx, ch, nil)
}

// syncChannel runs an incremental sync of an already locked channel.
func (s *Service) syncChannel(ctx context.Context, ch *models.Channel, progress ProgressFunc) (*Result, error) {
	unlease, err := s.lease(ctx, ch.ID)
	if err != nil {
		return nil, err
	}
	defer unlease()

	// re-read under the lock, a run that just finished may have moved the checkpoint
	ch, err = s.store.Channels.GetByID(ctx, ch.ID)
	if err != nil {
		return nil, err
	}
	if !ch.HasCheckpoint() {
		return nil, fmt.Errorf("%s: %w", ch.Handle(), ErrNoPriorDump)
	}

	r, err := s.begin(ctx, ch, models.RunKindSync, progress)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Int64("channel_id", ch.ID).
		Str("channel", ch.Handle()).
		Int64("checkpoint", *ch.LastSyncedMessageID).
		Msg("collector: sync started")

	return s.finish(ctx, r, s.syncPages(ctx, r))
}

func (s *Service) syncPages(ctx context.Context, r *run) error {
	minID := int(*r.checkpoint)
	for {
		page, err := s.fetch(ctx, r, telegram.HistoryQuery{MinID: minID, Limit: s.cfg.PageSize, Ascending: true})
		if err != nil {
			return err
		}
		if len(page.Messages) == 0 {
			return nil
		}

		filter := repository.NewMessageIDFilter(*r.checkpoint)
		if err := s.persist(ctx, r, page, filter); err != nil {
			return err
		}

		// ascending page, the last id is the highest
		next := page.Messages[len(page.Messages)-1].GetID()
		if next <= minID {
			return nil
		}
		minID = next
	}
}

// fetch loads one page, sleeping through FLOOD_WAIT up to MaxThrottleRetries times.
func (s *Service) fetch(ctx context.Context, r *run, q telegram.HistoryQuery) (*telegram.Page, error) {
	r.transition(StateFetching)

	for attempt := 0; ; attempt++ {
		page, err := s.source.History(ctx, r.remote, q)
		if err == nil {
			r.result.Pages++
			r.result.Fetched += len(page.Messages)
			return page, nil
		}

		var fw *telegram.FloodWaitError
		if !errors.As(err, &fw) || attempt >= s.cfg.MaxThrottleRetries {
			return nil, err
		}

		s.log.Warn().
			Int64("channel_id", r.channel.ID).
			Dur("wait", fw.Wait).
			Int("attempt", attempt+1).
			Msg("collector: throttled, waiting")
		if err := s.sleep(ctx, fw.Wait); err != nil {
			return nil, err
		}
	}
}

// persist normalizes a page, upserts it and advances the checkpoint.
// filter, when set, drops ids at or below the checkpoint.
func (s *Service) persist(ctx context.Context, r *run, page *telegram.Page, filter *repository.MessageIDFilter) error {
	r.transition(StateNormalizing)
	msgs := s.normalizePage(r, page)
	if filter != nil {
		msgs = filter.FilterNew(msgs)
	}
	if len(msgs) == 0 {
		return nil
	}

	r.transition(StatePersisting)
	batch, err := s.store.Messages.UpsertBatch(ctx, r.channel.ID, msgs)
	if err != nil {
		return err
	}
	r.result.Inserted += batch.Inserted
	r.result.Updated += batch.Updated

	ids := lo.Map(msgs, func(m models.Message, _ int) int64 { return m.MessageID })
	if err := s.advance(ctx, r, lo.Max(ids)); err != nil {
		return err
	}

	s.log.Debug().
		Int64("channel_id", r.channel.ID).
		Int("stored", len(msgs)).
		Int("inserted", batch.Inserted).
		Int64("checkpoint", *r.checkpoint).
		Msg("collector: page stored")

	s.publish(ctx, r, ids, batch)
	return nil
}

func (s *Service) normalizePage(r *run, page *telegram.Page) []models.Message {
	ents := normalize.NewEntities(page.Users, page.Chats)
	msgs := make([]models.Message, 0, len(page.Messages))
	for _, raw := range page.Messages {
		msg, err := normalize.Message(r.channel.ID, raw, ents)
		if err != nil {
			r.result.Skipped++
			s.log.Warn().Err(err).Int64("channel_id", r.channel.ID).Msg("collector: message skipped")
			continue
		}
		msgs = append(msgs, msg)
	}
	return msgs
}

// advance moves the checkpoint to max(current, seen) and extends the run lease.
func (s *Service) advance(ctx context.Context, r *run, seen int64) error {
	if err := s.renewLease(ctx, r.channel.ID); err != nil {
		return err
	}

	target := seen
	if r.checkpoint != nil {
		target = max(*r.checkpoint, seen)
	}
	if err := s.store.Channels.SetCheckpoint(ctx, r.channel.ID, target); err != nil {
		return err
	}
	r.checkpoint = &target
	r.result.CheckpointAfter = &target
	// reported after the write so the snapshot carries the new checkpoint
	r.transition(StateCheckpointing)
	return nil
}

func (s *Service) publish(ctx context.Context, r *run, ids []int64, batch repository.BatchResult) {
	if s.publisher == nil {
		return
	}
	event := MessagesStoredEvent{
		RunID:      r.record.ID,
		ChannelID:  r.channel.ID,
		Kind:       r.record.Kind,
		MessageIDs: ids,
		Inserted:   batch.Inserted,
		Updated:    batch.Updated,
		Checkpoint: *r.checkpoint,
		StoredAt:   time.Now().UTC(),
	}
	if err := s.publisher.PublishMessagesStored(ctx, event); err != nil {
		s.log.Warn().Err(err).Int64("channel_id", r.channel.ID).Msg("collector: failed to publish event")
	}
}

// lease claims the channel in the store so runs from other processes on the same
// database are refused. A lease left by a crashed process expires after leaseTTL.
func (s *Service) lease(ctx context.Context, channelID int64) (func(), error) {
	if err := s.renewLease(ctx, channelID); err != nil {
		return nil, err
	}
	return func() {
		if err := s.store.Channels.ReleaseLease(context.WithoutCancel(ctx), channelID, s.owner); err != nil {
			s.log.Warn().Err(err).Int64("channel_id", channelID).Msg("collector: failed to release run lease")
		}
	}, nil
}

func (s *Service) renewLease(ctx context.Context, channelID int64) error {
	err := s.store.Channels.AcquireLease(ctx, channelID, s.owner, time.Now().Add(s.leaseTTL))
	if errors.Is(err, repository.ErrLeaseHeld) {
		return fmt.Errorf("%w: %w", ErrAlreadyRunning, err)
	}
	return err
}

// begin records the run start.
func (s *Service) begin(ctx context.Context, ch *models.Channel, kind models.RunKind, progress ProgressFunc) (*run, error) {
	record, err := s.store.Runs.Start(ctx, ch.ID, kind, ch.LastSyncedMessageID)
	if err != nil {
		return nil, err
	}

	r := &run{
		channel: ch,
		remote: &telegram.Channel{
			ID:         ch.ID,
			AccessHash: ch.AccessHash,
			Username:   ch.Username,
			Title:      ch.Title,
		},
		record:     record,
		checkpoint: ch.LastSyncedMessageID,
		state:      StateIdle,
		progress:   progress,
		log:        s.log,
	}
	r.result = &Result{
		RunID:            record.ID,
		Channel:          ch,
		CheckpointBefore: ch.LastSyncedMessageID,
		CheckpointAfter:  ch.LastSyncedMessageID,
	}
	return r, nil
}

// finish closes the run record. A failed run still returns its partial result.
func (s *Service) finish(ctx context.Context, r *run, runErr error) (*Result, error) {
	if runErr != nil {
		r.transition(StateFailed)
	} else {
		r.transition(StateIdle)
	}

	r.record.Fetched = r.result.Fetched
	r.record.Inserted = r.result.Inserted
	r.record.Updated = r.result.Updated
	r.record.Skipped = r.result.Skipped
	r.record.CheckpointAfter = r.result.CheckpointAfter

	// the run record is written even when ctx is already canceled
	if err := s.store.Runs.Finish(context.WithoutCancel(ctx), r.record, runErr); err != nil {
		s.log.Warn().Err(err).Msg("collector: failed to record run")
	}

	event := s.log.Info()
	if runErr != nil {
		event = s.log.Error().Err(runErr)
	}
	event.
		Int64("channel_id", r.channel.ID).
		Str("kind", string(r.record.Kind)).
		Int("pages", r.result.Pages).
		Int("fetched", r.result.Fetched).
		Int("inserted", r.result.Inserted).
		Int("updated", r.result.Updated).
		Int("skipped", r.result.Skipped).
		Msg("collector: run finished")

	return r.result, runErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
