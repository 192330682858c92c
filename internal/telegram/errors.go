package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gotd/td/tgerr"
)

// errors
var (
	ErrThrottled       = errors.New("remote throttled")
	ErrUnavailable     = errors.New("remote unavailable")
	ErrChannelNotFound = errors.New("channel not found")
)

// rpc error types meaning the channel cannot be reached by this account
var notFoundTypes = []string{
	"USERNAME_NOT_OCCUPIED",
	"USERNAME_INVALID",
	"CHANNEL_INVALID",
	"CHANNEL_PRIVATE",
	"PEER_ID_INVALID",
}

// FloodWaitError is returned when telegram asks the caller to back off.
type FloodWaitError struct {
	Wait time.Duration
	Err  error
}

func (e *FloodWaitError) Error() string {
	return fmt.Sprintf("flood wait %s: %v", e.Wait, e.Err)
}

func (e *FloodWaitError) Unwrap() error {
	return e.Err
}

// Is matches ErrThrottled.
func (e *FloodWaitError) Is(target error) bool {
	return target == ErrThrottled
}

// floodWait extracts the requested pause from a FLOOD_WAIT error.
func floodWait(err error) (time.Duration, bool) {
	if d, ok := tgerr.AsFloodWait(err); ok {
		return d, true
	}
	if seconds := checkFloodWait(err); seconds > 0 {
		return time.Duration(seconds) * time.Second, true
	}
	return 0, false
}

// checkFloodWait parses FLOOD_WAIT_X from errors that lost their rpc type on the way,
// e.g. "rpc error: code 420: FLOOD_WAIT_15".
func checkFloodWait(err error) int {
	if err == nil {
		return 0
	}
	parts := strings.SplitN(err.Error(), "FLOOD_WAIT_", 2)
	if len(parts) < 2 {
		return 0
	}
	var seconds int
	_, _ = fmt.Sscanf(strings.TrimSpace(parts[1]), "%d", &seconds)
	return seconds
}

// classify maps a raw client error onto the package error kinds.
// Bad requests keep their rpc error untouched; server side and transport failures become ErrUnavailable.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	if d, ok := floodWait(err); ok {
		return &FloodWaitError{Wait: d, Err: fmt.Errorf("%s: %w", op, err)}
	}
	if tgerr.Is(err, notFoundTypes...) {
		return fmt.Errorf("%s: %w: %w", op, ErrChannelNotFound, err)
	}
	if rpcErr, ok := tgerr.As(err); ok && rpcErr.Code < 500 {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}
