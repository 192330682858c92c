package telegram

import (
	"context"
	"errors"
	"fmt"

	"github.com/celestix/gotgproto/storage"
	"github.com/gotd/td/session"
)

// ConvertToGotgprotoSession converts gotd session.Data to a gotgproto storage.Session.
// The payload is gotd's own versioned session encoding, which gotgproto hands back to gotd on load.
func ConvertToGotgprotoSession(data *session.Data) (*storage.Session, error) {
	if data == nil {
		return nil, errors.New("session data is nil")
	}

	mem := &session.StorageMemory{}
	ctx := context.Background()
	if err := (&session.Loader{Storage: mem}).Save(ctx, data); err != nil {
		return nil, fmt.Errorf("encode session data: %w", err)
	}
	raw, err := mem.LoadSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("encode session data: %w", err)
	}

	return &storage.Session{
		Version: storage.LatestVersion,
		Data:    raw,
	}, nil
}
