package telegram

import (
	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"

	"github.com/blockedby/telememo/internal/config"
)

// AuthClientBundle holds a raw client used only to log in, with its in-memory session.
type AuthClientBundle struct {
	Client     *telegram.Client
	Dispatcher tg.UpdateDispatcher
	Storage    *session.StorageMemory
}

// NewAuthClient creates a raw td/telegram client for QR or phone login.
// Unlike gotgproto's NewClient, it never prompts on the terminal by itself.
func NewAuthClient(cfg *config.Config) (*AuthClientBundle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	memStorage := &session.StorageMemory{}
	// dispatcher with an initialized handler map, QR login registers on it
	dispatcher := tg.NewUpdateDispatcher()

	client := telegram.NewClient(cfg.TGApiID, cfg.TGApiHash, telegram.Options{
		SessionStorage: memStorage,
		UpdateHandler:  &dispatcher,
	})

	return &AuthClientBundle{
		Client:     client,
		Dispatcher: dispatcher,
		Storage:    memStorage,
	}, nil
}
