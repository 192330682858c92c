package telegram

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/celestix/gotgproto"
	"github.com/celestix/gotgproto/storage"
	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/telegram/auth/qrlogin"
	"gorm.io/gorm"

	"github.com/blockedby/telememo/internal/config"
	"github.com/blockedby/telememo/internal/logger"
)

// Status represents the Telegram client status.
type Status string

// Status constants define the possible states of the Telegram client.
const (
	StatusInitializing Status = "INITIALIZING"
	StatusReady        Status = "READY"
	StatusUnauthorized Status = "UNAUTHORIZED"
	StatusError        Status = "ERROR"
)

// errors
var (
	ErrAlreadyLoggedIn = errors.New("already logged in")
	ErrLoginInProgress = errors.New("login already in progress")
)

// ClientFactory is a function that creates a telegram client.
type ClientFactory func(ctx context.Context, cfg *config.Config, db *gorm.DB) (*gotgproto.Client, error)

// AuthClientFactory is a function that creates a raw telegram client for interactive auth.
type AuthClientFactory func(cfg *config.Config) (*AuthClientBundle, error)

// Manager handles Telegram client lifecycle and authentication.
// Sessions live in db, a store separate from the message database.
type Manager struct {
	client *gotgproto.Client
	db     *gorm.DB
	cfg    *config.Config
	log    *logger.Logger

	status Status
	mu     sync.RWMutex

	clientFactory     ClientFactory
	authClientFactory AuthClientFactory

	// login flow state
	loginInProgress atomic.Bool
	loginCancel     context.CancelFunc
	loginMu         sync.Mutex
}

// NewManager creates a new Telegram Manager.
func NewManager(cfg *config.Config, db *gorm.DB) *Manager {
	return &Manager{
		db:                db,
		cfg:               cfg,
		log:               logger.Get().Component("telegram"),
		status:            StatusInitializing,
		clientFactory:     NewPersistentClient,
		authClientFactory: NewAuthClient,
	}
}

// SetClientFactory allows overriding the client creation logic (e.g. for testing).
func (m *Manager) SetClientFactory(f ClientFactory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clientFactory = f
}

// SetAuthClientFactory allows overriding the login client creation logic (e.g. for testing).
func (m *Manager) SetAuthClientFactory(f AuthClientFactory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.authClientFactory = f
}

// GetStatus returns the current Telegram client status.
func (m *Manager) GetStatus() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// GetClient returns the underlying Telegram client, nil until Init succeeds.
func (m *Manager) GetClient() *gotgproto.Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.client
}

func (m *Manager) setStatus(s Status) {
	m.mu.Lock()
	m.status = s
	m.mu.Unlock()
}

// Init restores the stored session and connects.
// Without a usable session the manager ends up StatusUnauthorized and Init still returns nil.
func (m *Manager) Init(ctx context.Context) error {
	m.setStatus(StatusInitializing)

	var count int64
	if err := m.db.WithContext(ctx).Table("sessions").Count(&count).Error; err != nil {
		m.log.Debug().Err(err).Msg("telegram: sessions table not readable")
	}
	if count == 0 {
		m.log.Info().Msg("telegram: no stored session, login required")
		m.setStatus(StatusUnauthorized)
		return nil
	}

	m.mu.RLock()
	factory := m.clientFactory
	m.mu.RUnlock()

	client, err := factory(ctx, m.cfg, m.db)
	if err != nil {
		m.log.Warn().Err(err).Msg("telegram: failed to restore session")
		m.setStatus(StatusUnauthorized)
		return nil
	}

	m.mu.Lock()
	m.client = client
	m.status = StatusReady
	m.mu.Unlock()

	m.log.Info().Msg("telegram: client is ready")
	return nil
}

// IsLoginInProgress reports whether a QR or phone login is running.
func (m *Manager) IsLoginInProgress() bool {
	return m.loginInProgress.Load()
}

// beginLogin reserves the single login slot and returns a cancellable context for the flow.
func (m *Manager) beginLogin(ctx context.Context) (context.Context, func(), error) {
	if m.GetStatus() == StatusReady {
		return nil, nil, ErrAlreadyLoggedIn
	}

	m.loginMu.Lock()
	defer m.loginMu.Unlock()
	if m.loginInProgress.Load() {
		return nil, nil, ErrLoginInProgress
	}

	loginCtx, cancel := context.WithCancel(ctx)
	m.loginCancel = cancel
	m.loginInProgress.Store(true)

	done := func() {
		m.loginInProgress.Store(false)
		m.loginMu.Lock()
		if m.loginCancel != nil {
			m.loginCancel()
			m.loginCancel = nil
		}
		m.loginMu.Unlock()
	}
	return loginCtx, done, nil
}

// StartQR runs the QR login flow, calling onQRCode for every token telegram issues.
// It blocks until login succeeds or ctx is canceled.
func (m *Manager) StartQR(ctx context.Context, onQRCode func(url string)) error {
	loginCtx, done, err := m.beginLogin(ctx)
	if err != nil {
		return err
	}
	defer done()

	m.log.Info().Msg("telegram: starting QR login")
	return m.authorize(ctx, loginCtx, func(ctx context.Context, bundle *AuthClientBundle) error {
		loggedIn := qrlogin.OnLoginToken(&bundle.Dispatcher)
		_, err := bundle.Client.QR().Auth(ctx, loggedIn, func(_ context.Context, token qrlogin.Token) error {
			m.log.Debug().Msg("telegram: QR token generated")
			onQRCode(token.URL())
			return nil
		})
		return err
	})
}

// StartPhone runs the phone code login flow; prompts supply the code and the 2FA password.
func (m *Manager) StartPhone(ctx context.Context, prompt PhonePrompt) error {
	loginCtx, done, err := m.beginLogin(ctx)
	if err != nil {
		return err
	}
	defer done()

	m.log.Info().Str("phone", maskPhone(prompt.Number)).Msg("telegram: starting phone login")
	return m.authorize(ctx, loginCtx, func(ctx context.Context, bundle *AuthClientBundle) error {
		flow := auth.NewFlow(prompt, auth.SendCodeOptions{})
		return bundle.Client.Auth().IfNecessary(ctx, flow)
	})
}

// authorize runs login on a fresh in-memory client, persists the resulting session and re-initializes.
func (m *Manager) authorize(ctx, loginCtx context.Context, login func(context.Context, *AuthClientBundle) error) error {
	m.mu.RLock()
	factory := m.authClientFactory
	m.mu.RUnlock()

	bundle, err := factory(m.cfg)
	if err != nil {
		return fmt.Errorf("create auth client: %w", err)
	}

	var sessionData *session.Data
	err = bundle.Client.Run(loginCtx, func(ctx context.Context) error {
		if err := login(ctx, bundle); err != nil {
			return err
		}
		loader := session.Loader{Storage: bundle.Storage}
		sessionData, err = loader.Load(ctx)
		return err
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return context.Canceled
		}
		return fmt.Errorf("login failed: %w", err)
	}
	if sessionData == nil {
		return errors.New("session data is nil after successful auth")
	}

	if err := m.saveSession(sessionData); err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	m.log.Info().Msg("telegram: login complete, session stored")
	return m.Init(ctx)
}

// CancelLogin cancels any ongoing login flow.
func (m *Manager) CancelLogin() {
	m.loginMu.Lock()
	defer m.loginMu.Unlock()

	if m.loginCancel != nil {
		m.log.Info().Msg("telegram: canceling login")
		m.loginCancel()
		m.loginCancel = nil
	}
	m.loginInProgress.Store(false)
}

func (m *Manager) saveSession(data *session.Data) error {
	sess, err := ConvertToGotgprotoSession(data)
	if err != nil {
		return err
	}
	if err := m.db.AutoMigrate(&storage.Session{}); err != nil {
		return err
	}
	// Version is the primary key, Save overwrites the previous session
	return m.db.Save(sess).Error
}

// Stop stops the Telegram client.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client != nil {
		m.client.Stop()
		m.client = nil
	}
}
