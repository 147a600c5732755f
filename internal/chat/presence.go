package chat

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"homeservices/chatcore/internal/config"
	"homeservices/chatcore/internal/localization"
	"homeservices/chatcore/internal/models"
	"homeservices/chatcore/internal/realtime"

	"github.com/rs/zerolog/log"
)

// PresenceTracker announces the local user's liveness on the control channel
// and applies contacts' liveness events to the ContactList.
// A tracker that failed to connect leaves every contact untouched.
type PresenceTracker struct {
	dialer   realtime.Dialer
	contacts *ContactList
	interval time.Duration
	now      func() time.Time

	// lifecycle serializes Start and Stop; mu guards the fields below
	lifecycle sync.Mutex

	mu      sync.Mutex
	conn    realtime.Conn
	userID  string
	cancel  context.CancelFunc
	running bool
	wg      sync.WaitGroup
}

// PresenceOption configures a PresenceTracker.
type PresenceOption func(*PresenceTracker)

// WithHeartbeatInterval overrides config.HeartbeatInterval.
func WithHeartbeatInterval(d time.Duration) PresenceOption {
	return func(p *PresenceTracker) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithPresenceClock overrides time.Now.
func WithPresenceClock(now func() time.Time) PresenceOption {
	return func(p *PresenceTracker) { p.now = now }
}

func NewPresenceTracker(d realtime.Dialer, contacts *ContactList, opts ...PresenceOption) *PresenceTracker {
	p := &PresenceTracker{
		dialer:   d,
		contacts: contacts,
		interval: config.HeartbeatInterval,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start opens the control connection for userID, announces it online and
// begins the heartbeat. Connection failures are logged and swallowed.
// Starting for a different user stops the previous session first.
func (p *PresenceTracker) Start(ctx context.Context, userID string) error {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()

	p.mu.Lock()
	if p.running && p.userID == userID {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()
	p.stop()

	conn, err := p.dialer.Dial(ctx, realtime.Tags{UserID: userID, Type: models.ConnTypePresence})
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("presence unavailable, continuing without live status")
		return nil
	}

	if err := conn.Send(models.EventUserOnline, models.PresencePayload{UserID: userID}); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("online announcement failed")
	}

	loopCtx, cancel := context.WithCancel(context.Background())

	p.mu.Lock()
	p.conn = conn
	p.userID = userID
	p.cancel = cancel
	p.running = true
	p.wg.Add(2)
	p.mu.Unlock()

	go p.heartbeat(loopCtx, conn, userID)
	go p.listen(loopCtx, conn)

	log.Info().Str("user_id", userID).Msg("presence started")
	return nil
}

// Stop announces the user offline, cancels the heartbeat and closes the
// connection. It is safe to call on every exit path, repeatedly.
func (p *PresenceTracker) Stop() {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()
	p.stop()
}

func (p *PresenceTracker) stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	conn, cancel, userID := p.conn, p.cancel, p.userID
	p.running = false
	p.conn = nil
	p.cancel = nil
	p.mu.Unlock()

	if err := conn.Send(models.EventUserOffline, models.PresencePayload{UserID: userID}); err != nil {
		log.Debug().Err(err).Str("user_id", userID).Msg("offline announcement not delivered")
	}
	cancel()
	conn.Close()
	p.wg.Wait()
	log.Info().Str("user_id", userID).Msg("presence stopped")
}

// Running reports whether the control connection is up.
func (p *PresenceTracker) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *PresenceTracker) heartbeat(ctx context.Context, conn realtime.Conn, userID string) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-conn.Done():
			return
		case <-ticker.C:
			if err := conn.Send(models.EventUpdateActivity, models.PresencePayload{UserID: userID}); err != nil {
				log.Debug().Err(err).Msg("heartbeat not sent")
			}
		}
	}
}

func (p *PresenceTracker) listen(ctx context.Context, conn realtime.Conn) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-conn.Events():
			if !ok {
				if ctx.Err() == nil {
					log.Warn().Msg("presence channel closed by server")
				}
				return
			}
			p.apply(env)
		}
	}
}

func (p *PresenceTracker) apply(env models.Envelope) {
	var online bool
	switch env.Event {
	case models.EventUserOnline:
		online = true
	case models.EventUserOffline:
		online = false
	default:
		return
	}
	var payload models.PresencePayload
	if err := json.Unmarshal(env.Data, &payload); err != nil || payload.UserID == "" {
		log.Debug().Err(err).Str("event", env.Event).Msg("bad presence payload")
		return
	}
	if !p.contacts.SetOnline(payload.UserID, online, p.now()) {
		log.Debug().Str("peer_id", payload.UserID).Msg("presence for unknown contact ignored")
	}
}

// ActivityLabel renders a contact's liveness for display.
func ActivityLabel(isOnline bool, lastSeenAt *time.Time, now time.Time, l *localization.Localizer) string {
	if l == nil {
		l = localization.Default(localization.DefaultLang)
	}
	if isOnline {
		return l.T("presence.online")
	}
	if lastSeenAt == nil || lastSeenAt.IsZero() {
		return l.T("presence.offline")
	}
	age := now.Sub(*lastSeenAt)
	switch {
	case age < config.JustNowWindow:
		return l.T("presence.just_now")
	case age < time.Hour:
		return l.T("presence.minutes_ago", int(age/time.Minute))
	case age < 24*time.Hour:
		return l.T("presence.hours_ago", int(age/time.Hour))
	default:
		return l.T("presence.days_ago", int(age/(24*time.Hour)))
	}
}
