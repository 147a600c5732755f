package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"homeservices/chatcore/internal/api"
	"homeservices/chatcore/internal/chat"
	"homeservices/chatcore/internal/config"
	"homeservices/chatcore/internal/identity"
	"homeservices/chatcore/internal/localization"
	"homeservices/chatcore/internal/realtime"
	"homeservices/chatcore/internal/tui"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// logFile keeps log output off the terminal the UI draws on.
const logFile = "chatcore.log"

func main() {
	config.LoadDotEnv()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		fmt.Fprintln(os.Stderr, "log file:", err)
		os.Exit(1)
	}
	defer f.Close()
	config.SetupLogging(cfg.LogLevel, f)

	if err := run(cfg); err != nil {
		log.Error().Err(err).Msg("client exited")
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := api.NewClient(cfg.APIURL, cfg.Token)

	var cache identity.Cache
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("identity cache unavailable")
		} else {
			cache = identity.NewRedisCache(rdb, identity.DefaultCacheKey)
		}
	}

	self, origin, err := identity.NewResolver(client, cache, cfg.Token).Resolve(ctx)
	if err != nil {
		return fmt.Errorf("unable to load identity: %w", err)
	}
	log.Info().Str("user_id", self.UserID).Str("role", string(self.Role)).Stringer("origin", origin).Msg("identity resolved")

	list, err := client.Contacts(ctx, self.Role)
	if err != nil {
		log.Warn().Err(err).Msg("contact list unavailable")
	}
	contacts := chat.NewContactList(list...)

	dialer := realtime.NewWSDialer(cfg.WSURL, cfg.Token)

	presence := chat.NewPresenceTracker(dialer, contacts)
	if err := presence.Start(ctx, self.UserID); err != nil {
		log.Warn().Err(err).Msg("presence start failed")
	}
	defer presence.Stop()

	l := localization.Default(cfg.Locale)
	session := chat.NewRoomSession(client, dialer, contacts, self, chat.WithLocalizer(l))
	defer session.CloseRoom()

	p := tea.NewProgram(tui.New(ctx, self, contacts, session, l), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("ui: %w", err)
	}
	return nil
}
