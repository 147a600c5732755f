package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"homeservices/chatcore/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// SetOnline adds the user to the online set and stamps last seen.
func (s *Service) SetOnline(userID string, at time.Time) error {
	_, err := s.Redis.TxPipelined(s.Ctx, func(p redis.Pipeliner) error {
		p.SAdd(s.Ctx, onlineSetKey, userID)
		p.HSet(s.Ctx, lastSeenHashKey, userID, at.UTC().Format(time.RFC3339Nano))
		return nil
	})
	return err
}

// SetOffline removes the user from the online set and stamps last seen.
func (s *Service) SetOffline(userID string, at time.Time) error {
	_, err := s.Redis.TxPipelined(s.Ctx, func(p redis.Pipeliner) error {
		p.SRem(s.Ctx, onlineSetKey, userID)
		p.HSet(s.Ctx, lastSeenHashKey, userID, at.UTC().Format(time.RFC3339Nano))
		return nil
	})
	return err
}

// Presence reports whether the user is online and when they were last seen.
// lastSeen is nil for users never seen by this server.
func (s *Service) Presence(userID string) (bool, *time.Time, error) {
	online, err := s.Redis.SIsMember(s.Ctx, onlineSetKey, userID).Result()
	if err != nil {
		return false, nil, err
	}
	raw, err := s.Redis.HGet(s.Ctx, lastSeenHashKey, userID).Result()
	if errors.Is(err, redis.Nil) {
		return online, nil, nil
	}
	if err != nil {
		return online, nil, err
	}
	seen, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return online, nil, fmt.Errorf("last seen of %s: %w", userID, err)
	}
	return online, &seen, nil
}

// PublishEvent broadcasts frame to every devserver instance.
func (s *Service) PublishEvent(frame models.RoomFrame) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return s.Redis.Publish(s.Ctx, broadcastChannel, payload).Err()
}

// Subscribe delivers published frames until ctx is done.
func (s *Service) Subscribe(ctx context.Context) <-chan models.RoomFrame {
	out := make(chan models.RoomFrame, 64)
	pubsub := s.Redis.Subscribe(ctx, broadcastChannel)
	// wait for the subscription so nothing published after return is missed
	if _, err := pubsub.Receive(ctx); err != nil {
		log.Warn().Err(err).Msg("broadcast subscription not confirmed")
	}

	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var frame models.RoomFrame
				if err := json.Unmarshal([]byte(msg.Payload), &frame); err != nil {
					log.Warn().Err(err).Msg("dropping undecodable broadcast frame")
					continue
				}
				select {
				case out <- frame:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}
