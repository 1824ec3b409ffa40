package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gomodule/redigo/redis"
	"github.com/rs/zerolog/log"
)

const channelPrefix = "pomodoro:events:"

func NewRedisPool(addr string) *redis.Pool {
	return &redis.Pool{
		MaxIdle:     4,
		IdleTimeout: 4 * time.Minute,
		DialContext: func(ctx context.Context) (redis.Conn, error) {
			return redis.DialContext(ctx, "tcp", addr)
		},
		TestOnBorrow: func(c redis.Conn, lastUsed time.Time) error {
			if time.Since(lastUsed) < time.Minute {
				return nil
			}
			_, err := c.Do("PING")
			return err
		},
	}
}

// RedisRelay publishes events to Redis and feeds events published by other
// instances into the local broker. Events this instance published are delivered
// locally at publish time and skipped when they come back from Redis.
type RedisRelay struct {
	pool   *redis.Pool
	local  *Broker
	origin string
}

var _ Publisher = (*RedisRelay)(nil)

func NewRedisRelay(pool *redis.Pool, local *Broker, origin string) *RedisRelay {
	return &RedisRelay{pool: pool, local: local, origin: origin}
}

func (r *RedisRelay) Publish(ctx context.Context, event Event) {
	event.Origin = r.origin
	r.local.Deliver(event)

	payload, err := encodeEvent(event)
	if err != nil {
		log.Warn().Err(err).Str("sessionId", event.SessionID).Msg("encode event")
		return
	}

	conn, err := r.pool.GetContext(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("redis connection unavailable, event kept local")
		return
	}
	defer conn.Close()

	if _, err := conn.Do("PUBLISH", channelFor(event.UserID), payload); err != nil {
		log.Warn().Err(err).Str("sessionId", event.SessionID).Msg("redis publish failed")
	}
}

// Run consumes remote events until ctx is cancelled.
func (r *RedisRelay) Run(ctx context.Context) error {
	conn, err := r.pool.GetContext(ctx)
	if err != nil {
		return fmt.Errorf("redis connect: %w", err)
	}
	psc := redis.PubSubConn{Conn: conn}
	defer psc.Close()

	if err := psc.PSubscribe(channelPrefix + "*"); err != nil {
		return fmt.Errorf("redis psubscribe: %w", err)
	}
	log.Info().Str("pattern", channelPrefix+"*").Msg("redis event relay subscribed")

	for {
		switch msg := psc.ReceiveContext(ctx).(type) {
		case redis.Message:
			r.handle(msg)
		case redis.Subscription:
			log.Debug().Str("kind", msg.Kind).Str("channel", msg.Channel).Int("count", msg.Count).Msg("redis subscription")
		case error:
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("redis receive: %w", msg)
		}
	}
}

func (r *RedisRelay) handle(msg redis.Message) {
	event, err := decodeEvent(msg.Data)
	if err != nil {
		log.Warn().Err(err).Str("channel", msg.Channel).Msg("drop malformed event")
		return
	}
	if event.Origin == r.origin {
		return
	}
	if userFromChannel(msg.Channel) != event.UserID {
		log.Warn().Str("channel", msg.Channel).Str("userId", event.UserID).Msg("drop event on foreign channel")
		return
	}
	r.local.Deliver(event)
}

func channelFor(userID string) string {
	return channelPrefix + userID
}

func userFromChannel(channel string) string {
	return strings.TrimPrefix(channel, channelPrefix)
}

func encodeEvent(event Event) ([]byte, error) {
	return json.Marshal(event)
}

func decodeEvent(data []byte) (Event, error) {
	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		return Event{}, err
	}
	if event.UserID == "" {
		return Event{}, errors.New("event without user")
	}
	return event, nil
}
