package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const channelPrefix = "board:"

// NewRedisClient подключается к Redis и проверяет соединение
func NewRedisClient(addr, password string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           0,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Printf("[Redis] Connected to %s", addr)
	return client, nil
}

// RedisRelay fans broadcasts out to the other server instances over pub/sub.
type RedisRelay struct {
	client     *redis.Client
	instanceID string
}

type relayMessage struct {
	Origin  string `json:"origin"`
	Channel string `json:"channel"`
	Frame   Frame  `json:"frame"`
}

func NewRedisRelay(client *redis.Client, instanceID string) *RedisRelay {
	return &RedisRelay{client: client, instanceID: instanceID}
}

func (r *RedisRelay) Publish(ctx context.Context, channelID string, f Frame) error {
	data, err := r.encode(channelID, f)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, channelPrefix+channelID, data).Err()
}

// Run delivers relayed broadcasts to the local hub until ctx is done.
func (r *RedisRelay) Run(ctx context.Context, hub *Hub) error {
	sub := r.client.PSubscribe(ctx, channelPrefix+"*")
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	log.Printf("[Redis] Relay %s subscribed", r.instanceID)

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			channelID, f, ok := r.accept([]byte(msg.Payload))
			if ok && strings.TrimPrefix(msg.Channel, channelPrefix) == channelID {
				hub.DeliverRemote(channelID, f)
			}
		}
	}
}

func (r *RedisRelay) encode(channelID string, f Frame) ([]byte, error) {
	return json.Marshal(relayMessage{Origin: r.instanceID, Channel: channelID, Frame: f})
}

// accept decodes a relayed message. Messages published by this instance are dropped.
func (r *RedisRelay) accept(payload []byte) (string, Frame, bool) {
	var m relayMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		log.Printf("[Redis] Dropping malformed relay message: %v", err)
		return "", Frame{}, false
	}
	if m.Origin == r.instanceID || m.Frame.Type != FrameBroadcast {
		return "", Frame{}, false
	}
	return m.Channel, m.Frame, true
}
