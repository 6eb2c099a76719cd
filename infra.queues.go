package main

import (
	"context"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
)

// EventsQueue carries every kind of change so they are consumed in order.
const EventsQueue = "books.events"

// Kinds of change events.
const (
	SavedEvent    = "saved"
	QuantityEvent = "quantity"
	DeletedEvent  = "deleted"
)

var (
	_ Queuer = (*redisQueue)(nil)
	_ Queuer = (*noopQueue)(nil)
)

// BookEvent is the message published on every successful mutation.
type BookEvent struct {
	Kind string    `json:"kind"`
	Book Book      `json:"book"`
	At   time.Time `json:"at"`
}

// Queuer describes a queue.
type Queuer interface {
	Push(ctx context.Context, qid string, event BookEvent) error
	Pop(ctx context.Context, qids ...string) (string, BookEvent, error)
}

// redisQueue is a list-based queue on redis.
type redisQueue struct {
	client *redis.Client
}

func NewRedisQueue(client *redis.Client) *redisQueue {
	return &redisQueue{client: client}
}

// Push enqueues an event onto the queue identified by qid.
func (q *redisQueue) Push(ctx context.Context, qid string, event BookEvent) error {
	data, err := jsoniter.ConfigFastest.Marshal(event)
	if err != nil {
		return err
	}
	return q.client.RPush(ctx, qid, data).Err()
}

// Pop blocks until an event is available on one of the queues and returns it.
func (q *redisQueue) Pop(ctx context.Context, qids ...string) (string, BookEvent, error) {
	var event BookEvent
	infos, err := q.client.BLPop(ctx, 0*time.Second, qids...).Result()
	if err != nil {
		return "", event, err
	}

	if err = jsoniter.ConfigFastest.Unmarshal([]byte(infos[1]), &event); err != nil {
		return infos[0], event, err
	}
	return infos[0], event, nil
}

// noopQueue drops every event. It serves when the change feed is disabled.
type noopQueue struct{}

func NewNoopQueue() *noopQueue {
	return &noopQueue{}
}

func (q *noopQueue) Push(context.Context, string, BookEvent) error {
	return nil
}

// Pop waits for the context to be done since nothing is ever queued.
func (q *noopQueue) Pop(ctx context.Context, _ ...string) (string, BookEvent, error) {
	<-ctx.Done()
	return "", BookEvent{}, ctx.Err()
}

// GetRedisClient provides a ready to use and tested redis client.
func GetRedisClient(ctx context.Context, config *RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         config.Host + ":" + config.Port,
		Username:     config.Username,
		Password:     config.Password,
		DB:           config.DatabaseIndex,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		PoolSize:     config.PoolSize,
		PoolTimeout:  config.PoolTimeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}
