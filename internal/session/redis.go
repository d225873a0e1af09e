package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mmeshcher/cleanbook/internal/wizard"
)

const keyPrefix = "cleanbook:draft:"

// NewRedisClient создаёт клиент Redis и проверяет соединение.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// RedisPersister хранит снимки сессий в Redis в JSON с тем же TTL, что и в памяти.
type RedisPersister struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisPersister создаёт хранилище снимков поверх клиента Redis.
func NewRedisPersister(client *redis.Client, ttl time.Duration) *RedisPersister {
	return &RedisPersister{client: client, ttl: ttl}
}

// Save сохраняет снимок и продлевает TTL.
func (p *RedisPersister) Save(ctx context.Context, id string, st wizard.State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := p.client.Set(ctx, keyPrefix+id, data, p.ttl).Err(); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// Load читает снимок сессии.
func (p *RedisPersister) Load(ctx context.Context, id string) (wizard.State, error) {
	data, err := p.client.Get(ctx, keyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return wizard.State{}, ErrSessionNotFound
		}
		return wizard.State{}, fmt.Errorf("load snapshot: %w", err)
	}

	var st wizard.State
	if err := json.Unmarshal(data, &st); err != nil {
		return wizard.State{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return st, nil
}

// Delete удаляет снимок.
func (p *RedisPersister) Delete(ctx context.Context, id string) error {
	if err := p.client.Del(ctx, keyPrefix+id).Err(); err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}
