// Package redis provides Redis backed session storage and login link
// replay protection.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

var _ fiber.Storage = (*Storage)(nil)

const defaultOpTimeout = 5 * time.Second

// Storage implements fiber.Storage on Redis so sessions survive restarts
// and are shared between instances.
type Storage struct {
	client redis.UniversalClient
	prefix string
}

// NewStorage creates a Redis session storage using the "session:" prefix.
func NewStorage(client redis.UniversalClient) *Storage {
	return NewStorageWithPrefix(client, "session:")
}

// NewStorageWithPrefix creates a Redis session storage with a custom key prefix.
func NewStorageWithPrefix(client redis.UniversalClient, prefix string) *Storage {
	return &Storage{
		client: client,
		prefix: prefix,
	}
}

// Get returns nil, nil for missing keys as fiber.Storage requires.
func (s *Storage) Get(key string) ([]byte, error) {
	if key == "" {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultOpTimeout)
	defer cancel()

	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return data, nil
}

// Set stores val. A zero exp keeps the key without expiry.
func (s *Storage) Set(key string, val []byte, exp time.Duration) error {
	if key == "" || len(val) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultOpTimeout)
	defer cancel()

	return s.client.Set(ctx, s.prefix+key, val, exp).Err()
}

func (s *Storage) Delete(key string) error {
	if key == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultOpTimeout)
	defer cancel()

	return s.client.Del(ctx, s.prefix+key).Err()
}

// Reset deletes every key under the prefix.
func (s *Storage) Reset() error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultOpTimeout)
	defer cancel()

	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("redis del: %w", err)
		}
	}
	return iter.Err()
}

// Close closes the underlying client.
func (s *Storage) Close() error {
	return s.client.Close()
}
