// Package redisstore implements the chat.Cache contract on Redis.
//
// Key layout:
//
//	chat:sessions:meta              session metadata list (TTL ~300s)
//	chat:msgs:<chat_id>:<page>:<size>  one message page (TTL ~60s)
//
// Entries are keyed by the full query tuple so distinct pages and sizes
// occupy independent slots.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hqkang/chatvault/internal/chat"
)

const sessionsMetaKey = "chat:sessions:meta"

func pageKey(chatID string, page, size int) string {
	return fmt.Sprintf("chat:msgs:%s:%d:%d", chatID, page, size)
}

type Store struct {
	rdb         *redis.Client
	sessionsTTL time.Duration
	messagesTTL time.Duration
}

func New(addr, password string, db int, sessionsTTL, messagesTTL time.Duration) *Store {
	return &Store{
		rdb: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		sessionsTTL: sessionsTTL,
		messagesTTL: messagesTTL,
	}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

func (s *Store) GetSessions(ctx context.Context) ([]chat.Session, bool, error) {
	raw, err := s.rdb.Get(ctx, sessionsMetaKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var sessions []chat.Session
	if err := json.Unmarshal(raw, &sessions); err != nil {
		return nil, false, err
	}
	return sessions, true, nil
}

func (s *Store) SetSessions(ctx context.Context, sessions []chat.Session) error {
	raw, err := json.Marshal(sessions)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, sessionsMetaKey, raw, s.sessionsTTL).Err()
}

func (s *Store) GetPage(ctx context.Context, chatID string, page, size int) ([]chat.Message, bool, error) {
	raw, err := s.rdb.Get(ctx, pageKey(chatID, page, size)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var msgs []chat.Message
	if err := json.Unmarshal(raw, &msgs); err != nil {
		return nil, false, err
	}
	return msgs, true, nil
}

func (s *Store) SetPage(ctx context.Context, chatID string, page, size int, msgs []chat.Message) error {
	raw, err := json.Marshal(msgs)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, pageKey(chatID, page, size), raw, s.messagesTTL).Err()
}

// InvalidateChat drops every cached page of the chat plus the sessions
// metadata entry (aggregate counts changed). Pages are found with SCAN over
// the chat's key prefix so unrelated chats keep their entries.
func (s *Store) InvalidateChat(ctx context.Context, chatID string) error {
	iter := s.rdb.Scan(ctx, 0, fmt.Sprintf("chat:msgs:%s:*", chatID), 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	keys = append(keys, sessionsMetaKey)
	return s.rdb.Del(ctx, keys...).Err()
}
