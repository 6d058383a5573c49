package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/pagebound/readingroom/internal/domain"
)

const (
	memberKeyPrefix = "rr:presence:"
	roomKeyPrefix   = "rr:room:"
	activeKeyPrefix = "rr:active:"
	authorKeyPrefix = "rr:authorseen:"
	roomsKey        = "rr:rooms"

	// Author sightings outlive the membership so "recently here" badges
	// keep working long after the author left.
	authorSeenTTL = 7 * 24 * time.Hour
)

// RedisStore keeps the registry in Redis so several server nodes share
// one membership view. Member values carry a TTL slightly past the
// eviction grace as a backstop; the sweeper remains the source of
// member_removed events either way.
type RedisStore struct {
	client    *redis.Client
	memberTTL time.Duration

	Now func() time.Time
}

func NewRedisStore(client *redis.Client, memberTTL time.Duration) *RedisStore {
	return &RedisStore{client: client, memberTTL: memberTTL, Now: time.Now}
}

func memberKey(book domain.BookID, user domain.UserID) string {
	return fmt.Sprintf("%s%s:%s", memberKeyPrefix, book, user)
}

func roomKey(book domain.BookID) string   { return roomKeyPrefix + string(book) }
func activeKey(book domain.BookID) string { return activeKeyPrefix + string(book) }
func authorKey(book domain.BookID) string { return authorKeyPrefix + string(book) }

func (s *RedisStore) Join(ctx context.Context, book domain.BookID, user domain.User) (domain.Membership, bool, error) {
	now := s.Now()
	key := memberKey(book, user.ID)

	var m domain.Membership
	changed := false
	data, err := s.client.Get(ctx, key).Result()
	switch {
	case err == redis.Nil:
		m = domain.Membership{
			ID:        uuid.NewString(),
			UserID:    user.ID,
			BookID:    book,
			Name:      user.Name,
			AvatarURL: user.AvatarURL,
			IsAuthor:  user.IsAuthor,
		}
		changed = true
	case err != nil:
		return domain.Membership{}, false, fmt.Errorf("join get: %w", err)
	default:
		if err := json.Unmarshal([]byte(data), &m); err != nil {
			return domain.Membership{}, false, fmt.Errorf("join decode: %w", err)
		}
	}
	m.JoinedAt = now
	m.LastActiveAt = now

	raw, err := json.Marshal(m)
	if err != nil {
		return domain.Membership{}, false, err
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, key, raw, s.memberTTL)
	pipe.SAdd(ctx, roomKey(book), string(user.ID))
	pipe.SAdd(ctx, roomsKey, string(book))
	pipe.ZAdd(ctx, activeKey(book), redis.Z{Score: float64(now.Unix()), Member: string(user.ID)})
	if user.IsAuthor {
		snap, _ := json.Marshal(domain.AuthorPresenceSnapshot{
			IsCurrentlyPresent: true,
			AuthorID:           user.ID,
			AuthorName:         user.Name,
			LastSeenAt:         now,
		})
		pipe.Set(ctx, authorKey(book), snap, authorSeenTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return domain.Membership{}, false, fmt.Errorf("join write: %w", err)
	}
	return m, changed, nil
}

func (s *RedisStore) Leave(ctx context.Context, book domain.BookID, user domain.UserID) (domain.LeaveReceipt, *domain.Membership, error) {
	now := s.Now()
	receipt := domain.LeaveReceipt{LeftAt: now}

	data, err := s.client.Get(ctx, memberKey(book, user)).Result()
	if err == redis.Nil {
		return receipt, nil, nil
	}
	if err != nil {
		return receipt, nil, fmt.Errorf("leave get: %w", err)
	}
	var m domain.Membership
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return receipt, nil, fmt.Errorf("leave decode: %w", err)
	}

	if err := s.removeMember(ctx, book, user, &m, now); err != nil {
		return receipt, nil, err
	}
	return receipt, &m, nil
}

func (s *RedisStore) Heartbeat(ctx context.Context, book domain.BookID, user domain.UserID) (bool, error) {
	now := s.Now()
	key := memberKey(book, user)
	data, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("heartbeat get: %w", err)
	}
	var m domain.Membership
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return false, fmt.Errorf("heartbeat decode: %w", err)
	}
	m.LastActiveAt = now
	raw, _ := json.Marshal(m)

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, key, raw, s.memberTTL)
	pipe.ZAdd(ctx, activeKey(book), redis.Z{Score: float64(now.Unix()), Member: string(user)})
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("heartbeat write: %w", err)
	}
	return true, nil
}

func (s *RedisStore) Members(ctx context.Context, book domain.BookID) ([]domain.Membership, error) {
	ids, err := s.client.SMembers(ctx, roomKey(book)).Result()
	if err != nil {
		return nil, fmt.Errorf("members: %w", err)
	}
	if len(ids) == 0 {
		return []domain.Membership{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, memberKey(book, domain.UserID(id)))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("members batch: %w", err)
	}

	out := make([]domain.Membership, 0, len(ids))
	for i, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil {
			// Value TTL'd out while the index entry survived; the
			// sweeper will reconcile it.
			log.Debug().Str("module", "store.redis").Str("user", ids[i]).Msg("member index without value")
			continue
		}
		var m domain.Membership
		if json.Unmarshal([]byte(data), &m) == nil {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *RedisStore) EvictStale(ctx context.Context, cutoff time.Time) ([]domain.Membership, error) {
	now := s.Now()
	books, err := s.client.SMembers(ctx, roomsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("evict rooms: %w", err)
	}

	var evicted []domain.Membership
	for _, b := range books {
		book := domain.BookID(b)
		stale, err := s.client.ZRangeByScore(ctx, activeKey(book), &redis.ZRangeBy{
			Min: "-inf",
			Max: fmt.Sprintf("%d", cutoff.Unix()-1),
		}).Result()
		if err != nil {
			return evicted, fmt.Errorf("evict scan: %w", err)
		}
		for _, uid := range stale {
			user := domain.UserID(uid)
			m := domain.Membership{UserID: user, BookID: book}
			if data, err := s.client.Get(ctx, memberKey(book, user)).Result(); err == nil {
				_ = json.Unmarshal([]byte(data), &m)
			}
			if err := s.removeMember(ctx, book, user, &m, now); err != nil {
				return evicted, err
			}
			evicted = append(evicted, m)
		}
	}
	return evicted, nil
}

func (s *RedisStore) AuthorPresence(ctx context.Context, book domain.BookID) (*domain.AuthorPresenceSnapshot, error) {
	members, err := s.Members(ctx, book)
	if err != nil {
		return nil, err
	}
	for _, m := range members {
		if m.IsAuthor {
			return &domain.AuthorPresenceSnapshot{
				IsCurrentlyPresent: true,
				AuthorID:           m.UserID,
				AuthorName:         m.Name,
				LastSeenAt:         m.LastActiveAt,
			}, nil
		}
	}
	data, err := s.client.Get(ctx, authorKey(book)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("author presence: %w", err)
	}
	var snap domain.AuthorPresenceSnapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, fmt.Errorf("author decode: %w", err)
	}
	return &snap, nil
}

func (s *RedisStore) removeMember(ctx context.Context, book domain.BookID, user domain.UserID, m *domain.Membership, now time.Time) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, memberKey(book, user))
	pipe.SRem(ctx, roomKey(book), string(user))
	pipe.ZRem(ctx, activeKey(book), string(user))
	if m.IsAuthor {
		snap, _ := json.Marshal(domain.AuthorPresenceSnapshot{
			IsCurrentlyPresent: false,
			AuthorID:           m.UserID,
			AuthorName:         m.Name,
			LastSeenAt:         now,
		})
		pipe.Set(ctx, authorKey(book), snap, authorSeenTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("remove member: %w", err)
	}

	// Prune the room index when the last member is gone.
	if n, err := s.client.SCard(ctx, roomKey(book)).Result(); err == nil && n == 0 {
		s.client.SRem(ctx, roomsKey, string(book))
		s.client.Del(ctx, activeKey(book))
	}
	return nil
}
