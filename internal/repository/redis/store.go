// Package redis stores users as hashes with one sorted set per timeslot
// holding the eligible pool. Every multi-key write is a Lua script so it
// applies atomically.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"meal-match-backend/internal/config"
	"meal-match-backend/internal/models"

	redislib "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// KEYS: user hash, then every timeslot set.
// ARGV: id, eligible, slots, eligible_since ms, created_at.
var createScript = redislib.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1], 'id', ARGV[1], 'eligible', ARGV[2], 'slots', ARGV[3], 'since', ARGV[4], 'created_at', ARGV[5])
if ARGV[2] == '1' then
	for i = 2, #KEYS do
		redis.call('ZADD', KEYS[i], ARGV[4], ARGV[1])
	end
end
return 1
`)

// KEYS: user hash, then the set of every preferred timeslot.
// ARGV: id, eligible, now ms.
var setEligibleScript = redislib.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
if ARGV[2] == '1' then
	if redis.call('HGET', KEYS[1], 'eligible') ~= '1' then
		redis.call('HSET', KEYS[1], 'since', ARGV[3])
	end
	local since = redis.call('HGET', KEYS[1], 'since')
	for i = 2, #KEYS do
		redis.call('ZADD', KEYS[i], since, ARGV[1])
	end
else
	for i = 2, #KEYS do
		redis.call('ZREM', KEYS[i], ARGV[1])
	end
end
redis.call('HSET', KEYS[1], 'eligible', ARGV[2])
return 1
`)

// KEYS: user hash A, user hash B, session hash, then every timeslot set.
// ARGV: id A, id B, session id, created_at.
var commitPairScript = redislib.NewScript(`
if redis.call('HGET', KEYS[1], 'eligible') ~= '1' or redis.call('HGET', KEYS[2], 'eligible') ~= '1' then
	return 0
end
redis.call('HSET', KEYS[1], 'eligible', '0')
redis.call('HSET', KEYS[2], 'eligible', '0')
for i = 4, #KEYS do
	redis.call('ZREM', KEYS[i], ARGV[1], ARGV[2])
end
redis.call('HSET', KEYS[3], 'id', ARGV[3], 'participants', ARGV[1] .. ',' .. ARGV[2], 'created_at', ARGV[4])
return 1
`)

// Store is the Redis backend
type Store struct {
	client *redislib.Client
	prefix string
	now    func() time.Time
}

// NewClient creates a Redis client and performs a health check
func NewClient(ctx context.Context, cfg config.RedisConfig) (*redislib.Client, error) {
	client := redislib.NewClient(&redislib.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	log.Info().Str("addr", cfg.Addr).Int("db", cfg.DB).Msg("Redis connection established")
	return client, nil
}

// NewStore creates a store whose keys all start with prefix. The prefix is
// wrapped in a hash tag unless it already carries one, so every key lands in
// one cluster slot and the scripts never touch keys across slots.
func NewStore(client *redislib.Client, prefix string) *Store {
	return &Store{
		client: client,
		prefix: hashTag(prefix),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Create creates a new user
func (s *Store) Create(ctx context.Context, user *models.User) error {
	eligible := "0"
	if user.Eligible {
		eligible = "1"
	}

	keys := append([]string{s.userKey(user.ID)}, s.slotKeys(user.PreferredTimeslots)...)
	created, err := createScript.Run(ctx, s.client, keys,
		user.ID,
		eligible,
		joinSlots(user.PreferredTimeslots),
		millis(user.EligibleSince),
		user.CreatedAt.UTC().Format(time.RFC3339Nano),
	).Int()
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	if created == 0 {
		return models.ErrUserExists
	}
	return nil
}

// GetByID retrieves a user by ID
func (s *Store) GetByID(ctx context.Context, id string) (*models.User, error) {
	fields, err := s.client.HGetAll(ctx, s.userKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if len(fields) == 0 {
		return nil, models.ErrUserNotFound
	}
	return parseUser(fields)
}

// SetEligible sets the eligibility flag and keeps the timeslot sets in step.
// since is only restamped when the user was ineligible.
func (s *Store) SetEligible(ctx context.Context, id string, eligible bool) (*models.User, error) {
	user, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	flag := "0"
	if eligible {
		flag = "1"
	}
	keys := append([]string{s.userKey(id)}, s.slotKeys(user.PreferredTimeslots)...)
	updated, err := setEligibleScript.Run(ctx, s.client, keys, id, flag, s.now().UnixMilli()).Int()
	if err != nil {
		return nil, fmt.Errorf("failed to set eligibility: %w", err)
	}
	if updated == 0 {
		return nil, models.ErrUserNotFound
	}
	return s.GetByID(ctx, id)
}

// EligibleForTimeslot reads the timeslot's sorted set. Members with equal
// scores come back in id order.
func (s *Store) EligibleForTimeslot(ctx context.Context, slot models.Timeslot) ([]string, error) {
	ids, err := s.client.ZRange(ctx, s.slotKey(slot), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read eligible users for %s: %w", slot, err)
	}
	return ids, nil
}

// CommitPair claims both participants, drops them from every timeslot set
// and writes the session in one script
func (s *Store) CommitPair(ctx context.Context, session *models.Session) error {
	a, b := session.Participants[0], session.Participants[1]
	keys := append([]string{s.userKey(a), s.userKey(b), s.sessionKey(session.ID)}, s.slotKeys(models.Timeslots)...)

	committed, err := commitPairScript.Run(ctx, s.client, keys,
		a, b, session.ID, session.CreatedAt.UTC().Format(time.RFC3339Nano),
	).Int()
	if err != nil {
		return fmt.Errorf("failed to commit session: %w", err)
	}
	if committed == 0 {
		return models.ErrClaimConflict
	}
	return nil
}

// Close closes the client
func (s *Store) Close() error {
	return s.client.Close()
}

func hashTag(prefix string) string {
	if strings.Contains(prefix, "{") {
		return prefix
	}
	return "{" + prefix + "}"
}

func (s *Store) userKey(id string) string {
	return fmt.Sprintf("%suser:%s", s.prefix, id)
}

func (s *Store) sessionKey(id string) string {
	return fmt.Sprintf("%ssession:%s", s.prefix, id)
}

func (s *Store) slotKey(slot models.Timeslot) string {
	return fmt.Sprintf("%seligible:%s", s.prefix, slot)
}

func (s *Store) slotKeys(slots []models.Timeslot) []string {
	keys := make([]string, len(slots))
	for i, slot := range slots {
		keys[i] = s.slotKey(slot)
	}
	return keys
}

func joinSlots(slots []models.Timeslot) string {
	parts := make([]string, len(slots))
	for i, slot := range slots {
		parts[i] = string(slot)
	}
	return strings.Join(parts, ",")
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func parseUser(fields map[string]string) (*models.User, error) {
	user := &models.User{
		ID:       fields["id"],
		Eligible: fields["eligible"] == "1",
	}
	if user.ID == "" {
		return nil, errors.New("user hash has no id")
	}

	if slots := fields["slots"]; slots != "" {
		for _, slot := range strings.Split(slots, ",") {
			user.PreferredTimeslots = append(user.PreferredTimeslots, models.Timeslot(slot))
		}
	}

	if raw := fields["since"]; raw != "" && raw != "0" {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse eligible since: %w", err)
		}
		user.EligibleSince = time.UnixMilli(ms).UTC()
	}

	if raw := fields["created_at"]; raw != "" {
		createdAt, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}
		user.CreatedAt = createdAt
	}
	return user, nil
}
