// Package lockout tracks failed password-grant attempts in Redis and denies
// further attempts for usernames that exceed the configured threshold within
// a sliding window.
//
// The lockout check is advisory: on Redis failure it reports "not locked" and
// returns the error for logging, because the credential check itself still
// decides the grant. A locked-out username receives the same generic
// invalid_grant denial as a wrong password, so the lockout state is not an
// oracle for account existence.
package lockout

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
)

type Config struct {
	Address   string        `json:"address"`
	Password  string        `json:"password"`
	DB        int           `json:"db"`
	Threshold int           `json:"threshold"`
	Window    time.Duration `json:"window"`
}

// Tracker counts failed attempts per username in a Redis sorted set.
type Tracker struct {
	rdb       *redis.Client
	threshold int
	window    time.Duration
	seq       uint64
}

// NewTracker connects to Redis and returns a Tracker.
func NewTracker(config *Config) (*Tracker, error) {
	if config == nil {
		return nil, fmt.Errorf("lockout config is required")
	}
	if config.Address == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	if config.Threshold < 1 {
		config.Threshold = 10
	}
	if config.Window <= 0 {
		config.Window = 5 * time.Minute
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     config.Address,
		Password: config.Password,
		DB:       config.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Tracker{
		rdb:       rdb,
		threshold: config.Threshold,
		window:    config.Window,
	}, nil
}

func (t *Tracker) Close() error {
	return t.rdb.Close()
}

func (t *Tracker) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return t.rdb.Ping(ctx).Err()
}

func lockoutKey(username string) string {
	return fmt.Sprintf("lockout:%s", username)
}

// IsLockedOut reports whether the username has reached the failure threshold
// within the window. A Redis failure reports false along with the error so
// the caller can log it; the credential check still decides the grant.
func (t *Tracker) IsLockedOut(ctx context.Context, username string) (bool, error) {
	key := lockoutKey(username)
	now := time.Now().UnixNano()
	windowStart := now - t.window.Nanoseconds()

	pipe := t.rdb.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", windowStart))
	countCmd := pipe.ZCard(ctx, key)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("failed to check lockout state: %w", err)
	}

	return int(countCmd.Val()) >= t.threshold, nil
}

// RecordFailure registers a failed attempt for the username.
func (t *Tracker) RecordFailure(ctx context.Context, username string) error {
	key := lockoutKey(username)
	now := time.Now().UnixNano()
	// Sequence suffix keeps members unique when failures land on the same tick
	member := fmt.Sprintf("%d-%d", now, atomic.AddUint64(&t.seq, 1))

	pipe := t.rdb.TxPipeline()
	pipe.ZAdd(ctx, key, &redis.Z{Score: float64(now), Member: member})
	// Keep entries a bit longer than the window so expiry never races the count
	pipe.Expire(ctx, key, t.window*2)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record login failure: %w", err)
	}

	return nil
}

// Reset clears the failure count after a successful grant.
func (t *Tracker) Reset(ctx context.Context, username string) error {
	if err := t.rdb.Del(ctx, lockoutKey(username)).Err(); err != nil {
		return fmt.Errorf("failed to reset lockout state: %w", err)
	}
	return nil
}
