package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"quickloan-api/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const (
	// How long the in-progress lock is held before the handler must finish
	provisionalLockTTL = 60 * time.Second
)

type idempEntry struct {
	InProgress bool      `json:"in_progress"`
	Code       int       `json:"code"`
	Body       []byte    `json:"body"`
	BodySHA256 string    `json:"body_sha256"`
	CreatedAt  time.Time `json:"created_at"`
}

// Idempotency dedupes mutating requests carrying an Idempotency-Key header.
// The first request takes a provisional lock; duplicates either replay the
// stored response (same body) or are rejected (different body, or still in
// progress). Requests without the header pass through untouched.
func Idempotency(rdb *redis.Client, ttl time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		switch c.Method() {
		case fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions:
			return c.Next()
		}

		key := strings.TrimSpace(c.Get("Idempotency-Key"))
		if key == "" {
			return c.Next()
		}

		userID, _ := c.Locals("userID").(uint)
		bhash := bodyHash(c.Body())
		storeKey := buildIdempKey(c.Method(), c.Path(), userID, key)

		ctx, cancel := context.WithTimeout(c.Context(), 2*time.Second)
		defer cancel()

		entry := idempEntry{
			InProgress: true,
			BodySHA256: bhash,
			CreatedAt:  time.Now().UTC(),
		}
		ok, err := provisionalSet(ctx, rdb, storeKey, entry)
		if err != nil {
			return response.Error(c, fiber.StatusServiceUnavailable, "Idempotency store unavailable")
		}
		if !ok {
			cur, errLoad := loadEntry(ctx, rdb, storeKey)
			if errLoad != nil {
				return response.Error(c, fiber.StatusServiceUnavailable, "Idempotency store unavailable")
			}
			if cur.BodySHA256 != "" && cur.BodySHA256 != bhash {
				return response.Conflict(c, "Idempotency-Key reused with a different body")
			}
			if !cur.InProgress && cur.Code != 0 && len(cur.Body) > 0 {
				c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
				return c.Status(cur.Code).Send(cur.Body)
			}
			return response.Conflict(c, "Request is already in progress")
		}

		if err := c.Next(); err != nil {
			// Release the lock so the client can retry after a handler error
			_ = rdb.Del(context.Background(), storeKey).Err()
			return err
		}

		final := idempEntry{
			InProgress: false,
			Code:       c.Response().StatusCode(),
			Body:       append([]byte(nil), c.Response().Body()...),
			BodySHA256: bhash,
			CreatedAt:  time.Now().UTC(),
		}
		_ = saveFinal(context.Background(), rdb, storeKey, final, ttl)
		return nil
	}
}

func bodyHash(b []byte) string {
	s := sha256.Sum256(b)
	return hex.EncodeToString(s[:])
}

func buildIdempKey(method, path string, userID uint, key string) string {
	return fmt.Sprintf("idemp:%s:%s:%d:%s", strings.ToLower(method), path, userID, key)
}

func provisionalSet(ctx context.Context, rdb *redis.Client, key string, entry idempEntry) (bool, error) {
	payload, _ := json.Marshal(entry)
	return rdb.SetNX(ctx, key, payload, provisionalLockTTL).Result()
}

func loadEntry(ctx context.Context, rdb *redis.Client, key string) (idempEntry, error) {
	var e idempEntry
	v, err := rdb.Get(ctx, key).Bytes()
	if err != nil {
		return e, err
	}
	err = json.Unmarshal(v, &e)
	return e, err
}

func saveFinal(ctx context.Context, rdb *redis.Client, key string, entry idempEntry, ttl time.Duration) error {
	payload, _ := json.Marshal(entry)
	return rdb.Set(ctx, key, payload, ttl).Err()
}
