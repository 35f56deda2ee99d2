package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"classroom-service/internal/domain"
)

// QuizContentLoader fetches quiz content from the backing record store.
type QuizContentLoader interface {
	LoadQuizContent(ctx context.Context, quizID string) (domain.Quiz, []domain.QuizQuestion, error)
}

// QuizCache keeps quiz content (including answer keys and point values) in
// Redis so grading a submission does not re-read the question set from
// Postgres. One JSON document per quiz under quiz:{quizID}:content, TTL
// with jitter, singleflight on miss.
type QuizCache struct {
	client *redis.Client
	loader QuizContentLoader
	ttl    time.Duration
	sf     singleflight.Group
}

type cachedContent struct {
	Quiz      domain.Quiz           `json:"quiz"`
	Questions []domain.QuizQuestion `json:"questions"`
}

func NewQuizCache(client *redis.Client, loader QuizContentLoader, ttl time.Duration) *QuizCache {
	return &QuizCache{
		client: client,
		loader: loader,
		ttl:    ttl,
	}
}

func (c *QuizCache) GetQuizContent(ctx context.Context, quizID string) (domain.Quiz, []domain.QuizQuestion, error) {
	key := c.contentKey(quizID)

	if content, ok := c.fromCache(ctx, key); ok {
		return content.Quiz, content.Questions, nil
	}

	result, err, _ := c.sf.Do(quizID, func() (interface{}, error) {
		// Re-check in case another goroutine filled the cache.
		if content, ok := c.fromCache(ctx, key); ok {
			return content, nil
		}

		quiz, questions, err := c.loader.LoadQuizContent(ctx, quizID)
		if err != nil {
			return cachedContent{}, err
		}
		content := cachedContent{Quiz: quiz, Questions: questions}

		raw, err := json.Marshal(content)
		if err != nil {
			return cachedContent{}, fmt.Errorf("marshal quiz content: %w", err)
		}
		// Cache write is best-effort; a failed SET only costs a reload.
		_ = c.client.Set(ctx, key, raw, c.ttlWithJitter()).Err()
		return content, nil
	})
	if err != nil {
		return domain.Quiz{}, nil, err
	}
	content := result.(cachedContent)
	return content.Quiz, content.Questions, nil
}

// Invalidate drops a cached quiz, e.g. after its question set changed.
func (c *QuizCache) Invalidate(ctx context.Context, quizID string) error {
	return c.client.Del(ctx, c.contentKey(quizID)).Err()
}

func (c *QuizCache) fromCache(ctx context.Context, key string) (cachedContent, bool) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		// redis.Nil and transport errors both count as a miss; the record
		// store stays the source of truth.
		return cachedContent{}, false
	}
	var content cachedContent
	if err := json.Unmarshal(raw, &content); err != nil {
		return cachedContent{}, false
	}
	return content, true
}

func (c *QuizCache) contentKey(quizID string) string {
	return "quiz:" + quizID + ":content"
}

func (c *QuizCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(rand.Int63n(jitterMax+1))
}
