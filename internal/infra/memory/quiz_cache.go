package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"classroom-service/internal/domain"
)

// QuizContentLoader fetches quiz content from a backing store.
type QuizContentLoader interface {
	LoadQuizContent(ctx context.Context, quizID string) (domain.Quiz, []domain.QuizQuestion, error)
}

// QuizCache caches quiz content with TTL to avoid re-reading the question
// set (and its answer keys) on every submission.
type QuizCache struct {
	loader QuizContentLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	mu    sync.RWMutex
	cache map[string]cachedContent
}

type cachedContent struct {
	quiz      domain.Quiz
	questions []domain.QuizQuestion
	expiresAt time.Time
}

func NewQuizCache(loader QuizContentLoader, ttl time.Duration) *QuizCache {
	return &QuizCache{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		cache:  make(map[string]cachedContent),
	}
}

func (c *QuizCache) GetQuizContent(ctx context.Context, quizID string) (domain.Quiz, []domain.QuizQuestion, error) {
	now := c.clock()

	c.mu.RLock()
	if entry, ok := c.cache[quizID]; ok && entry.expiresAt.After(now) {
		c.mu.RUnlock()
		return entry.quiz, entry.questions, nil
	}
	c.mu.RUnlock()

	result, err, _ := c.sf.Do(quizID, func() (interface{}, error) {
		now := c.clock()
		c.mu.RLock()
		if entry, ok := c.cache[quizID]; ok && entry.expiresAt.After(now) {
			c.mu.RUnlock()
			return entry, nil
		}
		c.mu.RUnlock()

		quiz, questions, err := c.loader.LoadQuizContent(ctx, quizID)
		if err != nil {
			return cachedContent{}, err
		}

		entry := cachedContent{
			quiz:      quiz,
			questions: questions,
			expiresAt: now.Add(c.ttlWithJitter()),
		}
		c.mu.Lock()
		c.cache[quizID] = entry
		c.mu.Unlock()
		return entry, nil
	})
	if err != nil {
		return domain.Quiz{}, nil, err
	}
	entry := result.(cachedContent)
	return entry.quiz, entry.questions, nil
}

// Invalidate drops a cached quiz, e.g. after its question set changed.
func (c *QuizCache) Invalidate(quizID string) {
	c.mu.Lock()
	delete(c.cache, quizID)
	c.mu.Unlock()
}

func (c *QuizCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(rand.Int63n(jitterMax+1))
}
