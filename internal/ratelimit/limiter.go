// Package ratelimit implements the optional Rate-limit collaborator
// (§6): Check(user_id, estimated_cost) → (allowed, reason?). The core
// depends only on the RateLimiter interface; TokenBucketLimiter is the
// default adapter, a per-user token bucket on golang.org/x/time/rate.
package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter is the collaborator interface the Facade holds an
// optional reference to. estimatedCost is USD; a back-end that cannot
// report cost passes 0, which still consumes one request by count
// (never by dollar amount) — see §6 Open Question 3.
type RateLimiter interface {
	Check(userID int64, estimatedCost float64) (allowed bool, reason string)
}

// TokenBucketLimiter is a per-user token bucket: requestsPerMinute
// governs call frequency, and a separate per-user USD budget bounds
// spend within the same rolling minute.
type TokenBucketLimiter struct {
	requestsPerMinute float64
	burst             int
	costBudget        float64

	mu      sync.Mutex
	buckets map[int64]*rate.Limiter
	costCap map[int64]*rate.Limiter // refills costBudget/min, drained by estimatedCost in cents
}

// NewTokenBucketLimiter builds a limiter allowing requestsPerMinute
// requests per user (bucket capacity burst) and costBudgetPerMinute
// dollars of estimated cost per user per minute. costBudgetPerMinute
// <= 0 disables the cost dimension.
func NewTokenBucketLimiter(requestsPerMinute float64, burst int, costBudgetPerMinute float64) *TokenBucketLimiter {
	return &TokenBucketLimiter{
		requestsPerMinute: requestsPerMinute,
		burst:             burst,
		costBudget:        costBudgetPerMinute,
		buckets:           make(map[int64]*rate.Limiter),
		costCap:           make(map[int64]*rate.Limiter),
	}
}

// Check reports whether userID may proceed, consuming one request
// token and, if cost budgeting is enabled, estimatedCost of USD budget.
func (l *TokenBucketLimiter) Check(userID int64, estimatedCost float64) (bool, string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, ok := l.buckets[userID]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(l.requestsPerMinute/60.0), l.burst)
		l.buckets[userID] = limiter
	}
	if !limiter.Allow() {
		return false, fmt.Sprintf("request rate exceeded (%.0f/min)", l.requestsPerMinute)
	}

	if l.costBudget <= 0 {
		return true, ""
	}

	costLimiter, ok := l.costCap[userID]
	if !ok {
		costLimiter = rate.NewLimiter(rate.Limit(l.costBudget*100/60.0), int(l.costBudget*100))
		l.costCap[userID] = costLimiter
	}
	centsRequested := int(estimatedCost*100) + 1 // every call, even $0, spends at least one cent of budget
	if !costLimiter.AllowN(time.Now(), centsRequested) {
		return false, fmt.Sprintf("cost budget exceeded ($%.2f/min)", l.costBudget)
	}
	return true, ""
}
