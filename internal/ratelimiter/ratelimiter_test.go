package ratelimiter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllow_BoundaryAtMaxRequests(t *testing.T) {
	l := New()
	defer l.Close()

	rule := Rule{ID: "r1", MaxRequests: 5, Window: time.Minute}

	for i := 0; i < 5; i++ {
		assert.True(t, l.Allow(rule, "1.2.3.4"), "request %d should be allowed", i+1)
	}
	assert.False(t, l.Allow(rule, "1.2.3.4"), "6th request in-window must be rejected")
}

func TestAllow_DistinctDimensionKeysAreIndependent(t *testing.T) {
	l := New()
	defer l.Close()

	rule := Rule{ID: "r1", MaxRequests: 1, Window: time.Minute}

	assert.True(t, l.Allow(rule, "alice@example.com"))
	assert.False(t, l.Allow(rule, "alice@example.com"))
	assert.True(t, l.Allow(rule, "bob@example.com"))
}

func TestAllow_WindowExpiryAllowsAgain(t *testing.T) {
	l := New()
	defer l.Close()

	rule := Rule{ID: "r1", MaxRequests: 1, Window: 20 * time.Millisecond}

	assert.True(t, l.Allow(rule, "k"))
	assert.False(t, l.Allow(rule, "k"))

	time.Sleep(30 * time.Millisecond)
	assert.True(t, l.Allow(rule, "k"), "request after window expiry should be allowed again")
}

func TestAllow_DistinctRulesAreIndependent(t *testing.T) {
	l := New()
	defer l.Close()

	ruleA := Rule{ID: "register-ip", MaxRequests: 1, Window: time.Minute}
	ruleB := Rule{ID: "login-ip", MaxRequests: 1, Window: time.Minute}

	assert.True(t, l.Allow(ruleA, "1.2.3.4"))
	assert.True(t, l.Allow(ruleB, "1.2.3.4"), "a different rule ID must not share state")
}
