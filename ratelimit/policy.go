package ratelimit

import "time"

// Class names a group of operations that share a rate-limit policy
type Class string

const (
	ClassBalanceCheck Class = "balance_check"
	ClassPayment      Class = "payment"
	ClassEntryCheck   Class = "entry_check"
)

// Policy bounds requests per identifier within a window. Exceeding
// MaxRequests blocks the identifier for BlockDuration.
type Policy struct {
	Window        time.Duration
	MaxRequests   int
	BlockDuration time.Duration
}

// DefaultPolicies returns the policy table used by the server
func DefaultPolicies() map[Class]Policy {
	return map[Class]Policy{
		ClassBalanceCheck: {Window: time.Minute, MaxRequests: 10, BlockDuration: 5 * time.Minute},
		ClassPayment:      {Window: time.Minute, MaxRequests: 5, BlockDuration: 10 * time.Minute},
		ClassEntryCheck:   {Window: 30 * time.Second, MaxRequests: 20, BlockDuration: time.Minute},
	}
}

// Decision is the result of a Check
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
	Blocked    bool
	// Unbounded marks an allow that happened because the class has no
	// policy, as opposed to a policy that permitted the request.
	Unbounded bool
}
