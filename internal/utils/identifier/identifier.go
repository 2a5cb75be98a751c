// Package identifier generates the prefixed object identifiers used across
// the API: a type prefix, the creation time in millisecond epoch, and an
// 11-digit random suffix.
package identifier

import (
	"fmt"
	"strconv"
	"time"

	"github.com/quanpay/server/internal/utils/random"
)

// Object ID prefixes.
const (
	PrefixOrder  = "o_"
	PrefixCharge = "ch_"
	PrefixRefund = "re_"
	PrefixEvent  = "evt_"
	PrefixApp    = "app_"
	PrefixSubApp = "sub_app_"
)

const (
	suffixMin = 10_000_000_000  // 10^10, smallest 11-digit number
	suffixMax = 100_000_000_000 // 10^11
)

// New returns prefix + millisecond epoch + 11 random digits.
func New(prefix string) string {
	suffix, err := random.Int64InRange(suffixMin, suffixMax)
	if err != nil {
		// crypto/rand only fails when the platform randomness source is broken.
		panic(fmt.Sprintf("identifier: random source unavailable: %v", err))
	}
	return prefix + strconv.FormatInt(time.Now().UnixMilli(), 10) + strconv.FormatInt(suffix, 10)
}

// NewOrder returns a fresh order ID.
func NewOrder() string { return New(PrefixOrder) }

// NewCharge returns a fresh charge ID.
func NewCharge() string { return New(PrefixCharge) }

// NewRefund returns a fresh refund ID.
func NewRefund() string { return New(PrefixRefund) }

// NewEvent returns a fresh webhook event ID.
func NewEvent() string { return New(PrefixEvent) }

// NewApp returns a fresh app ID.
func NewApp() string { return New(PrefixApp) }

// NewSubApp returns a fresh sub-app ID.
func NewSubApp() string { return New(PrefixSubApp) }
