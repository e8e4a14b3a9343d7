package extension

import (
	"time"

	"github.com/shopspring/decimal"
)

// Extension is the immutable record of one paid deadline push.
type Extension struct {
	ExtensionID  string          `gorm:"column:extension_id;primaryKey;type:uuid;default:uuid_generate_v4()"`
	StakeID      string          `gorm:"column:stake_id;type:uuid;not null;index"`
	UserID       string          `gorm:"column:user_id;type:uuid;not null"`
	OldDeadline  time.Time       `gorm:"column:old_deadline;not null"`
	NewDeadline  time.Time       `gorm:"column:new_deadline;not null"`
	ExtensionFee decimal.Decimal `gorm:"column:extension_fee;type:numeric(20,2);not null"`
	Reason       string          `gorm:"column:reason;type:varchar(255)"`
	CreatedAt    time.Time       `gorm:"column:created_at;not null;default:now()"`
}

// Config is the fee schedule and the caps. Defaults match the published
// pricing: 10, 15, 22.50 GHS for the first three extensions.
type Config struct {
	BaseFee          decimal.Decimal
	FeeMultiplier    decimal.Decimal
	MaxExtensions    int
	MaxExtensionDays int
}

func DefaultConfig() Config {
	return Config{
		BaseFee:          decimal.NewFromInt(10),
		FeeMultiplier:    decimal.NewFromFloat(1.5),
		MaxExtensions:    3,
		MaxExtensionDays: 7,
	}
}

// Eligibility is the non-mutating quote returned before a user commits to
// paying for an extension.
type Eligibility struct {
	Eligible            bool            `json:"eligible"`
	Reasons             []string        `json:"reasons,omitempty"`
	NextFee             decimal.Decimal `json:"next_fee"`
	RemainingExtensions int             `json:"remaining_extensions"`
	LatestDeadline      time.Time       `json:"latest_deadline"`
}
