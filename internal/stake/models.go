package stake

import (
	"time"

	"github.com/shopspring/decimal"
)

type Stake struct {
	StakeID        string          `gorm:"column:stake_id;primaryKey;type:uuid;default:uuid_generate_v4()"`
	UserID         string          `gorm:"column:user_id;type:uuid;not null;index"`
	StakeType      string          `gorm:"column:stake_type;type:varchar(20);not null"`
	Status         string          `gorm:"column:status;type:varchar(20);not null;default:'ACTIVE'"`
	Goal           string          `gorm:"column:goal;type:varchar(255);not null"`
	UserStake      decimal.Decimal `gorm:"column:user_stake;type:numeric(20,2);not null"`
	FriendStakes   decimal.Decimal `gorm:"column:friend_stakes;type:numeric(20,2);not null;default:0"`
	TotalAmount    decimal.Decimal `gorm:"column:total_amount;type:numeric(20,2);not null"`
	Deadline       time.Time       `gorm:"column:deadline;not null"`
	CompletedAt    *time.Time      `gorm:"column:completed_at"`
	GraceEndsAt    *time.Time      `gorm:"column:grace_ends_at"`
	ExtensionCount int             `gorm:"column:extension_count;not null;default:0"`
	ExtensionFee   decimal.Decimal `gorm:"column:extension_fee;type:numeric(20,2);not null;default:0"`
	IsExtended     bool            `gorm:"column:is_extended;not null;default:false"`
	Version        int             `gorm:"column:version;not null;default:1"`
	CreatedAt      time.Time       `gorm:"column:created_at;not null;default:now()"`
	UpdatedAt      time.Time       `gorm:"column:updated_at;not null;default:now()"`
}

type Participant struct {
	ParticipantRowID string          `gorm:"column:participant_row_id;primaryKey;type:uuid;default:uuid_generate_v4()"`
	StakeID          string          `gorm:"column:stake_id;type:uuid;not null;index:idx_stake_participant,unique"`
	ParticipantID    string          `gorm:"column:participant_id;type:uuid;not null;index:idx_stake_participant,unique"`
	Amount           decimal.Decimal `gorm:"column:amount;type:numeric(20,2);not null"`
	IsSupporter      bool            `gorm:"column:is_supporter;not null;default:true"`
	JoinedAt         time.Time       `gorm:"column:joined_at;not null;default:now()"`
}

// Invitation carries the security code a supporter must present to join a
// social stake. One live invitation per stake.
type Invitation struct {
	InvitationID string    `gorm:"column:invitation_id;primaryKey;type:uuid;default:uuid_generate_v4()"`
	StakeID      string    `gorm:"column:stake_id;type:uuid;not null;index"`
	SecurityCode string    `gorm:"column:security_code;type:varchar(64);not null"`
	Status       string    `gorm:"column:status;type:varchar(20);not null;default:'PENDING'"`
	ExpiresAt    time.Time `gorm:"column:expires_at;not null"`
	CreatedAt    time.Time `gorm:"column:created_at;not null;default:now()"`
}

// Reward is an immutable payout record attached to a completed stake.
type Reward struct {
	RewardID    string          `gorm:"column:reward_id;primaryKey;type:uuid;default:uuid_generate_v4()"`
	StakeID     string          `gorm:"column:stake_id;type:uuid;not null;index"`
	RecipientID string          `gorm:"column:recipient_id;type:uuid;not null"`
	Amount      decimal.Decimal `gorm:"column:amount;type:numeric(20,2);not null"`
	Reason      string          `gorm:"column:reason;type:varchar(50);not null"`
	CreatedAt   time.Time       `gorm:"column:created_at;not null;default:now()"`
}

// Penalty records the forfeiture on a failed stake. Removed only when an
// appeal reverses it.
type Penalty struct {
	PenaltyID string          `gorm:"column:penalty_id;primaryKey;type:uuid;default:uuid_generate_v4()"`
	StakeID   string          `gorm:"column:stake_id;type:uuid;not null;index"`
	UserID    string          `gorm:"column:user_id;type:uuid;not null"`
	Amount    decimal.Decimal `gorm:"column:amount;type:numeric(20,2);not null"`
	Reason    string          `gorm:"column:reason;type:varchar(100);not null"`
	CreatedAt time.Time       `gorm:"column:created_at;not null;default:now()"`
}

const (
	TypeSelfStake      = "SELF_STAKE"
	TypeSocialStake    = "SOCIAL_STAKE"
	TypeChallengeStake = "CHALLENGE_STAKE"
	TypeTeamStake      = "TEAM_STAKE"
	TypeCharityStake   = "CHARITY_STAKE"
)

const (
	StatusActive      = "ACTIVE"
	StatusGracePeriod = "GRACE_PERIOD"
	StatusCompleted   = "COMPLETED"
	StatusFailed      = "FAILED"
	StatusDisputed    = "DISPUTED"
	StatusCancelled   = "CANCELLED"
)

const (
	InvitationPending  = "PENDING"
	InvitationAccepted = "ACCEPTED"
	InvitationExpired  = "EXPIRED"
)

const (
	RewardReasonCompletion     = "COMPLETION"
	RewardReasonSupporterShare = "SUPPORTER_SHARE"
)

// ValidType reports whether t is a known stake type.
func ValidType(t string) bool {
	switch t {
	case TypeSelfStake, TypeSocialStake, TypeChallengeStake, TypeTeamStake, TypeCharityStake:
		return true
	}
	return false
}
