package appeal

import "time"

// Appeal is mutable until resolved; APPROVED/REJECTED are terminal.
type Appeal struct {
	AppealID   string     `gorm:"column:appeal_id;primaryKey;type:uuid;default:uuid_generate_v4()"`
	StakeID    string     `gorm:"column:stake_id;type:uuid;not null;index"`
	UserID     string     `gorm:"column:user_id;type:uuid;not null;index"`
	Reason     string     `gorm:"column:reason;type:varchar(500);not null"`
	Evidence   string     `gorm:"column:evidence;type:text"`
	Status     string     `gorm:"column:status;type:varchar(20);not null;default:'PENDING'"`
	AdminNotes string     `gorm:"column:admin_notes;type:varchar(500)"`
	ReviewedAt *time.Time `gorm:"column:reviewed_at"`
	ReviewedBy *string    `gorm:"column:reviewed_by;type:uuid"`
	CreatedAt  time.Time  `gorm:"column:created_at;not null;default:now()"`
	UpdatedAt  time.Time  `gorm:"column:updated_at;not null;default:now()"`
}

const (
	StatusPending     = "PENDING"
	StatusUnderReview = "UNDER_REVIEW"
	StatusApproved    = "APPROVED"
	StatusRejected    = "REJECTED"
)

const (
	DecisionApproved = "APPROVED"
	DecisionRejected = "REJECTED"
)

// MinReasonLength mirrors the completion-proof rule: a bare "it's wrong"
// is not an appealable reason.
const MinReasonLength = 10
