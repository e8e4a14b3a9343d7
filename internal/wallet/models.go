package wallet

import (
	"time"

	"github.com/shopspring/decimal"
)

// Currency is fixed platform-wide; amounts are stored as numeric(20,2).
const Currency = "GHS"

type Wallet struct {
	WalletID       string          `gorm:"column:wallet_id;primaryKey;type:uuid;default:uuid_generate_v4()"`
	UserID         string          `gorm:"column:user_id;type:uuid;not null;uniqueIndex"`
	Balance        decimal.Decimal `gorm:"column:balance;type:numeric(20,2);not null;default:0"`
	TotalEarned    decimal.Decimal `gorm:"column:total_earned;type:numeric(20,2);not null;default:0"`
	TotalLost      decimal.Decimal `gorm:"column:total_lost;type:numeric(20,2);not null;default:0"`
	TotalStaked    decimal.Decimal `gorm:"column:total_staked;type:numeric(20,2);not null;default:0"`
	CompletionRate decimal.Decimal `gorm:"column:completion_rate;type:numeric(5,2);not null;default:0"`
	CurrentStreak  int             `gorm:"column:current_streak;not null;default:0"`
	LongestStreak  int             `gorm:"column:longest_streak;not null;default:0"`
	Rank           string          `gorm:"column:rank;type:varchar(20);not null;default:'BRONZE'"`
	Version        int             `gorm:"column:version;not null;default:1"`
	CreatedAt      time.Time       `gorm:"column:created_at;not null;default:now()"`
	UpdatedAt      time.Time       `gorm:"column:updated_at;not null;default:now()"`
}

// Transaction is the append-only ledger. Amount is always positive; the
// economic sign is derived from the type (see Effect).
type Transaction struct {
	TransactionID string          `gorm:"column:transaction_id;primaryKey;type:uuid;default:uuid_generate_v4()"`
	WalletID      string          `gorm:"column:wallet_id;type:uuid;not null;index"`
	UserID        string          `gorm:"column:user_id;type:uuid;not null;index"`
	Type          string          `gorm:"column:type;type:varchar(30);not null"`
	Amount        decimal.Decimal `gorm:"column:amount;type:numeric(20,2);not null"`
	BalanceBefore decimal.Decimal `gorm:"column:balance_before;type:numeric(20,2);not null"`
	BalanceAfter  decimal.Decimal `gorm:"column:balance_after;type:numeric(20,2);not null"`
	Description   string          `gorm:"column:description;type:varchar(255);not null"`
	ReferenceID   *string         `gorm:"column:reference_id;type:uuid"`
	CreatedAt     time.Time       `gorm:"column:created_at;not null;default:now()"`
}

const (
	TxDeposit            = "DEPOSIT"
	TxWithdrawal         = "WITHDRAWAL"
	TxStakeCreated       = "STAKE_CREATED"
	TxStakeParticipation = "STAKE_PARTICIPATION"
	TxStakeReward        = "STAKE_REWARD"
	TxStakePenalty       = "STAKE_PENALTY"
	TxStakeRefund        = "STAKE_REFUND"
	TxStakeExtension     = "STAKE_EXTENSION"
	TxAppealRefund       = "APPEAL_REFUND"
)

const (
	RankBronze   = "BRONZE"
	RankSilver   = "SILVER"
	RankGold     = "GOLD"
	RankPlatinum = "PLATINUM"
)

// IsCredit reports whether a transaction type increases the balance.
func IsCredit(txType string) bool {
	switch txType {
	case TxDeposit, TxStakeReward, TxStakeRefund, TxAppealRefund:
		return true
	}
	return false
}

// Effect returns the signed balance effect of a ledger row. The sum of
// effects over a wallet's transactions always equals its balance.
func Effect(t *Transaction) decimal.Decimal {
	if IsCredit(t.Type) {
		return t.Amount
	}
	return t.Amount.Neg()
}

// Entry describes one balance mutation to be applied together with its
// ledger row. Counter deltas are optional lifetime-stat adjustments that
// ride in the same update.
type Entry struct {
	Type        string
	Amount      decimal.Decimal
	Description string
	ReferenceID string

	EarnedDelta decimal.Decimal
	LostDelta   decimal.Decimal
	StakedDelta decimal.Decimal
}

// RankFor maps lifetime earnings to a rank tier.
func RankFor(totalEarned decimal.Decimal) string {
	switch {
	case totalEarned.GreaterThanOrEqual(decimal.NewFromInt(2000)):
		return RankPlatinum
	case totalEarned.GreaterThanOrEqual(decimal.NewFromInt(500)):
		return RankGold
	case totalEarned.GreaterThanOrEqual(decimal.NewFromInt(100)):
		return RankSilver
	}
	return RankBronze
}
