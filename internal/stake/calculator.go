package stake

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Pure reward/penalty math. Nothing in this file touches the store; every
// function is a deterministic mapping from its arguments, which is what the
// lifecycle tests lean on.

const MinProofLength = 10

var (
	baseBonusRate  = decimal.NewFromFloat(0.25)
	streakStepRate = decimal.NewFromFloat(0.05)
	streakCapRate  = decimal.NewFromFloat(0.50)

	supporterRewardRate = decimal.NewFromFloat(1.10)
	supporterPoolShare  = decimal.NewFromFloat(0.10)

	penaltyRates = map[string]decimal.Decimal{
		TypeSelfStake:      decimal.NewFromInt(1),
		TypeSocialStake:    decimal.NewFromInt(1),
		TypeChallengeStake: decimal.NewFromFloat(0.50),
		TypeTeamStake:      decimal.NewFromFloat(0.75),
		TypeCharityStake:   decimal.Zero,
	}

	achievementRates = map[string]decimal.Decimal{
		AchievementFirstStake:   decimal.NewFromFloat(0.20),
		AchievementLongStreak:   decimal.NewFromFloat(0.25),
		AchievementPerfectMonth: decimal.NewFromFloat(0.30),
	}
)

const (
	AchievementFirstStake   = "FIRST_STAKE"
	AchievementLongStreak   = "LONG_STREAK"
	AchievementPerfectMonth = "PERFECT_MONTH"
)

// Breakdown splits a payout into its returned base and earned bonus.
type Breakdown struct {
	Base  decimal.Decimal
	Bonus decimal.Decimal
	Total decimal.Decimal
}

// StreakBonus returns the extra bonus rate earned by a completion streak:
// nothing below 3, then 5% per completion beyond the second, capped at 50%.
func StreakBonus(streak int) decimal.Decimal {
	if streak < 3 {
		return decimal.Zero
	}
	bonus := decimal.NewFromInt(int64(streak - 2)).Mul(streakStepRate)
	if bonus.GreaterThan(streakCapRate) {
		return streakCapRate
	}
	return bonus
}

// SelfStakeReward returns the pledge plus a 25% bonus scaled up by the
// owner's current streak.
func SelfStakeReward(stakeAmount decimal.Decimal, streak int) Breakdown {
	bonusRate := baseBonusRate.Add(StreakBonus(streak))
	bonus := stakeAmount.Mul(bonusRate).Round(2)
	return Breakdown{
		Base:  stakeAmount,
		Bonus: bonus,
		Total: stakeAmount.Add(bonus),
	}
}

// SocialStakeReward is winner-takes-the-pool; the supporter share is carved
// out of the pool at distribution time, not here.
func SocialStakeReward(totalPool decimal.Decimal) Breakdown {
	return Breakdown{Base: totalPool, Bonus: decimal.Zero, Total: totalPool}
}

// FriendReward is the supporter's stake back plus 10%. Non-supporters
// (participants betting against) earn nothing on completion.
func FriendReward(friendStake decimal.Decimal, isSupporter bool) decimal.Decimal {
	if !isSupporter {
		return decimal.Zero
	}
	return friendStake.Mul(supporterRewardRate).Round(2)
}

// PenaltyAmount is the forfeited share of the pledge when a stake fails.
func PenaltyAmount(stakeAmount decimal.Decimal, stakeType string) decimal.Decimal {
	rate, ok := penaltyRates[stakeType]
	if !ok {
		rate = decimal.NewFromInt(1)
	}
	return stakeAmount.Mul(rate).Round(2)
}

// TimeBonus rewards early completion: 10% when at least half the remaining
// window was unused, 5% at a quarter. The denominator is the window between
// "now" at call time and the deadline, which is unstable across calls; a
// non-positive window yields no bonus rather than a blow-up.
func TimeBonus(stakeAmount decimal.Decimal, deadline, completedAt, now time.Time) decimal.Decimal {
	if completedAt.After(deadline) {
		return decimal.Zero
	}
	window := deadline.Sub(now)
	if window <= 0 {
		return decimal.Zero
	}
	unused := deadline.Sub(completedAt)
	ratio := float64(unused) / float64(window)
	switch {
	case ratio >= 0.5:
		return stakeAmount.Mul(decimal.NewFromFloat(0.10)).Round(2)
	case ratio >= 0.25:
		return stakeAmount.Mul(decimal.NewFromFloat(0.05)).Round(2)
	}
	return decimal.Zero
}

// AchievementBonus returns the fixed-rate bonus for a named achievement,
// zero for unknown achievements.
func AchievementBonus(stakeAmount decimal.Decimal, achievementType string) decimal.Decimal {
	rate, ok := achievementRates[achievementType]
	if !ok {
		return decimal.Zero
	}
	return stakeAmount.Mul(rate).Round(2)
}

// Completion rule violations. ValidateCompletion reports every rule the
// request breaks, not just the first.
const (
	ViolationInvalidState      = "INVALID_STATE"
	ViolationExpired           = "EXPIRED"
	ViolationInsufficientProof = "INSUFFICIENT_PROOF"
	ViolationAlreadyCompleted  = "ALREADY_COMPLETED"
)

type CompletionValidationError struct {
	Violations []string
}

func (e *CompletionValidationError) Error() string {
	return fmt.Sprintf("completion rejected: %s", strings.Join(e.Violations, ", "))
}

// Has reports whether a specific rule is among the violations.
func (e *CompletionValidationError) Has(violation string) bool {
	for _, v := range e.Violations {
		if v == violation {
			return true
		}
	}
	return false
}

// ValidateCompletion checks a completion request against the stake's state
// at the given instant. Returns nil when every rule passes.
func ValidateCompletion(stk *Stake, proof string, now time.Time) error {
	var violations []string
	if stk.Status != StatusActive {
		violations = append(violations, ViolationInvalidState)
	}
	if now.After(stk.Deadline) {
		violations = append(violations, ViolationExpired)
	}
	if len(strings.TrimSpace(proof)) < MinProofLength {
		violations = append(violations, ViolationInsufficientProof)
	}
	if stk.Status == StatusCompleted {
		violations = append(violations, ViolationAlreadyCompleted)
	}
	if len(violations) == 0 {
		return nil
	}
	return &CompletionValidationError{Violations: violations}
}
