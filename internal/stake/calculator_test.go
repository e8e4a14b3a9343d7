package stake

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestStreakBonus(t *testing.T) {
	cases := []struct {
		streak int
		want   string
	}{
		{0, "0"},
		{1, "0"},
		{2, "0"},
		{3, "0.05"},
		{5, "0.15"},
		{12, "0.5"},
		{50, "0.5"}, // capped
	}
	for _, tc := range cases {
		got := StreakBonus(tc.streak)
		assert.True(t, got.Equal(dec(tc.want)), "streak %d: expected %s, got %s", tc.streak, tc.want, got)
	}
}

func TestSelfStakeReward(t *testing.T) {
	// 100 at streak 5: bonus rate 0.25 + 0.15 = 0.40
	b := SelfStakeReward(decimal.NewFromInt(100), 5)
	assert.True(t, b.Base.Equal(decimal.NewFromInt(100)), "base")
	assert.True(t, b.Bonus.Equal(decimal.NewFromInt(40)), "bonus, got %s", b.Bonus)
	assert.True(t, b.Total.Equal(decimal.NewFromInt(140)), "total, got %s", b.Total)

	// No streak: flat 25%
	b = SelfStakeReward(decimal.NewFromInt(80), 0)
	assert.True(t, b.Total.Equal(decimal.NewFromInt(100)), "total, got %s", b.Total)
}

func TestSocialStakeReward(t *testing.T) {
	b := SocialStakeReward(decimal.NewFromInt(90))
	assert.True(t, b.Base.Equal(decimal.NewFromInt(90)))
	assert.True(t, b.Bonus.IsZero())
	assert.True(t, b.Total.Equal(decimal.NewFromInt(90)))
}

func TestFriendReward(t *testing.T) {
	got := FriendReward(decimal.NewFromInt(20), true)
	assert.True(t, got.Equal(dec("22")), "supporter reward, got %s", got)

	got = FriendReward(decimal.NewFromInt(20), false)
	assert.True(t, got.IsZero(), "non-supporter earns nothing")
}

func TestPenaltyAmount(t *testing.T) {
	amount := decimal.NewFromInt(100)
	cases := []struct {
		stakeType string
		want      string
	}{
		{TypeSelfStake, "100"},
		{TypeSocialStake, "100"},
		{TypeChallengeStake, "50"},
		{TypeTeamStake, "75"},
		{TypeCharityStake, "0"},
	}
	for _, tc := range cases {
		got := PenaltyAmount(amount, tc.stakeType)
		assert.True(t, got.Equal(dec(tc.want)), "%s: expected %s, got %s", tc.stakeType, tc.want, got)
	}
}

func TestTimeBonus(t *testing.T) {
	amount := decimal.NewFromInt(100)
	now := time.Now()
	deadline := now.Add(10 * 24 * time.Hour)

	// Completed with 60% of the window unused: 10%
	got := TimeBonus(amount, deadline, deadline.Add(-6*24*time.Hour), now)
	assert.True(t, got.Equal(decimal.NewFromInt(10)), "early completion, got %s", got)

	// 30% unused: 5%
	got = TimeBonus(amount, deadline, deadline.Add(-3*24*time.Hour), now)
	assert.True(t, got.Equal(decimal.NewFromInt(5)), "got %s", got)

	// 10% unused: nothing
	got = TimeBonus(amount, deadline, deadline.Add(-24*time.Hour), now)
	assert.True(t, got.IsZero(), "got %s", got)

	// Completed after the deadline: nothing
	got = TimeBonus(amount, deadline, deadline.Add(time.Hour), now)
	assert.True(t, got.IsZero())

	// Non-positive window must not divide by zero
	got = TimeBonus(amount, deadline, deadline.Add(-time.Hour), deadline.Add(time.Hour))
	assert.True(t, got.IsZero(), "guarded window, got %s", got)
}

func TestAchievementBonus(t *testing.T) {
	amount := decimal.NewFromInt(100)
	assert.True(t, AchievementBonus(amount, AchievementFirstStake).Equal(decimal.NewFromInt(20)))
	assert.True(t, AchievementBonus(amount, AchievementLongStreak).Equal(decimal.NewFromInt(25)))
	assert.True(t, AchievementBonus(amount, AchievementPerfectMonth).Equal(decimal.NewFromInt(30)))
	assert.True(t, AchievementBonus(amount, "NO_SUCH_THING").IsZero())
}

func TestValidateCompletionPasses(t *testing.T) {
	stk := &Stake{
		Status:   StatusActive,
		Deadline: time.Now().Add(time.Hour),
	}
	err := ValidateCompletion(stk, "finished the whole project", time.Now())
	assert.NoError(t, err)
}

func TestValidateCompletionReportsAllViolations(t *testing.T) {
	stk := &Stake{
		Status:   StatusCompleted,
		Deadline: time.Now().Add(-time.Hour),
	}
	err := ValidateCompletion(stk, "done", time.Now())
	require.Error(t, err)

	var cv *CompletionValidationError
	require.ErrorAs(t, err, &cv)
	assert.True(t, cv.Has(ViolationInvalidState))
	assert.True(t, cv.Has(ViolationExpired))
	assert.True(t, cv.Has(ViolationInsufficientProof))
	assert.True(t, cv.Has(ViolationAlreadyCompleted))
	assert.Len(t, cv.Violations, 4)
}

func TestValidateCompletionProofLength(t *testing.T) {
	stk := &Stake{
		Status:   StatusActive,
		Deadline: time.Now().Add(time.Hour),
	}
	err := ValidateCompletion(stk, "         padded   ", time.Now())
	var cv *CompletionValidationError
	require.ErrorAs(t, err, &cv)
	assert.Equal(t, []string{ViolationInsufficientProof}, cv.Violations)
}
