package missions

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/daily-missions/internal/catalog"
	"github.com/terra-clan/daily-missions/internal/models"
	"github.com/terra-clan/daily-missions/internal/storage"
)

var testStart = time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

type fixture struct {
	svc     *Service
	repo    *storage.MemoryRepository
	clock   *FakeClock
	catalog *catalog.Loader
}

// newFixture builds a service with exactly one definition per difficulty
// unless defs are given.
func newFixture(t *testing.T, defs ...*models.Definition) *fixture {
	t.Helper()

	if len(defs) == 0 {
		defs = []*models.Definition{
			{ID: "easy-craft", Difficulty: models.DifficultyEasy, Type: models.TypeCraftItems, Goal: 5},
			{ID: "medium-stun", Difficulty: models.DifficultyMedium, Type: models.TypeStunEnemies, Goal: 10},
			{ID: "hard-summon", Difficulty: models.DifficultyHard, Type: models.TypeSummonMinions, Goal: 3},
		}
	}

	cat := catalog.NewLoader()
	for _, d := range defs {
		require.NoError(t, cat.Add(d))
	}

	schedule, err := NewSchedule(DefaultResetHour, time.UTC)
	require.NoError(t, err)

	repo := storage.NewMemoryRepository()
	clock := NewFakeClock(testStart)

	return &fixture{
		svc:     NewService(repo, cat, schedule, WithClock(clock), WithSeed(1)),
		repo:    repo,
		clock:   clock,
		catalog: cat,
	}
}

func instanceIDs(s *models.State) []string {
	out := make([]string, 0, models.SlotCount)
	for _, m := range s.Slots {
		if m == nil {
			out = append(out, "")
			continue
		}
		out = append(out, m.InstanceID)
	}
	return out
}

func TestService_FirstLoadAssignsAllSlots(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	snap, err := f.svc.Missions(ctx, "player-1")
	require.NoError(t, err)

	require.Len(t, snap.State.Active(), 3)
	for i, m := range snap.State.Slots {
		assert.Equal(t, models.Difficulties[i], m.Difficulty)
		assert.Equal(t, 0, m.Progress)
		assert.False(t, m.Claimed)
	}
	assert.Empty(t, snap.Warnings)
	assert.True(t, time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC).Equal(snap.State.NextReset))
	assert.Equal(t, time.Hour, snap.TimeLeft)

	values, err := f.repo.GetValues(ctx, "player-1", models.StateKeys())
	require.NoError(t, err)
	assert.Len(t, values, 4)
	assert.Equal(t, "2026-03-10T09:00:00Z", values[models.NextResetKey])
}

func TestService_StateSurvivesReload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Missions(ctx, "player-1")
	require.NoError(t, err)

	f.clock.Advance(30 * time.Minute)
	second, err := f.svc.Missions(ctx, "player-1")
	require.NoError(t, err)

	assert.Equal(t, instanceIDs(first.State), instanceIDs(second.State))
	assert.Equal(t, 30*time.Minute, second.TimeLeft)

	for i := range first.State.Slots {
		assert.Equal(t, first.State.Slots[i].RewardAmount, second.State.Slots[i].RewardAmount)
	}
}

func TestService_ResetAtNineReassigns(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Missions(ctx, "player-1")
	require.NoError(t, err)

	_, err = f.svc.Progress(ctx, "player-1", models.TypeCraftItems, 5)
	require.NoError(t, err)

	f.clock.Set(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))
	second, err := f.svc.Missions(ctx, "player-1")
	require.NoError(t, err)

	for i := range first.State.Slots {
		assert.NotEqual(t, first.State.Slots[i].InstanceID, second.State.Slots[i].InstanceID)
		assert.Equal(t, 0, second.State.Slots[i].Progress)
	}
	assert.True(t, time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC).Equal(second.State.NextReset))
}

func TestService_MissedResetsRollForwardOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Missions(ctx, "player-1")
	require.NoError(t, err)

	f.clock.Set(time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC))
	reassigned, err := f.svc.Refresh(ctx, "player-1")
	require.NoError(t, err)
	assert.True(t, reassigned)

	snap, err := f.svc.Missions(ctx, "player-1")
	require.NoError(t, err)
	assert.True(t, time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC).Equal(snap.State.NextReset))

	reassigned, err = f.svc.Refresh(ctx, "player-1")
	require.NoError(t, err)
	assert.False(t, reassigned)
}

func TestService_Progress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Progress(ctx, "player-1", models.TypeCraftItems, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, res.Changed)
	assert.Equal(t, 3, res.State.Slots[0].Progress)
	assert.Equal(t, 0, res.State.Slots[1].Progress)

	res, err = f.svc.Progress(ctx, "player-1", models.TypeCraftItems, 100)
	require.NoError(t, err)
	assert.Equal(t, 5, res.State.Slots[0].Progress, "progress is clamped to the goal")
	assert.True(t, res.State.Slots[0].IsComplete())

	res, err = f.svc.Progress(ctx, "player-1", models.TypeCraftItems, 1)
	require.NoError(t, err)
	assert.Empty(t, res.Changed, "completed missions do not move")

	res, err = f.svc.Progress(ctx, "player-1", models.TypeSurviveForTime, 10)
	require.NoError(t, err)
	assert.Empty(t, res.Changed)

	snap, err := f.svc.Missions(ctx, "player-1")
	require.NoError(t, err)
	assert.Equal(t, 5, snap.State.Slots[0].Progress)
}

func TestService_ProgressHugeAmountClampsToGoal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Progress(ctx, "player-1", models.TypeCraftItems, 2)
	require.NoError(t, err)

	res, err := f.svc.Progress(ctx, "player-1", models.TypeCraftItems, math.MaxInt)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, res.Changed)
	assert.Equal(t, 5, res.State.Slots[0].Progress)

	snap, err := f.svc.Missions(ctx, "player-1")
	require.NoError(t, err)
	assert.Equal(t, 5, snap.State.Slots[0].Progress)
	assert.True(t, snap.State.Slots[0].IsComplete())
}

func TestAdvanceProgress(t *testing.T) {
	assert.Equal(t, 3, advanceProgress(1, 2, 5))
	assert.Equal(t, 5, advanceProgress(4, 2, 5))
	assert.Equal(t, 5, advanceProgress(4, math.MaxInt, 5))
	assert.Equal(t, 5, advanceProgress(9, 1, 5))
	assert.Equal(t, 2, advanceProgress(-3, 2, 5))
}

func TestService_ProgressValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Progress(ctx, "player-1", models.TypeCraftItems, 0)
	assert.True(t, errors.Is(err, ErrInvalidAmount))

	_, err = f.svc.Progress(ctx, "player-1", models.MissionType("Dance"), 1)
	assert.True(t, errors.Is(err, ErrUnknownMissionType))

	_, err = f.svc.Progress(ctx, " ", models.TypeCraftItems, 1)
	assert.True(t, errors.Is(err, ErrInvalidPlayer))
}

func TestService_Claim(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Claim(ctx, "player-1", 0)
	assert.True(t, errors.Is(err, ErrMissionIncomplete))

	_, err = f.svc.Progress(ctx, "player-1", models.TypeCraftItems, 5)
	require.NoError(t, err)

	res, err := f.svc.Claim(ctx, "player-1", 0)
	require.NoError(t, err)
	assert.Equal(t, "Coins", res.Reward.Type)
	assert.GreaterOrEqual(t, res.Reward.Amount, 50)
	assert.Less(t, res.Reward.Amount, 100)
	assert.True(t, res.State.Slots[0].Claimed)

	_, err = f.svc.Claim(ctx, "player-1", 0)
	assert.True(t, errors.Is(err, ErrAlreadyClaimed))

	_, err = f.svc.Claim(ctx, "player-1", 3)
	assert.True(t, errors.Is(err, ErrInvalidSlot))

	_, err = f.svc.Claim(ctx, "player-1", -1)
	assert.True(t, errors.Is(err, ErrInvalidSlot))
}

func TestService_VacantSlot(t *testing.T) {
	f := newFixture(t,
		&models.Definition{ID: "easy-craft", Difficulty: models.DifficultyEasy, Type: models.TypeCraftItems, Goal: 5},
		&models.Definition{ID: "medium-craft", Difficulty: models.DifficultyMedium, Type: models.TypeCraftItems, Goal: 10},
		&models.Definition{ID: "hard-summon", Difficulty: models.DifficultyHard, Type: models.TypeSummonMinions, Goal: 3},
	)
	ctx := context.Background()

	snap, err := f.svc.Missions(ctx, "player-1")
	require.NoError(t, err)

	assert.NotNil(t, snap.State.Slots[0])
	assert.Nil(t, snap.State.Slots[1], "medium only offers a type already taken")
	assert.NotNil(t, snap.State.Slots[2])
	require.Len(t, snap.Warnings, 1)
	assert.Contains(t, snap.Warnings[0], "medium")

	values, err := f.repo.GetValues(ctx, "player-1", []string{models.MissionSlotKey(1)})
	require.NoError(t, err)
	v, ok := values[models.MissionSlotKey(1)]
	assert.True(t, ok)
	assert.Equal(t, "", v)

	// A persisted vacancy is a valid state and is not reassigned.
	again, err := f.svc.Missions(ctx, "player-1")
	require.NoError(t, err)
	assert.Equal(t, instanceIDs(snap.State), instanceIDs(again.State))

	_, err = f.svc.Claim(ctx, "player-1", 1)
	assert.True(t, errors.Is(err, ErrSlotVacant))
}

func TestService_NoDuplicateTypesOrGroups(t *testing.T) {
	defs := []*models.Definition{
		{ID: "easy-melee", Difficulty: models.DifficultyEasy, Type: models.TypeKillEnemiesWithMelee, Goal: 5, GroupID: 1},
		{ID: "easy-craft", Difficulty: models.DifficultyEasy, Type: models.TypeCraftItems, Goal: 5},
		{ID: "medium-arrows", Difficulty: models.DifficultyMedium, Type: models.TypeKillEnemiesWithArrows, Goal: 5, GroupID: 1},
		{ID: "medium-craft", Difficulty: models.DifficultyMedium, Type: models.TypeCraftItems, Goal: 5},
		{ID: "medium-stun", Difficulty: models.DifficultyMedium, Type: models.TypeStunEnemies, Goal: 5},
		{ID: "hard-melee", Difficulty: models.DifficultyHard, Type: models.TypeKillEnemiesWithMelee, Goal: 5, GroupID: 1},
		{ID: "hard-craft", Difficulty: models.DifficultyHard, Type: models.TypeCraftItems, Goal: 5},
		{ID: "hard-stun", Difficulty: models.DifficultyHard, Type: models.TypeStunEnemies, Goal: 5},
		{ID: "hard-survive", Difficulty: models.DifficultyHard, Type: models.TypeSurviveForTime, Goal: 5},
	}
	f := newFixture(t, defs...)
	ctx := context.Background()

	for day := 0; day < 50; day++ {
		snap, err := f.svc.Missions(ctx, "player-1")
		require.NoError(t, err)

		active := snap.State.Active()
		require.Len(t, active, 3)
		for i := range active {
			for j := i + 1; j < len(active); j++ {
				assert.False(t, active[i].ConflictsWith(&active[j].Definition),
					"%s conflicts with %s", active[i].ID, active[j].ID)
			}
		}

		f.clock.Advance(24 * time.Hour)
	}
}

func TestService_LevelRequirement(t *testing.T) {
	f := newFixture(t,
		&models.Definition{ID: "easy-craft", Difficulty: models.DifficultyEasy, Type: models.TypeCraftItems, Goal: 5},
		&models.Definition{ID: "medium-stun", Difficulty: models.DifficultyMedium, Type: models.TypeStunEnemies, Goal: 10},
		&models.Definition{ID: "hard-summon", Difficulty: models.DifficultyHard, Type: models.TypeSummonMinions, Goal: 3, LevelRequirement: 10},
	)
	ctx := context.Background()

	snap, err := f.svc.Missions(ctx, "player-1")
	require.NoError(t, err)
	assert.Nil(t, snap.State.Slots[2])

	require.NoError(t, f.svc.SetLevel(ctx, "player-1", 10))
	assert.True(t, errors.Is(f.svc.SetLevel(ctx, "player-1", -1), ErrInvalidLevel))

	snap, err = f.svc.Reassign(ctx, "player-1")
	require.NoError(t, err)
	assert.Equal(t, 10, snap.Level)
	require.NotNil(t, snap.State.Slots[2])
	assert.Equal(t, "hard-summon", snap.State.Slots[2].ID)
}

func TestService_ReassignKeepsResetTime(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Missions(ctx, "player-1")
	require.NoError(t, err)

	f.clock.Advance(10 * time.Minute)
	second, err := f.svc.Reassign(ctx, "player-1")
	require.NoError(t, err)

	assert.True(t, first.State.NextReset.Equal(second.State.NextReset))
	assert.NotEqual(t, instanceIDs(first.State), instanceIDs(second.State))
}

func TestService_CorruptStateIsReassigned(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Missions(ctx, "player-1")
	require.NoError(t, err)

	require.NoError(t, f.repo.SetValues(ctx, "player-1", map[string]string{
		models.MissionSlotKey(2): "{not json",
	}))

	second, err := f.svc.Missions(ctx, "player-1")
	require.NoError(t, err)
	assert.NotEqual(t, first.State.Slots[0].InstanceID, second.State.Slots[0].InstanceID)
	require.NotNil(t, second.State.Slots[2])
}

func TestService_RestoresByTypeWhenDefinitionIDMissing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.repo.SetValues(ctx, "player-1", map[string]string{
		models.MissionSlotKey(0): `{"Difficulty":"Easy","MissionType":"CraftItems","MissionGoal":4,"Progress":9,"RewardType":"Coins","RewardAmount":60,"IsClaimed":false}`,
		models.MissionSlotKey(1): "",
		models.MissionSlotKey(2): "",
		models.NextResetKey:      "2026-03-10T09:00:00Z",
	}))

	snap, err := f.svc.Missions(ctx, "player-1")
	require.NoError(t, err)

	m := snap.State.Slots[0]
	require.NotNil(t, m)
	assert.Equal(t, "easy-craft", m.ID)
	assert.Equal(t, 4, m.Goal)
	assert.Equal(t, 4, m.Progress)
	assert.Equal(t, 60, m.RewardAmount)
	assert.Nil(t, snap.State.Slots[1])
}

func TestService_EditedDefinitionIsNotTrusted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Missions(ctx, "player-1")
	require.NoError(t, err)
	require.Equal(t, "easy-craft", first.State.Slots[0].ID)

	// easy-craft now means stunning, which medium-stun already covers.
	edited := catalog.NewLoader()
	for _, d := range []*models.Definition{
		{ID: "easy-craft", Difficulty: models.DifficultyEasy, Type: models.TypeStunEnemies, Goal: 5},
		{ID: "medium-stun", Difficulty: models.DifficultyMedium, Type: models.TypeStunEnemies, Goal: 10},
		{ID: "hard-summon", Difficulty: models.DifficultyHard, Type: models.TypeSummonMinions, Goal: 3},
	} {
		require.NoError(t, edited.Add(d))
	}
	schedule, err := NewSchedule(DefaultResetHour, time.UTC)
	require.NoError(t, err)
	svc := NewService(f.repo, edited, schedule, WithClock(f.clock), WithSeed(2))

	snap, err := svc.Missions(ctx, "player-1")
	require.NoError(t, err)

	assert.NotEqual(t, instanceIDs(first.State), instanceIDs(snap.State))
	seen := map[models.MissionType]bool{}
	for _, m := range snap.State.Active() {
		assert.False(t, seen[m.Type], "duplicate mission type %s", m.Type)
		seen[m.Type] = true
	}
	if m := snap.State.Slots[0]; m != nil {
		assert.Equal(t, models.TypeStunEnemies, m.Type)
	}
}

func TestService_ConflictingStoredSlotsAreReassigned(t *testing.T) {
	f := newFixture(t,
		&models.Definition{ID: "easy-stun", Difficulty: models.DifficultyEasy, Type: models.TypeStunEnemies, Goal: 3},
		&models.Definition{ID: "easy-craft", Difficulty: models.DifficultyEasy, Type: models.TypeCraftItems, Goal: 5},
		&models.Definition{ID: "medium-stun", Difficulty: models.DifficultyMedium, Type: models.TypeStunEnemies, Goal: 10},
		&models.Definition{ID: "hard-summon", Difficulty: models.DifficultyHard, Type: models.TypeSummonMinions, Goal: 3},
	)
	ctx := context.Background()

	require.NoError(t, f.repo.SetValues(ctx, "player-1", map[string]string{
		models.MissionSlotKey(0): `{"Difficulty":"Easy","MissionType":"StunEnemies","MissionGoal":3,"Progress":1,"RewardType":"Coins","RewardAmount":60,"IsClaimed":false,"InstanceID":"a"}`,
		models.MissionSlotKey(1): `{"Difficulty":"Medium","MissionType":"StunEnemies","MissionGoal":10,"Progress":2,"RewardType":"Coins","RewardAmount":120,"IsClaimed":false,"InstanceID":"b"}`,
		models.MissionSlotKey(2): "",
		models.NextResetKey:      "2026-03-10T09:00:00Z",
	}))

	snap, err := f.svc.Missions(ctx, "player-1")
	require.NoError(t, err)

	got := instanceIDs(snap.State)
	assert.NotEqual(t, "a", got[0])
	assert.NotEqual(t, "b", got[1])
	if snap.State.Slots[0] != nil && snap.State.Slots[1] != nil {
		assert.NotEqual(t, snap.State.Slots[0].Type, snap.State.Slots[1].Type)
	}
	assert.NotNil(t, snap.State.Slots[2], "reassignment fills every slot it can")
}

func TestService_Clear(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.SetLevel(ctx, "player-1", 7))
	first, err := f.svc.Missions(ctx, "player-1")
	require.NoError(t, err)

	sub := f.svc.Subscribe("player-1")
	defer sub.Close()

	require.NoError(t, f.svc.Clear(ctx, "player-1"))

	values, err := f.repo.GetValues(ctx, "player-1", append(models.StateKeys(), models.PlayerLevelKey))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{models.PlayerLevelKey: "7"}, values)

	select {
	case ev := <-sub.C:
		assert.Equal(t, models.EventCleared, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}

	snap, err := f.svc.Missions(ctx, "player-1")
	require.NoError(t, err)
	assert.Equal(t, 7, snap.Level)
	assert.NotEqual(t, instanceIDs(first.State), instanceIDs(snap.State))

	assert.True(t, errors.Is(f.svc.Clear(ctx, ""), ErrInvalidPlayer))

	f.repo.FailWrites = true
	assert.Error(t, f.svc.Clear(ctx, "player-1"))
}

func TestService_NothingEligibleLeavesEverySlotVacant(t *testing.T) {
	f := newFixture(t,
		&models.Definition{ID: "hard-summon", Difficulty: models.DifficultyHard, Type: models.TypeSummonMinions, Goal: 3, LevelRequirement: 50},
	)
	ctx := context.Background()

	snap, err := f.svc.Missions(ctx, "player-1")
	require.NoError(t, err)
	assert.True(t, snap.State.Empty())
	assert.Len(t, snap.Warnings, models.SlotCount)

	values, err := f.repo.GetValues(ctx, "player-1", models.StateKeys())
	require.NoError(t, err)
	assert.Equal(t, "", values[models.MissionSlotKey(2)])
	assert.Contains(t, values, models.NextResetKey)
}

func TestService_SaveFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.repo.FailWrites = true
	_, err := f.svc.Missions(ctx, "player-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to save missions")
}

func TestService_PublishesEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sub := f.svc.Subscribe("player-1")
	defer sub.Close()
	assert.Equal(t, []string{"player-1"}, f.svc.SubscribedPlayers())

	_, err := f.svc.Progress(ctx, "player-1", models.TypeCraftItems, 5)
	require.NoError(t, err)
	_, err = f.svc.Claim(ctx, "player-1", 0)
	require.NoError(t, err)

	var got []models.EventType
	for i := 0; i < 3; i++ {
		select {
		case ev := <-sub.C:
			assert.Equal(t, "player-1", ev.PlayerID)
			assert.NotEmpty(t, ev.ID)
			got = append(got, ev.Type)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}

	assert.Equal(t, []models.EventType{models.EventAssigned, models.EventProgress, models.EventClaimed}, got)
}

func TestService_PlayersAreIsolated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Progress(ctx, "player-1", models.TypeCraftItems, 2)
	require.NoError(t, err)

	snap, err := f.svc.Missions(ctx, "player-2")
	require.NoError(t, err)
	assert.Equal(t, 0, snap.State.Slots[0].Progress)
}
