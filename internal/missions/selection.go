package missions

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/terra-clan/daily-missions/internal/models"
)

// Requirement is an extra eligibility check on top of the level
// requirement. Returning false keeps the definition from being offered.
type Requirement func(player PlayerInfo, def *models.Definition) bool

// PlayerInfo is what eligibility checks know about a player.
type PlayerInfo struct {
	ID    string
	Level int
}

// SelectRequest describes one slot to fill.
type SelectRequest struct {
	Difficulty   models.Difficulty
	Candidates   []*models.Definition
	Chosen       []*models.Definition
	Player       PlayerInfo
	Requirements []Requirement
	Reward       models.RewardRange
	RewardType   string
	Now          time.Time
}

// Eligible filters candidates down to the definitions that may be offered.
func Eligible(req SelectRequest) []*models.Definition {
	var out []*models.Definition
	for _, def := range req.Candidates {
		if def.Difficulty != req.Difficulty {
			continue
		}
		if !requirementsMet(req.Player, def, req.Requirements) {
			continue
		}
		if conflicts(def, req.Chosen) {
			continue
		}
		out = append(out, def)
	}
	return out
}

// Select picks a random eligible definition and instantiates it.
func Select(req SelectRequest, rng *rand.Rand) (*models.Mission, error) {
	eligible := Eligible(req)
	if len(eligible) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoEligibleMissions, req.Difficulty)
	}

	def := eligible[rng.Intn(len(eligible))]

	return &models.Mission{
		Definition:   *def,
		InstanceID:   uuid.New().String(),
		RewardAmount: RollReward(req.Reward, rng),
		RewardType:   req.RewardType,
		AssignedAt:   req.Now,
	}, nil
}

// RollReward returns a value in [Min, Max), or Min when the range is empty.
func RollReward(r models.RewardRange, rng *rand.Rand) int {
	if r.Max <= r.Min {
		return r.Min
	}
	return r.Min + rng.Intn(r.Max-r.Min)
}

func requirementsMet(player PlayerInfo, def *models.Definition, reqs []Requirement) bool {
	if player.Level < def.LevelRequirement {
		return false
	}
	for _, req := range reqs {
		if !req(player, def) {
			return false
		}
	}
	return true
}

func conflicts(def *models.Definition, chosen []*models.Definition) bool {
	for _, c := range chosen {
		if def.ConflictsWith(c) {
			return true
		}
	}
	return false
}
