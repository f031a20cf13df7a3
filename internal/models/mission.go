package models

import (
	"fmt"
	"strings"
	"time"
)

// Difficulty is the tier a mission definition belongs to.
// Each tier owns exactly one active slot.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Difficulties lists the tiers in slot order.
var Difficulties = []Difficulty{DifficultyEasy, DifficultyMedium, DifficultyHard}

// SlotCount is the number of concurrently active missions.
const SlotCount = 3

// IsValid returns true if d is a known difficulty.
func (d Difficulty) IsValid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	default:
		return false
	}
}

// Slot returns the slot index owned by the difficulty, or -1.
func (d Difficulty) Slot() int {
	for i, diff := range Difficulties {
		if diff == d {
			return i
		}
	}
	return -1
}

// ParseDifficulty accepts any casing ("Easy", "easy").
func ParseDifficulty(s string) (Difficulty, error) {
	d := Difficulty(strings.ToLower(strings.TrimSpace(s)))
	if !d.IsValid() {
		return "", fmt.Errorf("unknown difficulty: %q", s)
	}
	return d, nil
}

// MissionType identifies the gameplay event that advances a mission.
type MissionType string

const (
	TypeCompleteLevels          MissionType = "CompleteLevels"
	TypeKillEnemiesWithMelee    MissionType = "KillEnemiesWithMelee"
	TypeKillEnemiesWithArrows   MissionType = "KillEnemiesWithArrows"
	TypeKillEnemiesWithFireball MissionType = "KillEnemiesWithFireball"
	TypeKillEnemiesWithStorm    MissionType = "KillEnemiesWithStorm"
	TypeStunEnemies             MissionType = "StunEnemies"
	TypeSummonMinions           MissionType = "SummonMinions"
	TypeSurviveForTime          MissionType = "SurviveForTime"
	TypeCraftItems              MissionType = "CraftItems"
)

// MissionTypes lists every supported mission type.
var MissionTypes = []MissionType{
	TypeCompleteLevels,
	TypeKillEnemiesWithMelee,
	TypeKillEnemiesWithArrows,
	TypeKillEnemiesWithFireball,
	TypeKillEnemiesWithStorm,
	TypeStunEnemies,
	TypeSummonMinions,
	TypeSurviveForTime,
	TypeCraftItems,
}

// IsValid returns true if t is a known mission type.
func (t MissionType) IsValid() bool {
	for _, known := range MissionTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Definition is a static mission template loaded from the catalog.
type Definition struct {
	ID               string      `json:"id"`
	Difficulty       Difficulty  `json:"difficulty"`
	Type             MissionType `json:"type"`
	Goal             int         `json:"goal"`
	LevelRequirement int         `json:"level_requirement"`
	// GroupID 0 means the definition is not grouped. Definitions sharing
	// a non-zero group are never active at the same time.
	GroupID     int    `json:"group_id"`
	Description string `json:"description"`
	Icon        string `json:"icon,omitempty"`
}

// ConflictsWith reports whether two definitions may not be active together.
func (d *Definition) ConflictsWith(other *Definition) bool {
	if d == nil || other == nil {
		return false
	}
	if d.Type == other.Type {
		return true
	}
	return d.GroupID > 0 && d.GroupID == other.GroupID
}

// Mission is a definition assigned to a player, with its own progress and reward.
type Mission struct {
	Definition
	InstanceID   string    `json:"instance_id"`
	Progress     int       `json:"progress"`
	RewardAmount int       `json:"reward_amount"`
	RewardType   string    `json:"reward_type"`
	Claimed      bool      `json:"claimed"`
	AssignedAt   time.Time `json:"assigned_at"`
}

// IsComplete returns true once progress has reached the goal.
func (m *Mission) IsComplete() bool {
	return m.Progress >= m.Goal
}

// Claimable returns true if the reward can be collected.
func (m *Mission) Claimable() bool {
	return m.IsComplete() && !m.Claimed
}

// Reward is what a claim hands back to the caller.
type Reward struct {
	Amount int    `json:"amount"`
	Type   string `json:"type"`
}

// RewardRange bounds the random reward for a difficulty. Max is exclusive.
type RewardRange struct {
	Min int `json:"min" yaml:"min"`
	Max int `json:"max" yaml:"max"`
}
