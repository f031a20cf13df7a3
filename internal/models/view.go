package models

import "time"

// MissionView is one slot as exposed by the HTTP API.
type MissionView struct {
	Slot         int         `json:"slot"`
	Difficulty   Difficulty  `json:"difficulty"`
	Vacant       bool        `json:"vacant"`
	DefinitionID string      `json:"definition_id,omitempty"`
	InstanceID   string      `json:"instance_id,omitempty"`
	Type         MissionType `json:"type,omitempty"`
	Description  string      `json:"description,omitempty"`
	Icon         string      `json:"icon,omitempty"`
	Goal         int         `json:"goal,omitempty"`
	Progress     int         `json:"progress"`
	Complete     bool        `json:"complete"`
	Claimed      bool        `json:"claimed"`
	Claimable    bool        `json:"claimable"`
	Reward       *Reward     `json:"reward,omitempty"`
	AssignedAt   *time.Time  `json:"assigned_at,omitempty"`
}

// NewMissionView renders a slot. A nil mission yields a vacant view.
func NewMissionView(slot int, m *Mission) MissionView {
	v := MissionView{Slot: slot, Vacant: m == nil}
	if slot >= 0 && slot < len(Difficulties) {
		v.Difficulty = Difficulties[slot]
	}
	if m == nil {
		return v
	}

	assigned := m.AssignedAt
	v.DefinitionID = m.ID
	v.InstanceID = m.InstanceID
	v.Type = m.Type
	v.Description = m.Description
	v.Icon = m.Icon
	v.Goal = m.Goal
	v.Progress = m.Progress
	v.Complete = m.IsComplete()
	v.Claimed = m.Claimed
	v.Claimable = m.Claimable()
	v.Reward = &Reward{Amount: m.RewardAmount, Type: m.RewardType}
	v.AssignedAt = &assigned
	return v
}

// MissionsView is a player's mission panel.
type MissionsView struct {
	PlayerID        string        `json:"player_id"`
	Level           int           `json:"level"`
	Missions        []MissionView `json:"missions"`
	NextReset       time.Time     `json:"next_reset"`
	TimeLeftSeconds int64         `json:"time_left_seconds"`
	TimeLeft        string        `json:"time_left"`
	Warnings        []string      `json:"warnings,omitempty"`
}

// ProgressRequest reports gameplay progress. A missing amount counts as 1.
type ProgressRequest struct {
	Type   MissionType `json:"type"`
	Amount *int        `json:"amount,omitempty"`
}

// ProgressView is the response to a progress report.
type ProgressView struct {
	MissionsView
	Changed []int `json:"changed"`
}

// ClaimView is the response to a successful claim.
type ClaimView struct {
	Slot     int          `json:"slot"`
	Reward   Reward       `json:"reward"`
	Missions MissionsView `json:"missions"`
}

// LevelRequest sets the player's level.
type LevelRequest struct {
	Level *int `json:"level"`
}
