package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Persisted key names.
const (
	MissionSlotKeyFormat = "DailyMissions/Missions%d"
	NextResetKey         = "DailyMissions/NextResetTime"
	PlayerLevelKey       = "Player/Level"
)

// MissionSlotKey returns the key holding the mission blob for a slot.
func MissionSlotKey(slot int) string {
	return fmt.Sprintf(MissionSlotKeyFormat, slot)
}

// StateKeys returns every key that makes up a player's mission state.
func StateKeys() []string {
	keys := make([]string, 0, SlotCount+1)
	for i := 0; i < SlotCount; i++ {
		keys = append(keys, MissionSlotKey(i))
	}
	return append(keys, NextResetKey)
}

// State is the full daily mission state of one player.
// Slots[i] belongs to Difficulties[i]; a nil slot is vacant.
type State struct {
	PlayerID  string              `json:"player_id"`
	Slots     [SlotCount]*Mission `json:"slots"`
	NextReset time.Time           `json:"next_reset"`
}

// Active returns the non-vacant missions.
func (s *State) Active() []*Mission {
	out := make([]*Mission, 0, SlotCount)
	for _, m := range s.Slots {
		if m != nil {
			out = append(out, m)
		}
	}
	return out
}

// Empty reports whether no mission is assigned at all.
func (s *State) Empty() bool {
	return len(s.Active()) == 0
}

// SaveData is the persisted form of a mission. The capitalised keys match
// what game clients already store locally.
type SaveData struct {
	Difficulty   string    `json:"Difficulty"`
	MissionType  string    `json:"MissionType"`
	MissionGoal  int       `json:"MissionGoal"`
	Progress     int       `json:"Progress"`
	RewardType   string    `json:"RewardType"`
	RewardAmount int       `json:"RewardAmount"`
	IsClaimed    bool      `json:"IsClaimed"`
	DefinitionID string    `json:"DefinitionID,omitempty"`
	InstanceID   string    `json:"InstanceID,omitempty"`
	AssignedAt   time.Time `json:"AssignedAt"`
}

// SaveData captures the mutable part of the mission.
func (m *Mission) SaveData() SaveData {
	return SaveData{
		Difficulty:   string(m.Difficulty),
		MissionType:  string(m.Type),
		MissionGoal:  m.Goal,
		Progress:     m.Progress,
		RewardType:   m.RewardType,
		RewardAmount: m.RewardAmount,
		IsClaimed:    m.Claimed,
		DefinitionID: m.ID,
		InstanceID:   m.InstanceID,
		AssignedAt:   m.AssignedAt,
	}
}

// EncodeMission serializes a slot. Vacant slots encode to "".
func EncodeMission(m *Mission) (string, error) {
	if m == nil {
		return "", nil
	}
	data, err := json.Marshal(m.SaveData())
	if err != nil {
		return "", fmt.Errorf("failed to marshal mission: %w", err)
	}
	return string(data), nil
}

// DecodeSaveData parses a slot blob. An empty value returns (nil, nil).
func DecodeSaveData(value string) (*SaveData, error) {
	if value == "" {
		return nil, nil
	}
	var sd SaveData
	if err := json.Unmarshal([]byte(value), &sd); err != nil {
		return nil, fmt.Errorf("failed to unmarshal mission: %w", err)
	}
	return &sd, nil
}

// Restore rebuilds a mission from its definition and saved progress.
// The saved goal wins over the definition's, so a catalog edit never
// changes a mission that is already running.
func (sd *SaveData) Restore(def *Definition) *Mission {
	m := &Mission{
		Definition:   *def,
		InstanceID:   sd.InstanceID,
		Progress:     sd.Progress,
		RewardAmount: sd.RewardAmount,
		RewardType:   sd.RewardType,
		Claimed:      sd.IsClaimed,
		AssignedAt:   sd.AssignedAt,
	}
	if sd.MissionGoal > 0 {
		m.Goal = sd.MissionGoal
	}
	if m.Progress > m.Goal {
		m.Progress = m.Goal
	}
	if m.Progress < 0 {
		m.Progress = 0
	}
	return m
}
