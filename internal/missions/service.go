package missions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/terra-clan/daily-missions/internal/models"
	"github.com/terra-clan/daily-missions/internal/storage"
)

// Common errors
var (
	ErrNoEligibleMissions = errors.New("no eligible missions")
	ErrInvalidPlayer      = errors.New("player id is required")
	ErrInvalidSlot        = errors.New("invalid mission slot")
	ErrSlotVacant         = errors.New("mission slot is vacant")
	ErrMissionIncomplete  = errors.New("mission is not complete")
	ErrAlreadyClaimed     = errors.New("mission reward already claimed")
	ErrInvalidAmount      = errors.New("progress amount must be positive")
	ErrInvalidLevel       = errors.New("player level must not be negative")
	ErrUnknownMissionType = errors.New("unknown mission type")
)

// Manager defines the daily mission operations offered to game clients
type Manager interface {
	Missions(ctx context.Context, playerID string) (*Snapshot, error)
	Progress(ctx context.Context, playerID string, missionType models.MissionType, amount int) (*ProgressResult, error)
	Claim(ctx context.Context, playerID string, slot int) (*ClaimResult, error)
	Reassign(ctx context.Context, playerID string) (*Snapshot, error)
	Clear(ctx context.Context, playerID string) error
	SetLevel(ctx context.Context, playerID string, level int) error
	Refresh(ctx context.Context, playerID string) (bool, error)
	Subscribe(playerID string) *Subscription
	SubscribedPlayers() []string
	Ping(ctx context.Context) error
}

// Catalog is the read side of the mission definition loader
type Catalog interface {
	Get(id string) *models.Definition
	Find(d models.Difficulty, t models.MissionType) *models.Definition
	ByDifficulty(d models.Difficulty) []*models.Definition
	RewardRange(d models.Difficulty) models.RewardRange
	RewardType() string
}

// Snapshot is a player's current missions as seen at Now.
type Snapshot struct {
	State    *models.State
	Level    int
	Now      time.Time
	TimeLeft time.Duration
	// Warnings lists difficulties that could not be filled on the last
	// assignment made during this call.
	Warnings []string
}

// ProgressResult reports which slots a progress event advanced.
type ProgressResult struct {
	*Snapshot
	Changed []int
}

// ClaimResult is the reward handed out by a successful claim.
type ClaimResult struct {
	*Snapshot
	Slot   int
	Reward models.Reward
}

// Option configures a Service
type Option func(*Service)

// WithClock replaces the wall clock
func WithClock(c Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithSeed makes selection and rewards deterministic
func WithSeed(seed int64) Option {
	return func(s *Service) { s.rng = rand.New(rand.NewSource(seed)) }
}

// WithRequirement adds an eligibility check applied to every definition
func WithRequirement(req Requirement) Option {
	return func(s *Service) { s.requirements = append(s.requirements, req) }
}

// WithBroker shares an event broker
func WithBroker(b *Broker) Option {
	return func(s *Service) { s.broker = b }
}

// Service implements Manager on top of a key-value repository
type Service struct {
	repo         storage.Repository
	catalog      Catalog
	schedule     Schedule
	clock        Clock
	broker       *Broker
	requirements []Requirement

	rngMu sync.Mutex
	rng   *rand.Rand

	locks playerLocks
}

// NewService creates a mission service
func NewService(repo storage.Repository, catalog Catalog, schedule Schedule, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		catalog:  catalog,
		schedule: schedule,
		clock:    RealClock{},
		broker:   NewBroker(),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		locks:    playerLocks{locks: make(map[string]*playerLock)},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ping checks the repository
func (s *Service) Ping(ctx context.Context) error {
	if err := s.repo.Ping(ctx); err != nil {
		return fmt.Errorf("repository ping failed: %w", err)
	}
	return nil
}

// Subscribe listens to a player's mission events
func (s *Service) Subscribe(playerID string) *Subscription {
	return s.broker.Subscribe(playerID)
}

// SubscribedPlayers lists players with live subscribers
func (s *Service) SubscribedPlayers() []string {
	return s.broker.Players()
}

// Missions returns the player's missions, assigning new ones if the reset
// time has passed or nothing valid is stored.
func (s *Service) Missions(ctx context.Context, playerID string) (*Snapshot, error) {
	if err := validatePlayer(playerID); err != nil {
		return nil, err
	}
	defer s.locks.lock(playerID)()

	snap, _, err := s.ensure(ctx, playerID)
	return snap, err
}

// Refresh performs the reset check and reports whether missions were reassigned
func (s *Service) Refresh(ctx context.Context, playerID string) (bool, error) {
	if err := validatePlayer(playerID); err != nil {
		return false, err
	}
	defer s.locks.lock(playerID)()

	_, reassigned, err := s.ensure(ctx, playerID)
	return reassigned, err
}

// Progress advances every active mission of the given type by amount,
// never past its goal. Completed missions are left untouched.
func (s *Service) Progress(ctx context.Context, playerID string, missionType models.MissionType, amount int) (*ProgressResult, error) {
	if err := validatePlayer(playerID); err != nil {
		return nil, err
	}
	if !missionType.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMissionType, missionType)
	}
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	defer s.locks.lock(playerID)()

	snap, _, err := s.ensure(ctx, playerID)
	if err != nil {
		return nil, err
	}

	var changed []int
	for i, m := range snap.State.Slots {
		if m == nil || m.Type != missionType || m.IsComplete() {
			continue
		}
		m.Progress = advanceProgress(m.Progress, amount, m.Goal)
		changed = append(changed, i)
	}

	result := &ProgressResult{Snapshot: snap, Changed: changed}
	if len(changed) == 0 {
		return result, nil
	}

	if err := s.save(ctx, snap.State); err != nil {
		return nil, err
	}

	slog.Debug("mission progress recorded",
		"player_id", playerID,
		"type", missionType,
		"amount", amount,
		"slots", changed,
	)

	s.publish(models.EventProgress, snap.State, changed)
	return result, nil
}

// Claim collects the reward of a completed mission
func (s *Service) Claim(ctx context.Context, playerID string, slot int) (*ClaimResult, error) {
	if err := validatePlayer(playerID); err != nil {
		return nil, err
	}
	if slot < 0 || slot >= models.SlotCount {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSlot, slot)
	}
	defer s.locks.lock(playerID)()

	snap, _, err := s.ensure(ctx, playerID)
	if err != nil {
		return nil, err
	}

	m := snap.State.Slots[slot]
	switch {
	case m == nil:
		return nil, ErrSlotVacant
	case m.Claimed:
		return nil, ErrAlreadyClaimed
	case !m.IsComplete():
		return nil, ErrMissionIncomplete
	}

	m.Claimed = true
	if err := s.save(ctx, snap.State); err != nil {
		return nil, err
	}

	slog.Info("mission reward claimed",
		"player_id", playerID,
		"slot", slot,
		"definition", m.ID,
		"reward_amount", m.RewardAmount,
		"reward_type", m.RewardType,
	)

	s.publish(models.EventClaimed, snap.State, []int{slot})
	return &ClaimResult{
		Snapshot: snap,
		Slot:     slot,
		Reward:   models.Reward{Amount: m.RewardAmount, Type: m.RewardType},
	}, nil
}

// Reassign replaces the player's missions immediately. The reset time is
// kept unless none is stored yet.
func (s *Service) Reassign(ctx context.Context, playerID string) (*Snapshot, error) {
	if err := validatePlayer(playerID); err != nil {
		return nil, err
	}
	defer s.locks.lock(playerID)()

	loaded, err := s.load(ctx, playerID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	nextReset := loaded.state.NextReset
	if !loaded.hasReset {
		nextReset = s.schedule.NextResetAfter(now)
	}

	snap, err := s.assign(ctx, playerID, loaded.level, nextReset, now)
	if err != nil {
		return nil, err
	}

	slog.Info("daily missions reassigned on request", "player_id", playerID)
	return snap, nil
}

// Clear deletes the player's stored missions and reset time. The level is
// kept. The next request assigns from scratch.
func (s *Service) Clear(ctx context.Context, playerID string) error {
	if err := validatePlayer(playerID); err != nil {
		return err
	}
	defer s.locks.lock(playerID)()

	if err := s.repo.DeleteValues(ctx, playerID, models.StateKeys()); err != nil {
		return fmt.Errorf("failed to clear missions: %w", err)
	}

	slog.Info("daily missions cleared", "player_id", playerID)
	s.publish(models.EventCleared, &models.State{PlayerID: playerID}, nil)
	return nil
}

// SetLevel stores the level used for mission level requirements
func (s *Service) SetLevel(ctx context.Context, playerID string, level int) error {
	if err := validatePlayer(playerID); err != nil {
		return err
	}
	if level < 0 {
		return ErrInvalidLevel
	}
	defer s.locks.lock(playerID)()

	if err := s.repo.SetValues(ctx, playerID, map[string]string{
		models.PlayerLevelKey: strconv.Itoa(level),
	}); err != nil {
		return fmt.Errorf("failed to save player level: %w", err)
	}
	return nil
}

// ensure loads the state and reassigns when it is missing, corrupt or
// past its reset time. Callers must hold the player lock.
func (s *Service) ensure(ctx context.Context, playerID string) (*Snapshot, bool, error) {
	loaded, err := s.load(ctx, playerID)
	if err != nil {
		return nil, false, err
	}

	now := s.clock.Now()

	switch {
	case !loaded.valid:
		slog.Info("assigning daily missions", "player_id", playerID, "reason", "no valid state")
	case s.schedule.Expired(loaded.state.NextReset, now):
		slog.Info("assigning daily missions",
			"player_id", playerID,
			"reason", "reset time reached",
			"next_reset", loaded.state.NextReset,
		)
	default:
		return s.snapshot(loaded.state, loaded.level, now, nil), false, nil
	}

	snap, err := s.assign(ctx, playerID, loaded.level, s.schedule.NextResetAfter(now), now)
	if err != nil {
		return nil, false, err
	}
	return snap, true, nil
}

// assign draws a fresh mission for every difficulty, persists and
// announces the result.
func (s *Service) assign(ctx context.Context, playerID string, level int, nextReset, now time.Time) (*Snapshot, error) {
	state := &models.State{PlayerID: playerID, NextReset: nextReset}
	player := PlayerInfo{ID: playerID, Level: level}

	var chosen []*models.Definition
	var warnings []string

	s.rngMu.Lock()
	for i, d := range models.Difficulties {
		m, err := Select(SelectRequest{
			Difficulty:   d,
			Candidates:   s.catalog.ByDifficulty(d),
			Chosen:       chosen,
			Player:       player,
			Requirements: s.requirements,
			Reward:       s.catalog.RewardRange(d),
			RewardType:   s.catalog.RewardType(),
			Now:          now,
		}, s.rng)
		if err != nil {
			slog.Warn("daily mission slot left vacant",
				"player_id", playerID,
				"difficulty", d,
				"error", err,
			)
			warnings = append(warnings, err.Error())
			continue
		}
		state.Slots[i] = m
		chosen = append(chosen, &m.Definition)
	}
	s.rngMu.Unlock()

	if state.Empty() {
		slog.Error("no daily mission could be assigned",
			"player_id", playerID,
			"level", level,
		)
	}

	if err := s.save(ctx, state); err != nil {
		return nil, err
	}

	for i, m := range state.Slots {
		if m != nil {
			slog.Debug("daily mission assigned",
				"player_id", playerID,
				"slot", i,
				"definition", m.ID,
				"reward_amount", m.RewardAmount,
			)
		}
	}

	s.publish(models.EventAssigned, state, []int{0, 1, 2})
	return s.snapshot(state, level, now, warnings), nil
}

type loadedState struct {
	state    *models.State
	level    int
	valid    bool
	hasReset bool
}

// load reads and decodes everything stored for a player. Undecodable data
// is reported as an invalid state, never as an error.
func (s *Service) load(ctx context.Context, playerID string) (*loadedState, error) {
	keys := append(models.StateKeys(), models.PlayerLevelKey)
	values, err := s.repo.GetValues(ctx, playerID, keys)
	if err != nil {
		return nil, fmt.Errorf("failed to load missions: %w", err)
	}

	out := &loadedState{state: &models.State{PlayerID: playerID}, valid: true}

	if raw, ok := values[models.PlayerLevelKey]; ok {
		level, err := strconv.Atoi(raw)
		if err != nil || level < 0 {
			slog.Warn("ignoring invalid stored player level", "player_id", playerID, "value", raw)
		} else {
			out.level = level
		}
	}

	if raw, ok := values[models.NextResetKey]; ok {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			slog.Warn("invalid stored reset time", "player_id", playerID, "value", raw, "error", err)
			out.valid = false
		} else {
			out.state.NextReset = t
			out.hasReset = true
		}
	} else {
		out.valid = false
	}

	for i := 0; i < models.SlotCount; i++ {
		raw, ok := values[models.MissionSlotKey(i)]
		if !ok {
			out.valid = false
			continue
		}
		m, err := s.restore(i, raw)
		if err != nil {
			slog.Warn("invalid stored mission", "player_id", playerID, "slot", i, "error", err)
			out.valid = false
			continue
		}
		out.state.Slots[i] = m
	}

	if a, b, ok := conflictingSlots(out.state); ok {
		slog.Warn("stored missions conflict",
			"player_id", playerID,
			"slot", a,
			"other_slot", b,
		)
		out.valid = false
	}

	return out, nil
}

// conflictingSlots finds two active missions that may not run together
func conflictingSlots(state *models.State) (int, int, bool) {
	for i, m := range state.Slots {
		if m == nil {
			continue
		}
		for j := i + 1; j < len(state.Slots); j++ {
			if other := state.Slots[j]; other != nil && m.ConflictsWith(&other.Definition) {
				return i, j, true
			}
		}
	}
	return 0, 0, false
}

func (s *Service) restore(slot int, raw string) (*models.Mission, error) {
	sd, err := models.DecodeSaveData(raw)
	if err != nil || sd == nil {
		return nil, err
	}

	d, err := models.ParseDifficulty(sd.Difficulty)
	if err != nil {
		return nil, err
	}
	if d.Slot() != slot {
		return nil, fmt.Errorf("difficulty %s stored in slot %d", d, slot)
	}

	t := models.MissionType(sd.MissionType)

	// A definition edited since assignment no longer describes the
	// running mission, fall back to difficulty and type.
	def := s.catalog.Get(sd.DefinitionID)
	if def != nil && (def.Type != t || def.Difficulty != d) {
		def = nil
	}
	if def == nil {
		def = s.catalog.Find(d, t)
	}
	if def == nil {
		return nil, fmt.Errorf("no definition for %s %s", d, sd.MissionType)
	}
	return sd.Restore(def), nil
}

// save writes every slot and the reset time in a single batch
func (s *Service) save(ctx context.Context, state *models.State) error {
	values := make(map[string]string, models.SlotCount+1)
	for i, m := range state.Slots {
		blob, err := models.EncodeMission(m)
		if err != nil {
			return err
		}
		values[models.MissionSlotKey(i)] = blob
	}
	values[models.NextResetKey] = state.NextReset.Format(time.RFC3339)

	if err := s.repo.SetValues(ctx, state.PlayerID, values); err != nil {
		return fmt.Errorf("failed to save missions: %w", err)
	}
	return nil
}

func (s *Service) publish(t models.EventType, state *models.State, slots []int) {
	missions := make([]*models.Mission, 0, len(slots))
	for _, i := range slots {
		if m := state.Slots[i]; m != nil {
			clone := *m
			missions = append(missions, &clone)
		}
	}
	s.broker.Publish(models.Event{
		Type:     t,
		PlayerID: state.PlayerID,
		Slots:    slots,
		Missions: missions,
		At:       s.clock.Now(),
	})
}

func (s *Service) snapshot(state *models.State, level int, now time.Time, warnings []string) *Snapshot {
	left := state.NextReset.Sub(now)
	if left < 0 {
		left = 0
	}
	return &Snapshot{State: state, Level: level, Now: now, TimeLeft: left, Warnings: warnings}
}

// advanceProgress adds amount without overflowing and keeps the result in
// [0, goal].
func advanceProgress(progress, amount, goal int) int {
	if progress < 0 {
		progress = 0
	}
	if progress >= goal || amount >= goal-progress {
		return goal
	}
	return progress + amount
}

func validatePlayer(playerID string) error {
	if strings.TrimSpace(playerID) == "" {
		return ErrInvalidPlayer
	}
	return nil
}

// playerLocks serializes work per player while letting different players
// run concurrently. Entries are dropped once nobody holds or waits on them.
type playerLocks struct {
	mu    sync.Mutex
	locks map[string]*playerLock
}

type playerLock struct {
	mu   sync.Mutex
	refs int
}

func (p *playerLocks) lock(playerID string) (unlock func()) {
	p.mu.Lock()
	l, ok := p.locks[playerID]
	if !ok {
		l = &playerLock{}
		p.locks[playerID] = l
	}
	l.refs++
	p.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		p.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(p.locks, playerID)
		}
		p.mu.Unlock()
	}
}
