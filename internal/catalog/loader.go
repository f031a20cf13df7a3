package catalog

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/terra-clan/daily-missions/internal/models"
)

// DefaultRewardType is handed out when the catalog does not name one.
const DefaultRewardType = "Coins"

// rewardsFileNames are parsed as reward tables, not mission files.
var rewardsFileNames = map[string]bool{"rewards.yaml": true, "rewards.yml": true}

// Loader manages loading and caching of mission definitions and reward ranges
type Loader struct {
	mu          sync.RWMutex
	definitions map[string]*models.Definition

	rewardType string
	rewards    map[models.Difficulty]models.RewardRange
}

// NewLoader creates a loader with default reward ranges and no definitions
func NewLoader() *Loader {
	return &Loader{
		definitions: make(map[string]*models.Definition),
		rewardType:  DefaultRewardType,
		rewards: map[models.Difficulty]models.RewardRange{
			models.DifficultyEasy:   {Min: 50, Max: 100},
			models.DifficultyMedium: {Min: 100, Max: 200},
			models.DifficultyHard:   {Min: 200, Max: 400},
		},
	}
}

// LoadFromDir loads every YAML file in dir and its direct subdirectories.
// Files that fail to parse are logged and skipped.
func (l *Loader) LoadFromDir(dir string) error {
	slog.Info("loading mission catalog", "dir", dir)

	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("failed to stat catalog dir: %w", err)
	}

	var files []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			continue
		}
		files = append(files, matches...)

		subMatches, err := filepath.Glob(filepath.Join(dir, "*", pattern))
		if err != nil {
			continue
		}
		files = append(files, subMatches...)
	}
	sort.Strings(files)

	loaded := 0
	for _, file := range files {
		if rewardsFileNames[filepath.Base(file)] {
			if err := l.LoadRewardsFromFile(file); err != nil {
				slog.Warn("failed to load reward table", "file", file, "error", err)
			}
			continue
		}

		n, err := l.LoadFromFile(file)
		if err != nil {
			slog.Warn("failed to load mission file", "file", file, "error", err)
			continue
		}
		loaded += n
	}

	slog.Info("mission catalog loaded", "definitions", loaded, "files", len(files))
	return nil
}

// LoadFromFile loads the definitions listed in a single YAML file and
// returns how many were accepted. Invalid entries are skipped.
func (l *Loader) LoadFromFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read file: %w", err)
	}

	var mf missionFile
	if err := yaml.Unmarshal(data, &mf); err != nil {
		return 0, fmt.Errorf("failed to parse YAML: %w", err)
	}

	accepted := 0
	for i, entry := range mf.Missions {
		if entry.Difficulty == "" {
			entry.Difficulty = mf.Difficulty
		}

		def, err := entry.toDefinition()
		if err != nil {
			slog.Warn("skipping mission definition", "file", path, "index", i, "error", err)
			continue
		}

		if err := l.Add(def); err != nil {
			slog.Warn("skipping mission definition", "file", path, "id", def.ID, "error", err)
			continue
		}
		accepted++
	}

	return accepted, nil
}

// LoadRewardsFromFile replaces reward ranges for the difficulties it lists
func (l *Loader) LoadRewardsFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	var rf rewardsFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	ranges := make(map[models.Difficulty]models.RewardRange, len(rf.Ranges))
	for name, r := range rf.Ranges {
		d, err := models.ParseDifficulty(name)
		if err != nil {
			return err
		}
		if r.Min < 0 || r.Max < 0 {
			return fmt.Errorf("negative reward range for %s", d)
		}
		ranges[d] = r
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if rf.Type != "" {
		l.rewardType = rf.Type
	}
	for d, r := range ranges {
		l.rewards[d] = r
	}

	slog.Info("reward table loaded", "file", path, "type", l.rewardType, "ranges", len(ranges))
	return nil
}

// Add registers a definition programmatically
func (l *Loader) Add(def *models.Definition) error {
	if err := Validate(def); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.definitions[def.ID]; exists {
		return fmt.Errorf("duplicate definition id: %s", def.ID)
	}
	l.definitions[def.ID] = def
	return nil
}

// Remove removes a definition by ID
func (l *Loader) Remove(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.definitions, id)
}

// Get retrieves a definition by ID
func (l *Loader) Get(id string) *models.Definition {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.definitions[id]
}

// Find returns the first definition of a difficulty with the given type.
// Used to restore saved missions that predate definition IDs.
func (l *Loader) Find(d models.Difficulty, t models.MissionType) *models.Definition {
	for _, def := range l.ByDifficulty(d) {
		if def.Type == t {
			return def
		}
	}
	return nil
}

// List returns all definitions ordered by ID
func (l *Loader) List() []*models.Definition {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]*models.Definition, 0, len(l.definitions))
	for _, def := range l.definitions {
		result = append(result, def)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// ByDifficulty returns the definitions of one tier ordered by ID
func (l *Loader) ByDifficulty(d models.Difficulty) []*models.Definition {
	var result []*models.Definition
	for _, def := range l.List() {
		if def.Difficulty == d {
			result = append(result, def)
		}
	}
	return result
}

// RewardRange returns the configured range for a difficulty
func (l *Loader) RewardRange(d models.Difficulty) models.RewardRange {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.rewards[d]
}

// RewardType returns the currency handed out on claim
func (l *Loader) RewardType() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.rewardType
}

// Validate checks a definition's required fields
func Validate(def *models.Definition) error {
	if def == nil {
		return fmt.Errorf("definition is nil")
	}
	if def.ID == "" {
		return fmt.Errorf("definition id is required")
	}
	if !def.Difficulty.IsValid() {
		return fmt.Errorf("definition %s: invalid difficulty %q", def.ID, def.Difficulty)
	}
	if !def.Type.IsValid() {
		return fmt.Errorf("definition %s: unknown mission type %q", def.ID, def.Type)
	}
	if def.Goal < 1 {
		return fmt.Errorf("definition %s: goal must be at least 1", def.ID)
	}
	if def.LevelRequirement < 0 || def.GroupID < 0 {
		return fmt.Errorf("definition %s: level requirement and group id must not be negative", def.ID)
	}
	return nil
}

// --- YAML file structs ---

// missionFile is a YAML file holding a list of definitions. A top-level
// difficulty applies to entries that do not set their own.
type missionFile struct {
	Difficulty string           `yaml:"difficulty"`
	Missions   []definitionFile `yaml:"missions"`
}

type definitionFile struct {
	ID               string `yaml:"id"`
	Difficulty       string `yaml:"difficulty"`
	Type             string `yaml:"type"`
	Goal             *int   `yaml:"goal"`
	LevelRequirement int    `yaml:"level_requirement"`
	GroupID          int    `yaml:"group_id"`
	Description      string `yaml:"description"`
	Icon             string `yaml:"icon"`
}

func (f definitionFile) toDefinition() (*models.Definition, error) {
	d, err := models.ParseDifficulty(f.Difficulty)
	if err != nil {
		return nil, err
	}

	goal := 1
	if f.Goal != nil {
		goal = *f.Goal
	}

	id := f.ID
	if id == "" {
		id = fmt.Sprintf("%s-%s", d, strings.ToLower(f.Type))
	}

	def := &models.Definition{
		ID:               id,
		Difficulty:       d,
		Type:             models.MissionType(f.Type),
		Goal:             goal,
		LevelRequirement: f.LevelRequirement,
		GroupID:          f.GroupID,
		Description:      f.Description,
		Icon:             f.Icon,
	}
	return def, Validate(def)
}

// rewardsFile is the YAML structure of rewards.yaml
type rewardsFile struct {
	Type   string                        `yaml:"type"`
	Ranges map[string]models.RewardRange `yaml:"ranges"`
}
