// internal/models/story.go
package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

type SceneType string

const (
	SceneNarrative     SceneType = "narrative"
	SceneDecisionPoint SceneType = "decision_point"
	SceneEnding        SceneType = "ending"
)

type StoryStatus string

const (
	StoryInProgress StoryStatus = "in_progress"
	StoryFinished   StoryStatus = "finished"
)

type Language string

const (
	LanguageEnglish    Language = "english"
	LanguageChinese    Language = "chinese"
	LanguageMalay      Language = "malay"
	LanguageTagalog    Language = "tagalog"
	LanguageTamil      Language = "tamil"
	LanguageKhmer      Language = "khmer"
	LanguageVietnam    Language = "vietnam"
	LanguageThai       Language = "thai"
	LanguageIndonesian Language = "indonesian"
)

var Languages = []Language{
	LanguageEnglish, LanguageChinese, LanguageMalay, LanguageTagalog, LanguageTamil,
	LanguageKhmer, LanguageVietnam, LanguageThai, LanguageIndonesian,
}

func (l Language) Valid() bool {
	for _, known := range Languages {
		if l == known {
			return true
		}
	}
	return false
}

var (
	ErrStoryFinished = errors.New("story already finished")
	ErrSceneMismatch = errors.New("scene is not the current scene")
	ErrInvalidChoice = errors.New("choice does not match any branch")
	ErrSceneNotFound = errors.New("scene not found")
)

// AgeGroup accepts either a number or a string such as "6-8" on decode.
type AgeGroup string

func (a *AgeGroup) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*a = ""
		return nil
	}
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = AgeGroup(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*a = AgeGroup(n.String())
	return nil
}

// LowerBound returns the first number of the group, 0 when unparseable.
func (a AgeGroup) LowerBound() int {
	head := strings.SplitN(string(a), "-", 2)[0]
	n, err := strconv.Atoi(strings.TrimSpace(head))
	if err != nil {
		return 0
	}
	return n
}

type Branch struct {
	Choice     string `json:"choice"`
	Text       string `json:"teks"`
	MoralValue string `json:"moral_value"`
	Point      int    `json:"point"`
	NextScene  int    `json:"next_scene"`
}

type Scene struct {
	SceneID        int       `json:"scene_id"`
	Type           SceneType `json:"type"`
	ImgURL         *string   `json:"img_url"`
	ImgDescription string    `json:"img_description"`
	VoiceURL       *string   `json:"voice_url"`
	Content        string    `json:"content"`
	NextScene      *int      `json:"next_scene,omitempty"`
	Branch         []Branch  `json:"branch,omitempty"`
	SelectedChoice *string   `json:"selected_choice,omitempty"`
	LessonLearned  string    `json:"lesson_learned,omitempty"`
}

type Character struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type StoryFlow struct {
	TotalScene    int   `json:"total_scene"`
	DecisionPoint []int `json:"decision_point"`
	Ending        []int `json:"ending"`
}

type ChoiceRecord struct {
	SceneID int    `json:"scene_id"`
	Choice  string `json:"choice"`
	Point   int    `json:"point"`
}

type UserStory struct {
	VisitedScene []int          `json:"visited_scene"`
	Choices      []ChoiceRecord `json:"choices"`
	TotalPoint   int            `json:"total_point"`
	FinishedTime int64          `json:"finished_time"`
}

// Story is a generated book: metadata, a flat scene arena and reader progress.
// Edges between scenes are ids resolved through the arena, never pointers.
type Story struct {
	ID           string      `json:"id,omitempty"`
	UserID       string      `json:"user_id"`
	ChildID      string      `json:"child_id,omitempty"`
	Title        string      `json:"title"`
	Themes       []string    `json:"themes"`
	Language     Language    `json:"language"`
	Status       StoryStatus `json:"status"`
	AgeGroup     AgeGroup    `json:"age_group"`
	CurrentScene int         `json:"current_scene"`
	MaximumPoint int         `json:"maximum_point"`
	StoryFlow    StoryFlow   `json:"story_flow"`
	Characters   []Character `json:"characters"`
	Scenes       []Scene     `json:"scene"`
	UserStory    UserStory   `json:"user_story"`
	CreatedAt    *time.Time  `json:"created_at"`
	FinishedAt   *time.Time  `json:"finished_at"`

	// UpdatedAt is the stored row version the story was loaded at.
	UpdatedAt *time.Time `json:"-"`
}

func (s *Story) sceneIndex() map[int]int {
	idx := make(map[int]int, len(s.Scenes))
	for i, sc := range s.Scenes {
		if _, dup := idx[sc.SceneID]; !dup {
			idx[sc.SceneID] = i
		}
	}
	return idx
}

// Scene looks a scene up by id.
func (s *Story) Scene(id int) (*Scene, bool) {
	for i := range s.Scenes {
		if s.Scenes[i].SceneID == id {
			return &s.Scenes[i], true
		}
	}
	return nil, false
}

// Edges returns the outgoing scene ids of sc.
func (sc Scene) Edges() []int {
	switch sc.Type {
	case SceneDecisionPoint:
		out := make([]int, 0, len(sc.Branch))
		for _, b := range sc.Branch {
			out = append(out, b.NextScene)
		}
		return out
	case SceneEnding:
		return nil
	default:
		if sc.NextScene == nil {
			return nil
		}
		return []int{*sc.NextScene}
	}
}

// StoryValidationError lists every structural problem found in a story.
type StoryValidationError struct {
	Problems []string
}

func (e *StoryValidationError) Error() string {
	return "invalid story graph: " + strings.Join(e.Problems, "; ")
}

// Validate checks the scene arena: unique positive ids, resolvable edges,
// well-formed decision points and endings, reachability from scene 1 and
// absence of cycles.
func (s *Story) Validate() error {
	var problems []string
	add := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if len(s.Scenes) == 0 {
		return &StoryValidationError{Problems: []string{"story has no scenes"}}
	}

	seen := make(map[int]bool, len(s.Scenes))
	endings := 0
	for _, sc := range s.Scenes {
		if sc.SceneID < 1 {
			add("scene id %d is not 1-based", sc.SceneID)
		}
		if seen[sc.SceneID] {
			add("duplicate scene id %d", sc.SceneID)
		}
		seen[sc.SceneID] = true
	}

	for _, sc := range s.Scenes {
		switch sc.Type {
		case SceneNarrative:
			if sc.NextScene == nil {
				add("narrative scene %d has no next_scene", sc.SceneID)
			}
		case SceneDecisionPoint:
			if len(sc.Branch) != 2 {
				add("decision scene %d has %d branches, want 2", sc.SceneID, len(sc.Branch))
			}
		case SceneEnding:
			endings++
			if sc.NextScene != nil && *sc.NextScene != 0 {
				add("ending scene %d points to scene %d", sc.SceneID, *sc.NextScene)
			}
		default:
			add("scene %d has unknown type %q", sc.SceneID, sc.Type)
		}
		for _, next := range sc.Edges() {
			if !seen[next] {
				add("scene %d points to missing scene %d", sc.SceneID, next)
			}
		}
	}
	if endings == 0 {
		add("story has no ending scene")
	}
	if !seen[1] {
		add("story has no scene 1")
	}

	if len(problems) == 0 {
		problems = append(problems, s.walkProblems()...)
	}
	if len(problems) > 0 {
		return &StoryValidationError{Problems: problems}
	}
	return nil
}

// walkProblems runs a depth-first walk from scene 1 reporting cycles and
// unreachable scenes. Edges must already resolve.
func (s *Story) walkProblems() []string {
	const (
		unvisited = iota
		onStack
		done
	)
	idx := s.sceneIndex()
	state := make(map[int]int, len(s.Scenes))
	var problems []string

	var visit func(id int)
	visit = func(id int) {
		state[id] = onStack
		for _, next := range s.Scenes[idx[id]].Edges() {
			switch state[next] {
			case onStack:
				problems = append(problems, fmt.Sprintf("cycle through scene %d -> %d", id, next))
			case unvisited:
				visit(next)
			}
		}
		state[id] = done
	}
	visit(1)

	for _, sc := range s.Scenes {
		if state[sc.SceneID] == unvisited {
			problems = append(problems, fmt.Sprintf("scene %d is unreachable from scene 1", sc.SceneID))
		}
	}
	return problems
}

// Advance records the reader leaving sceneID. Decision points require the
// branch choice; other scenes ignore it. Reaching an ending finishes the story.
func (s *Story) Advance(sceneID int, choice string, now time.Time) error {
	if s.Status == StoryFinished {
		return ErrStoryFinished
	}
	if sceneID != s.CurrentScene {
		return fmt.Errorf("%w: got %d, current %d", ErrSceneMismatch, sceneID, s.CurrentScene)
	}
	sc, ok := s.Scene(sceneID)
	if !ok {
		return fmt.Errorf("%w: %d", ErrSceneNotFound, sceneID)
	}

	switch sc.Type {
	case SceneDecisionPoint:
		var picked *Branch
		for i := range sc.Branch {
			if sc.Branch[i].Choice == choice {
				picked = &sc.Branch[i]
				break
			}
		}
		if picked == nil {
			return fmt.Errorf("%w: %q", ErrInvalidChoice, choice)
		}
		selected := picked.Choice
		sc.SelectedChoice = &selected
		s.UserStory.Choices = append(s.UserStory.Choices, ChoiceRecord{
			SceneID: sceneID,
			Choice:  picked.Choice,
			Point:   picked.Point,
		})
		s.UserStory.TotalPoint += picked.Point
		s.CurrentScene = picked.NextScene
	case SceneEnding:
		s.Status = StoryFinished
		finished := now.UTC()
		s.FinishedAt = &finished
		if s.CreatedAt != nil {
			s.UserStory.FinishedTime = int64(finished.Sub(*s.CreatedAt).Seconds())
		}
	default:
		if sc.NextScene == nil {
			return fmt.Errorf("%w: scene %d has no next scene", ErrSceneNotFound, sceneID)
		}
		s.CurrentScene = *sc.NextScene
	}

	s.UserStory.VisitedScene = append(s.UserStory.VisitedScene, sceneID)
	return nil
}

// DeriveFlow summarizes the arena as a StoryFlow.
func (s *Story) DeriveFlow() StoryFlow {
	flow := StoryFlow{TotalScene: len(s.Scenes), DecisionPoint: []int{}, Ending: []int{}}
	for _, sc := range s.Scenes {
		switch sc.Type {
		case SceneDecisionPoint:
			flow.DecisionPoint = append(flow.DecisionPoint, sc.SceneID)
		case SceneEnding:
			flow.Ending = append(flow.Ending, sc.SceneID)
		}
	}
	return flow
}

// BestPathPoints is the highest total a reader can collect from scene 1.
// Only meaningful on a validated (acyclic) story.
func (s *Story) BestPathPoints() int {
	idx := s.sceneIndex()
	memo := make(map[int]int, len(s.Scenes))
	var best func(id int) int
	best = func(id int) int {
		if v, ok := memo[id]; ok {
			return v
		}
		i, ok := idx[id]
		if !ok {
			return 0
		}
		sc := s.Scenes[i]
		total := 0
		switch sc.Type {
		case SceneDecisionPoint:
			for n, b := range sc.Branch {
				v := b.Point + best(b.NextScene)
				if n == 0 || v > total {
					total = v
				}
			}
		case SceneNarrative:
			if sc.NextScene != nil {
				total = best(*sc.NextScene)
			}
		}
		memo[id] = total
		return total
	}
	return best(1)
}
