package scene

import (
	"fmt"

	"github.com/autovid/autovid/internal/models"
)

// Selector decides which scenes of a project get remote animation.
// The zero set is valid: a selector may pick nothing.
type Selector interface {
	// Select returns the subset of sceneIDs to animate, preserving order.
	Select(sceneIDs []int) []int
	// Describe names the strategy for logs.
	Describe() string
}

// FirstN animates the first Count scenes in id order.
type FirstN struct {
	Count int
}

func (s FirstN) Select(sceneIDs []int) []int {
	if s.Count >= len(sceneIDs) {
		return sceneIDs
	}
	return sceneIDs[:s.Count]
}

func (s FirstN) Describe() string { return fmt.Sprintf("first %d scenes", s.Count) }

// EveryNth animates every Step-th scene, starting with the first.
type EveryNth struct {
	Step int
}

func (s EveryNth) Select(sceneIDs []int) []int {
	if s.Step <= 1 {
		return sceneIDs
	}
	var out []int
	for i, id := range sceneIDs {
		if i%s.Step == 0 {
			out = append(out, id)
		}
	}
	return out
}

func (s EveryNth) Describe() string { return fmt.Sprintf("every %d scenes", s.Step) }

// SceneList animates an explicit set of scene ids. Ids not present in the
// project are ignored.
type SceneList struct {
	IDs []int
}

func (s SceneList) Select(sceneIDs []int) []int {
	want := make(map[int]bool, len(s.IDs))
	for _, id := range s.IDs {
		want[id] = true
	}
	var out []int
	for _, id := range sceneIDs {
		if want[id] {
			out = append(out, id)
		}
	}
	return out
}

func (s SceneList) Describe() string { return fmt.Sprintf("custom scenes %v", s.IDs) }

// SelectorFor builds the configured strategy.
func SelectorFor(strategy string, firstN, everyNth int, custom []int) Selector {
	switch strategy {
	case "every_nth":
		return EveryNth{Step: everyNth}
	case "custom":
		return SceneList{IDs: custom}
	default:
		return FirstN{Count: firstN}
	}
}

// SelectScenes applies the strategy and the per-format cap. Shorts projects
// animate at most maxShorts scenes regardless of strategy; zero or negative
// means uncapped.
func SelectScenes(sel Selector, sceneIDs []int, format models.VideoFormat, maxShorts int) []int {
	picked := sel.Select(sceneIDs)
	if format == models.FormatShorts && maxShorts > 0 && len(picked) > maxShorts {
		picked = picked[:maxShorts]
	}
	return picked
}
