package scene

import (
	"reflect"
	"testing"

	"github.com/autovid/autovid/internal/models"
)

func TestFirstN(t *testing.T) {
	ids := []int{1, 2, 3, 4, 5}

	if got := (FirstN{Count: 3}).Select(ids); !reflect.DeepEqual(got, []int{1, 2, 3}) {
		t.Errorf("FirstN(3) = %v", got)
	}
	if got := (FirstN{Count: 10}).Select(ids); !reflect.DeepEqual(got, ids) {
		t.Errorf("FirstN(10) = %v, want all", got)
	}
}

func TestEveryNth(t *testing.T) {
	ids := []int{1, 2, 3, 4, 5, 6, 7}

	if got := (EveryNth{Step: 2}).Select(ids); !reflect.DeepEqual(got, []int{1, 3, 5, 7}) {
		t.Errorf("EveryNth(2) = %v", got)
	}
	if got := (EveryNth{Step: 1}).Select(ids); !reflect.DeepEqual(got, ids) {
		t.Errorf("EveryNth(1) = %v, want all", got)
	}
}

func TestSceneList(t *testing.T) {
	ids := []int{1, 2, 3, 4, 5}

	got := (SceneList{IDs: []int{4, 2, 99}}).Select(ids)
	if !reflect.DeepEqual(got, []int{2, 4}) {
		t.Errorf("SceneList = %v, want [2 4] in project order", got)
	}
}

func TestSelectorFor(t *testing.T) {
	if _, ok := SelectorFor("every_nth", 5, 2, nil).(EveryNth); !ok {
		t.Error("expected EveryNth for every_nth")
	}
	if _, ok := SelectorFor("custom", 5, 2, []int{1}).(SceneList); !ok {
		t.Error("expected SceneList for custom")
	}
	if _, ok := SelectorFor("first_n", 5, 2, nil).(FirstN); !ok {
		t.Error("expected FirstN for first_n")
	}
	if _, ok := SelectorFor("", 5, 2, nil).(FirstN); !ok {
		t.Error("expected FirstN as default")
	}
}

func TestSelectScenesShortsCap(t *testing.T) {
	ids := []int{1, 2, 3, 4, 5, 6}
	sel := FirstN{Count: 5}

	long := SelectScenes(sel, ids, models.FormatLong, 3)
	if len(long) != 5 {
		t.Errorf("long format: got %d scenes, want 5", len(long))
	}

	shorts := SelectScenes(sel, ids, models.FormatShorts, 3)
	if !reflect.DeepEqual(shorts, []int{1, 2, 3}) {
		t.Errorf("shorts format: got %v, want capped [1 2 3]", shorts)
	}

	wider := SelectScenes(sel, ids, models.FormatShorts, 4)
	if len(wider) != 4 {
		t.Errorf("shorts cap 4: got %d scenes, want 4", len(wider))
	}
	uncapped := SelectScenes(sel, ids, models.FormatShorts, 0)
	if len(uncapped) != 5 {
		t.Errorf("shorts cap 0 must not cap, got %d scenes", len(uncapped))
	}
}
