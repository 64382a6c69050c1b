package inventory

import (
	"errors"
	"testing"

	"github.com/starford/pantry/internal/apperr"
	"github.com/starford/pantry/internal/models"
)

func TestQuickAddAndRemove(t *testing.T) {
	s, _, _ := testStore(t)
	if err := s.QuickAddDish("2024-1-10", "葱油焖鸡"); err != nil {
		t.Fatal(err)
	}
	if err := s.QuickAddDish("2024-01-10", "葱油焖鸡"); !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Errorf("duplicate plan err = %v", err)
	}
	if err := s.QuickAddDish("tomorrow", "葱油焖鸡"); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("bad date err = %v", err)
	}
	if got := s.Snapshot().WeeklyMenu["2024-01-10"]; len(got) != 1 {
		t.Fatalf("menu = %v", got)
	}

	if err := s.RemoveDishFromMenu("2024-01-10", "秋葵炒素肚"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("remove unplanned err = %v", err)
	}
	if err := s.RemoveDishFromMenu("2024-01-10", "葱油焖鸡"); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.Snapshot().WeeklyMenu["2024-01-10"]; ok {
		t.Error("empty day not pruned")
	}
}

func TestDayPlanStatuses(t *testing.T) {
	s, _, _ := testStore(t)
	mustAdd(t, s, "鸡块", 2, "份")
	mustAdd(t, s, "葱", 2, "根")
	custom, _ := s.SaveDish(DishInput{Name: "临时菜", Ingredients: []models.RequiredIngredient{{Name: "盐", Quantity: 1, Unit: "g"}}})

	day := DateKey(wednesday)
	for _, name := range []string{"葱油焖鸡", "秋葵炒素肚", custom.Name} {
		if err := s.QuickAddDish(day, name); err != nil {
			t.Fatal(err)
		}
	}
	_ = s.DeleteDish(custom.ID, yes)

	plan, err := s.DayPlan(day)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{StatusReady, StatusShort, StatusMissingDish}
	for i, pd := range plan.Dishes {
		if pd.Status != want[i] {
			t.Errorf("%s status = %s, want %s", pd.Name, pd.Status, want[i])
		}
	}
	if len(plan.Dishes[1].Missing) != 3 {
		t.Errorf("short dish missing = %+v", plan.Dishes[1].Missing)
	}

	_ = s.CookDish("葱油焖鸡", yes)
	plan, _ = s.DayPlan(day)
	if plan.Dishes[0].Status != StatusCooked || plan.Dishes[0].CookedAt == nil {
		t.Errorf("cooked dish = %+v", plan.Dishes[0])
	}
}

func TestWeekAndStats(t *testing.T) {
	s, _, _ := testStore(t)
	_ = s.QuickAddDish("2024-01-14", "葱油焖鸡")

	week := s.Week(0)
	if len(week) != 7 || week[0].Date != "2024-01-08" || week[6].Date != "2024-01-14" {
		t.Fatalf("week = %+v", week)
	}
	if !week[2].Today || week[0].Weekday != "Monday" {
		t.Errorf("today/weekday flags wrong: %+v", week[2])
	}
	if len(week[6].Planned) != 1 {
		t.Errorf("sunday planned = %v", week[6].Planned)
	}
	if next := s.Week(1); next[0].Date != "2024-01-15" {
		t.Errorf("next week starts %s", next[0].Date)
	}

	mustAdd(t, s, "鸡块", 1, "份")
	mustAdd(t, s, "葱", 1, "根")
	st := s.Stats()
	if st.Ingredients != 2 || st.FeasibleDishes != 1 || st.BlockedDishes != 1 {
		t.Errorf("stats = %+v", st)
	}
}
