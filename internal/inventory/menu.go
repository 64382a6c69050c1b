package inventory

import (
	"fmt"
	"slices"
	"time"

	"github.com/starford/pantry/internal/apperr"
	"github.com/starford/pantry/internal/models"
)

// Plan statuses.
const (
	StatusMissingDish = "missing_dish"
	StatusCooked      = "cooked"
	StatusReady       = "ready"
	StatusShort       = "short"
)

// PlannedDish is one menu entry of a day with its current state.
type PlannedDish struct {
	Name     string                     `json:"name"`
	Status   string                     `json:"status"`
	CookedAt *time.Time                 `json:"cookedAt,omitempty"`
	Missing  []models.MissingIngredient `json:"missing,omitempty"`
}

// DayPlan is the menu of one day.
type DayPlan struct {
	Date   string        `json:"date"`
	Dishes []PlannedDish `json:"dishes"`
}

// WeekDay summarises one day of the week view.
type WeekDay struct {
	Date    string   `json:"date"`
	Weekday string   `json:"weekday"`
	Today   bool     `json:"today"`
	Planned []string `json:"planned"`
	Cooked  []string `json:"cooked"`
}

// Stats are the dashboard counters.
type Stats struct {
	Ingredients    int `json:"ingredients"`
	FeasibleDishes int `json:"feasibleDishes"`
	BlockedDishes  int `json:"blockedDishes"`
}

// canonicalKey validates a day key and returns its padded form.
func (s *Store) canonicalKey(key string) (string, error) {
	t, err := ParseDateKey(key, s.now().Location())
	if err != nil {
		return "", fmt.Errorf("%w: date %q", apperr.ErrValidation, key)
	}
	return DateKey(t), nil
}

// QuickAddDish appends name to the menu of date. Planning a dish that is
// already on that day fails with ErrAlreadyExists.
func (s *Store) QuickAddDish(date, name string) error {
	key, err := s.canonicalKey(date)
	if err != nil {
		return err
	}
	if name == "" {
		return fmt.Errorf("%w: dish name required", apperr.ErrValidation)
	}
	return s.mutate(func(next *models.Snapshot) error {
		if slices.Contains(next.WeeklyMenu[key], name) {
			return fmt.Errorf("%s on %s: %w", name, key, apperr.ErrAlreadyExists)
		}
		next.WeeklyMenu[key] = append(next.WeeklyMenu[key], name)
		return nil
	})
}

// RemoveDishFromMenu removes name from date, dropping the day when it empties.
func (s *Store) RemoveDishFromMenu(date, name string) error {
	key, err := s.canonicalKey(date)
	if err != nil {
		return err
	}
	return s.mutate(func(next *models.Snapshot) error {
		day := next.WeeklyMenu[key]
		i := slices.Index(day, name)
		if i < 0 {
			return fmt.Errorf("%s on %s: %w", name, key, apperr.ErrNotFound)
		}
		day = slices.Delete(day, i, i+1)
		if len(day) == 0 {
			delete(next.WeeklyMenu, key)
		} else {
			next.WeeklyMenu[key] = day
		}
		return nil
	})
}

// DayPlan reports every dish planned for date with its status.
func (s *Store) DayPlan(date string) (DayPlan, error) {
	key, err := s.canonicalKey(date)
	if err != nil {
		return DayPlan{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	plan := DayPlan{Date: key, Dishes: []PlannedDish{}}
	cooked := s.state.CookedDishes[key]
	for _, name := range s.state.WeeklyMenu[key] {
		pd := PlannedDish{Name: name}
		dish, ok := s.findDish(s.state, name)
		switch {
		case !ok:
			pd.Status = StatusMissingDish
		case slices.ContainsFunc(cooked, func(e models.CookedEntry) bool { return e.Name == name }):
			pd.Status = StatusCooked
			for _, e := range cooked {
				if e.Name == name && e.Timestamp > 0 {
					at := e.CookedAt()
					pd.CookedAt = &at
					break
				}
			}
		case CanMakeDish(s.state.Ingredients, dish):
			pd.Status = StatusReady
		default:
			pd.Status = StatusShort
			pd.Missing = MissingIngredients(s.state.Ingredients, dish)
		}
		plan.Dishes = append(plan.Dishes, pd)
	}
	return plan, nil
}

// Week returns the seven days of the current week shifted by offset weeks.
func (s *Store) Week(offset int) []WeekDay {
	now := s.now()
	today := DateKey(now)

	s.mu.Lock()
	defer s.mu.Unlock()

	days := WeekDays(now, offset)
	out := make([]WeekDay, len(days))
	for i, d := range days {
		key := DateKey(d)
		cooked := []string{}
		for _, e := range s.state.CookedDishes[key] {
			cooked = append(cooked, e.Name)
		}
		out[i] = WeekDay{
			Date:    key,
			Weekday: d.Weekday().String(),
			Today:   key == today,
			Planned: append([]string{}, s.state.WeeklyMenu[key]...),
			Cooked:  cooked,
		}
	}
	return out
}

// Stats counts stock records and feasible versus blocked dishes.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{Ingredients: len(s.state.Ingredients)}
	for _, d := range s.allDishes(s.state) {
		if CanMakeDish(s.state.Ingredients, d) {
			st.FeasibleDishes++
		} else {
			st.BlockedDishes++
		}
	}
	return st
}
