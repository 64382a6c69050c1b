package inventory

import (
	"fmt"
	"slices"
	"strings"

	"github.com/starford/pantry/internal/apperr"
	"github.com/starford/pantry/internal/models"
)

// Dishes returns the built-in catalog followed by the custom dishes.
func (s *Store) Dishes() []models.Dish {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.allDishes(s.state)
}

// CustomDishes returns only the user-defined dishes.
func (s *Store) CustomDishes() []models.Dish {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone().CustomDishes
}

// IsBuiltin reports whether id names a built-in dish.
func (s *Store) IsBuiltin(id models.ID) bool {
	return isBuiltin(s.builtins, id)
}

func (s *Store) allDishes(snap models.Snapshot) []models.Dish {
	out := make([]models.Dish, 0, len(s.builtins)+len(snap.CustomDishes))
	out = append(out, s.builtins...)
	out = append(out, snap.CustomDishes...)
	return out
}

func (s *Store) findDish(snap models.Snapshot, name string) (models.Dish, bool) {
	for _, d := range s.allDishes(snap) {
		if d.Name == name {
			return d, true
		}
	}
	return models.Dish{}, false
}

// FindDish looks a dish up by name across both catalogs.
func (s *Store) FindDish(name string) (models.Dish, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.findDish(s.state, name)
	if !ok {
		return models.Dish{}, fmt.Errorf("dish %q: %w", name, apperr.ErrNotFound)
	}
	return d, nil
}

// CanMake reports whether the named dish is feasible with current stock.
func (s *Store) CanMake(name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.findDish(s.state, name)
	if !ok {
		return false, fmt.Errorf("dish %q: %w", name, apperr.ErrNotFound)
	}
	return CanMakeDish(s.state.Ingredients, d), nil
}

// Missing returns the shortfall list for the named dish.
func (s *Store) Missing(name string) ([]models.MissingIngredient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.findDish(s.state, name)
	if !ok {
		return nil, fmt.Errorf("dish %q: %w", name, apperr.ErrNotFound)
	}
	return MissingIngredients(s.state.Ingredients, d), nil
}

// SaveDish adds a custom dish. Names must be unique across both catalogs.
func (s *Store) SaveDish(in DishInput) (models.Dish, error) {
	in.normalize()
	if err := in.Validate(); err != nil {
		return models.Dish{}, invalid(err)
	}
	var dish models.Dish
	err := s.mutate(func(next *models.Snapshot) error {
		if _, exists := s.findDish(*next, in.Name); exists {
			return fmt.Errorf("dish %q: %w", in.Name, apperr.ErrAlreadyExists)
		}
		dish = models.Dish{
			ID:          "custom_" + s.newID(),
			Name:        in.Name,
			Description: in.Description,
			Ingredients: append([]models.RequiredIngredient{}, in.Ingredients...),
		}
		next.CustomDishes = append(next.CustomDishes, dish)
		return nil
	})
	return dish, err
}

// DeleteDish removes a custom dish after confirmation. Menu entries that name
// it are left in place and show up as dangling in day plans.
func (s *Store) DeleteDish(id models.ID, confirm Confirm) error {
	if isBuiltin(s.builtins, id) {
		return fmt.Errorf("dish %s: %w", id, apperr.ErrReadOnly)
	}
	return s.mutate(func(next *models.Snapshot) error {
		i := slices.IndexFunc(next.CustomDishes, func(d models.Dish) bool { return d.ID == id })
		if i < 0 {
			return fmt.Errorf("dish %s: %w", id, apperr.ErrNotFound)
		}
		if !confirm.ask(fmt.Sprintf("delete dish %s?", next.CustomDishes[i].Name)) {
			return apperr.ErrAborted
		}
		next.CustomDishes = slices.Delete(next.CustomDishes, i, i+1)
		return nil
	})
}

// CookDish consumes the dish's ingredients and logs it for today. Either every
// requirement is deducted or, on any failure or a declined confirmation,
// nothing changes. Cooking the same dish twice in a day deducts twice but
// logs once.
func (s *Store) CookDish(name string, confirm Confirm) error {
	return s.mutate(func(next *models.Snapshot) error {
		dish, ok := s.findDish(*next, name)
		if !ok {
			return fmt.Errorf("dish %q: %w", name, apperr.ErrNotFound)
		}
		if !CanMakeDish(next.Ingredients, dish) {
			return &InsufficientError{Dish: name, Missing: MissingIngredients(next.Ingredients, dish)}
		}
		lines := make([]string, len(dish.Ingredients))
		for i, req := range dish.Ingredients {
			lines[i] = fmt.Sprintf("%s %g%s", req.Name, req.Quantity, req.Unit)
		}
		if !confirm.ask(fmt.Sprintf("cook %s? this uses:\n%s", name, strings.Join(lines, "\n"))) {
			return apperr.ErrAborted
		}

		next.Ingredients = consume(next.Ingredients, dish)

		now := s.now()
		key := DateKey(now)
		logged := slices.ContainsFunc(next.CookedDishes[key], func(e models.CookedEntry) bool { return e.Name == name })
		if !logged {
			next.CookedDishes[key] = append(next.CookedDishes[key], models.CookedEntry{Name: name, Timestamp: now.UnixMilli()})
		}
		return nil
	})
}

// UnmarkDishAsCooked removes today's cooked entry for name. Consumed stock is
// not restored.
func (s *Store) UnmarkDishAsCooked(name string, confirm Confirm) error {
	return s.mutate(func(next *models.Snapshot) error {
		key := DateKey(s.now())
		entries := next.CookedDishes[key]
		i := slices.IndexFunc(entries, func(e models.CookedEntry) bool { return e.Name == name })
		if i < 0 {
			return fmt.Errorf("cooked entry %q: %w", name, apperr.ErrNotFound)
		}
		if !confirm.ask(fmt.Sprintf("undo cooked state of %s? ingredients will not be restored", name)) {
			return apperr.ErrAborted
		}
		entries = slices.Delete(entries, i, i+1)
		if len(entries) == 0 {
			delete(next.CookedDishes, key)
		} else {
			next.CookedDishes[key] = entries
		}
		return nil
	})
}
