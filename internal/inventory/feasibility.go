package inventory

import (
	"fmt"
	"strings"

	"github.com/starford/pantry/internal/apperr"
	"github.com/starford/pantry/internal/models"
)

// findStock returns the index of the first record matching (name, unit), or -1.
// Duplicate rows for the same stock are allowed; only the first one counts.
func findStock(stock []models.Ingredient, name, unit string) int {
	for i, ing := range stock {
		if ing.Matches(name, unit) {
			return i
		}
	}
	return -1
}

// CanMakeDish reports whether stock covers every requirement of dish.
// Units must match exactly; there is no unit conversion.
func CanMakeDish(stock []models.Ingredient, dish models.Dish) bool {
	for _, req := range dish.Ingredients {
		i := findStock(stock, req.Name, req.Unit)
		if i < 0 || stock[i].Quantity < req.Quantity {
			return false
		}
	}
	return true
}

// MissingIngredients lists the shortfall for each unsatisfied requirement.
func MissingIngredients(stock []models.Ingredient, dish models.Dish) []models.MissingIngredient {
	missing := []models.MissingIngredient{}
	for _, req := range dish.Ingredients {
		have := 0.0
		if i := findStock(stock, req.Name, req.Unit); i >= 0 {
			have = stock[i].Quantity
		}
		if have >= req.Quantity {
			continue
		}
		missing = append(missing, models.MissingIngredient{
			Name:   req.Name,
			Needed: req.Quantity - have,
			Unit:   req.Unit,
		})
	}
	return missing
}

// InsufficientError is returned by CookDish when stock does not cover the dish.
type InsufficientError struct {
	Dish    string
	Missing []models.MissingIngredient
}

func (e *InsufficientError) Error() string {
	parts := make([]string, len(e.Missing))
	for i, m := range e.Missing {
		parts[i] = fmt.Sprintf("%s %g%s", m.Name, m.Needed, m.Unit)
	}
	return fmt.Sprintf("cannot cook %s: missing %s", e.Dish, strings.Join(parts, ", "))
}

// Is makes errors.Is(err, apperr.ErrInsufficient) hold.
func (e *InsufficientError) Is(target error) bool {
	return target == apperr.ErrInsufficient
}

// consume deducts every requirement of dish from stock and drops records that
// reach zero. stock must already satisfy CanMakeDish.
func consume(stock []models.Ingredient, dish models.Dish) []models.Ingredient {
	for _, req := range dish.Ingredients {
		i := findStock(stock, req.Name, req.Unit)
		if i < 0 {
			continue
		}
		stock[i].Quantity -= req.Quantity
		if stock[i].Quantity <= 0 {
			stock = append(stock[:i], stock[i+1:]...)
		}
	}
	return stock
}
