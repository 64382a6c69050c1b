package inventory

import (
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/pantry/internal/apperr"
	"github.com/starford/pantry/internal/models"
)

// IngredientInput is the user-supplied part of a new stock record.
type IngredientInput struct {
	Name     string                `json:"name"`
	Type     models.IngredientType `json:"type"`
	Quantity float64               `json:"quantity"`
	Unit     string                `json:"unit"`
}

// Validate checks the input after trimming.
func (in *IngredientInput) Validate() error {
	return validation.ValidateStruct(in,
		validation.Field(&in.Name, validation.Required),
		validation.Field(&in.Quantity, validation.Required, validation.Min(0.0).Exclusive()),
		validation.Field(&in.Type, validation.In(toAny(models.IngredientTypes)...)),
	)
}

// DishInput is a custom dish as submitted for saving.
type DishInput struct {
	Name        string                      `json:"name"`
	Description string                      `json:"description"`
	Ingredients []models.RequiredIngredient `json:"ingredients"`
}

// Validate checks the name, that at least one requirement is present and that
// each requirement is well formed.
func (in *DishInput) Validate() error {
	return validation.ValidateStruct(in,
		validation.Field(&in.Name, validation.Required),
		validation.Field(&in.Ingredients, validation.Required, validation.Each(validation.By(validRequirement))),
	)
}

func validRequirement(v any) error {
	req, ok := v.(models.RequiredIngredient)
	if !ok {
		return fmt.Errorf("unexpected requirement type %T", v)
	}
	return validation.ValidateStruct(&req,
		validation.Field(&req.Name, validation.Required),
		validation.Field(&req.Quantity, validation.Required, validation.Min(0.0).Exclusive()),
	)
}

func toAny(types []models.IngredientType) []any {
	out := make([]any, len(types))
	for i, t := range types {
		out[i] = t
	}
	return out
}

func invalid(err error) error {
	return fmt.Errorf("%w: %v", apperr.ErrValidation, err)
}

func (in *IngredientInput) normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.Unit = strings.TrimSpace(in.Unit)
	if in.Type == "" {
		in.Type = models.TypeOther
	} else if t, ok := models.ParseIngredientType(string(in.Type)); ok {
		in.Type = t
	}
}

func (in *DishInput) normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	for i := range in.Ingredients {
		in.Ingredients[i].Name = strings.TrimSpace(in.Ingredients[i].Name)
		in.Ingredients[i].Unit = strings.TrimSpace(in.Ingredients[i].Unit)
	}
}
