package api

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/pantry/internal/cloudsync"
	"github.com/starford/pantry/internal/models"
)

// RenameRequest is the body of PATCH /ingredients/{id}.
type RenameRequest struct {
	Name string `json:"name" example:"小葱" validate:"required"`
}

// Validate implements validation.Validatable.
func (r RenameRequest) Validate() error {
	return validation.ValidateStruct(&r, validation.Field(&r.Name, validation.Required))
}

// AdjustRequest is the body of POST /ingredients/{id}/adjust. Confirm decides
// whether a record that drops to zero is deleted or reset to 1.
type AdjustRequest struct {
	Delta   float64 `json:"delta" example:"-1" validate:"required"`
	Confirm bool    `json:"confirm"`
}

// Validate implements validation.Validatable.
func (r AdjustRequest) Validate() error {
	return validation.ValidateStruct(&r, validation.Field(&r.Delta, validation.Required))
}

// AdjustResponse reports the record after an adjustment.
type AdjustResponse struct {
	Ingredient models.Ingredient `json:"ingredient"`
	Removed    bool              `json:"removed"`
}

// ConfirmRequest is the body of operations that only need a confirmation.
type ConfirmRequest struct {
	Confirm bool `json:"confirm"`
}

// PlanRequest is the body of POST /menu/{date}.
type PlanRequest struct {
	Name string `json:"name" example:"葱油焖鸡" validate:"required"`
}

// Validate implements validation.Validatable.
func (r PlanRequest) Validate() error {
	return validation.ValidateStruct(&r, validation.Field(&r.Name, validation.Required))
}

// PairRequest is the body of POST /sync/pair.
type PairRequest struct {
	Code string `json:"code" example:"123456" validate:"required"`
}

// Validate implements validation.Validatable.
func (r PairRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Code, validation.Required, validation.Length(cloudsync.CodeLength, cloudsync.CodeLength)),
	)
}

// ChatRequest is the body of POST /assistant/chat.
type ChatRequest struct {
	Prompt string `json:"prompt" example:"今晚吃什么" validate:"required"`
}

// Validate implements validation.Validatable.
func (r ChatRequest) Validate() error {
	return validation.ValidateStruct(&r, validation.Field(&r.Prompt, validation.Required))
}

// DishView is a dish with its current feasibility.
type DishView struct {
	models.Dish
	Builtin bool                       `json:"builtin"`
	CanMake bool                       `json:"canMake"`
	Missing []models.MissingIngredient `json:"missing"`
}

// SyncStatusResponse describes the active backend.
type SyncStatusResponse struct {
	Status    cloudsync.Status `json:"status" example:"synced"`
	Backend   string           `json:"backend" example:"firebase"`
	Available bool             `json:"available"`
}
