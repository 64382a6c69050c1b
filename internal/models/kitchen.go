// Package models defines the domain types for Pantry.
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// IngredientType is the category an ingredient is filed under. The values
// are the strings stored by existing installs, so snapshots stay
// interchangeable across devices.
type IngredientType string

// Ingredient categories.
const (
	TypeVegetable IngredientType = "蔬菜"
	TypeMeat      IngredientType = "肉类"
	TypeSeasoning IngredientType = "调料"
	TypeOther     IngredientType = "其他"
)

// IngredientTypes lists every category in display order.
var IngredientTypes = []IngredientType{TypeVegetable, TypeMeat, TypeSeasoning, TypeOther}

var typeAliases = map[string]IngredientType{
	"vegetable": TypeVegetable,
	"meat":      TypeMeat,
	"seasoning": TypeSeasoning,
	"other":     TypeOther,
}

// ParseIngredientType accepts either a stored category value or its English
// alias. Unknown input yields ok=false.
func ParseIngredientType(s string) (IngredientType, bool) {
	for _, t := range IngredientTypes {
		if string(t) == s {
			return t, true
		}
	}
	t, ok := typeAliases[s]
	return t, ok
}

// ID is an opaque record identifier. Older installs wrote numeric ids, so
// unmarshalling accepts both JSON numbers and strings.
type ID string

// UnmarshalJSON implements json.Unmarshaler.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("models: id must be string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// Ingredient is one stock record in the fridge.
type Ingredient struct {
	ID       ID             `json:"id"`
	Name     string         `json:"name"`
	Type     IngredientType `json:"type"`
	Quantity float64        `json:"quantity"`
	Unit     string         `json:"unit"`
}

// Matches reports whether the record is stock for the given name and unit.
func (i Ingredient) Matches(name, unit string) bool {
	return i.Name == name && i.Unit == unit
}

// RequiredIngredient is one line of a dish's ingredient list.
type RequiredIngredient struct {
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity"`
	Unit     string  `json:"unit"`
}

// Dish is a recipe, either built in or user defined.
type Dish struct {
	ID          ID                   `json:"id"`
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Ingredients []RequiredIngredient `json:"ingredients"`
}

// MissingIngredient is the shortfall for one unsatisfied requirement.
type MissingIngredient struct {
	Name   string  `json:"name"`
	Needed float64 `json:"needed"`
	Unit   string  `json:"unit"`
}

// IngredientDelta is one item reported by the vision recogniser.
type IngredientDelta struct {
	Name     string         `json:"name"`
	Quantity float64        `json:"quantity"`
	Unit     string         `json:"unit"`
	Type     IngredientType `json:"type"`
}

// CookedEntry records that a dish was cooked on a given day.
type CookedEntry struct {
	Name      string `json:"name"`
	Timestamp int64  `json:"timestamp"` // epoch milliseconds
}

// CookedAt returns the entry timestamp as a time.Time.
func (e CookedEntry) CookedAt() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// UnmarshalJSON accepts the legacy bare-string form as well as the object form.
func (e *CookedEntry) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return err
		}
		*e = CookedEntry{Name: name}
		return nil
	}
	var raw struct {
		Name      string      `json:"name"`
		Timestamp json.Number `json:"timestamp"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	e.Name = raw.Name
	e.Timestamp = 0
	if raw.Timestamp != "" {
		f, err := strconv.ParseFloat(raw.Timestamp.String(), 64)
		if err != nil {
			return fmt.Errorf("models: cooked timestamp: %w", err)
		}
		e.Timestamp = int64(f)
	}
	return nil
}

// WeeklyMenu maps a date key to the dish names planned for that day.
type WeeklyMenu map[string][]string

// CookedLog maps a date key to the dishes cooked that day.
type CookedLog map[string][]CookedEntry

// Snapshot is the unit of transfer to and from a sync backend. Built-in
// dishes are never part of it.
type Snapshot struct {
	Ingredients  []Ingredient `json:"ingredients"`
	CustomDishes []Dish       `json:"customDishes"`
	WeeklyMenu   WeeklyMenu   `json:"weeklyMenu"`
	CookedDishes CookedLog    `json:"cookedDishes"`
}

// Normalize replaces nil collections with empty ones so that absent data
// serialises as [] / {} rather than null.
func (s Snapshot) Normalize() Snapshot {
	if s.Ingredients == nil {
		s.Ingredients = []Ingredient{}
	}
	if s.CustomDishes == nil {
		s.CustomDishes = []Dish{}
	}
	if s.WeeklyMenu == nil {
		s.WeeklyMenu = WeeklyMenu{}
	}
	if s.CookedDishes == nil {
		s.CookedDishes = CookedLog{}
	}
	return s
}

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{
		Ingredients:  append([]Ingredient{}, s.Ingredients...),
		CustomDishes: make([]Dish, len(s.CustomDishes)),
		WeeklyMenu:   make(WeeklyMenu, len(s.WeeklyMenu)),
		CookedDishes: make(CookedLog, len(s.CookedDishes)),
	}
	for i, d := range s.CustomDishes {
		d.Ingredients = append([]RequiredIngredient{}, d.Ingredients...)
		out.CustomDishes[i] = d
	}
	for k, v := range s.WeeklyMenu {
		out.WeeklyMenu[k] = append([]string{}, v...)
	}
	for k, v := range s.CookedDishes {
		out.CookedDishes[k] = append([]CookedEntry{}, v...)
	}
	return out
}
