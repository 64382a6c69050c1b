// Package inventory owns the kitchen state: stock, custom dishes, the weekly
// menu and the cooked log. Every mutation is applied to a copy, persisted,
// and swapped in under one lock so readers never observe a partial change.
package inventory

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/pantry/internal/apperr"
	"github.com/starford/pantry/internal/checksum"
	"github.com/starford/pantry/internal/models"
	"github.com/starford/pantry/internal/storage"
)

// Local storage keys, one per collection.
const (
	KeyIngredients  = "fridgeIngredients"
	KeyCustomDishes = "customDishes"
	KeyWeeklyMenu   = "weeklyMenu"
	KeyCookedDishes = "cookedDishes"
)

// Keys lists the storage keys the store owns.
var Keys = []string{KeyIngredients, KeyCustomDishes, KeyWeeklyMenu, KeyCookedDishes}

// Change kinds passed to the change hook.
const (
	ChangeLocal    = "inventory.changed"
	ChangeReplaced = "snapshot.replaced"
)

// Confirm asks the user a yes/no question. A nil Confirm declines.
type Confirm func(prompt string) bool

func (c Confirm) ask(prompt string) bool {
	return c != nil && c(prompt)
}

// Sink receives the full snapshot after every local mutation.
type Sink interface {
	Stage(snap models.Snapshot)
}

// ChangeFunc is called after the state changed, outside the store lock.
type ChangeFunc func(kind string, snap models.Snapshot)

// Store is the single owner of the kitchen collections.
type Store struct {
	provider storage.Provider
	logger   *slog.Logger
	now      func() time.Time
	newID    func() models.ID
	sink     Sink
	onChange ChangeFunc

	builtins []models.Dish

	mu      sync.Mutex
	state   models.Snapshot
	written map[string]string // key → checksum of the last value written or read
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides id generation for ingredients and custom dishes.
func WithIDGenerator(fn func() models.ID) Option {
	return func(s *Store) { s.newID = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithSink sets the receiver of staged snapshots.
func WithSink(sink Sink) Option {
	return func(s *Store) { s.sink = sink }
}

// WithOnChange sets the change hook.
func WithOnChange(fn ChangeFunc) Option {
	return func(s *Store) { s.onChange = fn }
}

// New creates an empty store backed by provider. Call Load to read the
// persisted state.
func New(provider storage.Provider, opts ...Option) *Store {
	s := &Store{
		provider: provider,
		logger:   slog.Default(),
		now:      time.Now,
		newID:    func() models.ID { return models.ID(uuid.NewString()) },
		builtins: builtinDishes(),
		state:    models.Snapshot{}.Normalize(),
		written:  make(map[string]string, len(Keys)),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SetSink replaces the sink. Used once the sync coordinator is selected.
func (s *Store) SetSink(sink Sink) {
	s.mu.Lock()
	s.sink = sink
	s.mu.Unlock()
}

// Load reads all four collections from local storage. Absent keys load as
// empty collections.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := models.Snapshot{}
	for _, key := range Keys {
		if err := s.readKey(key, &next); err != nil {
			return err
		}
	}
	s.state = next.Normalize()
	return nil
}

// Reload re-reads one key after an edit made outside this process. A value
// identical to what the store last wrote is ignored.
func (s *Store) Reload(key string) error {
	s.mu.Lock()
	before := s.written[key]
	next := s.state.Clone()
	if err := s.readKey(key, &next); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.written[key] == before {
		s.mu.Unlock()
		return nil
	}
	s.state = next.Normalize()
	snap := s.state.Clone()
	onChange := s.onChange
	s.mu.Unlock()

	s.logger.Info("store: reloaded", slog.String("key", key))
	if onChange != nil {
		onChange(ChangeReplaced, snap)
	}
	return nil
}

// readKey decodes key into the matching field of snap. Must hold mu.
func (s *Store) readKey(key string, snap *models.Snapshot) error {
	data, err := s.provider.Get(key)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			delete(s.written, key)
			clearField(key, snap)
			return nil
		}
		return fmt.Errorf("store: load %s: %w", key, err)
	}
	var target any
	switch key {
	case KeyIngredients:
		snap.Ingredients = nil
		target = &snap.Ingredients
	case KeyCustomDishes:
		snap.CustomDishes = nil
		target = &snap.CustomDishes
	case KeyWeeklyMenu:
		snap.WeeklyMenu = nil
		target = &snap.WeeklyMenu
	case KeyCookedDishes:
		snap.CookedDishes = nil
		target = &snap.CookedDishes
	default:
		return nil
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("store: decode %s: %w", key, err)
	}
	s.written[key] = checksum.Sum(data)
	return nil
}

func clearField(key string, snap *models.Snapshot) {
	switch key {
	case KeyIngredients:
		snap.Ingredients = nil
	case KeyCustomDishes:
		snap.CustomDishes = nil
	case KeyWeeklyMenu:
		snap.WeeklyMenu = nil
	case KeyCookedDishes:
		snap.CookedDishes = nil
	}
}

// persist writes every collection whose encoding changed. Must hold mu.
func (s *Store) persist(snap models.Snapshot) error {
	values := map[string]any{
		KeyIngredients:  snap.Ingredients,
		KeyCustomDishes: snap.CustomDishes,
		KeyWeeklyMenu:   snap.WeeklyMenu,
		KeyCookedDishes: snap.CookedDishes,
	}
	for _, key := range Keys {
		data, err := json.Marshal(values[key])
		if err != nil {
			return fmt.Errorf("store: encode %s: %w", key, err)
		}
		sum := checksum.Sum(data)
		if s.written[key] == sum {
			continue
		}
		if err := s.provider.Put(key, data); err != nil {
			return fmt.Errorf("store: persist %s: %w", key, err)
		}
		s.written[key] = sum
	}
	return nil
}

// mutate runs fn against a copy of the state. If fn succeeds the copy is
// persisted and becomes the current state; otherwise nothing changes.
func (s *Store) mutate(fn func(next *models.Snapshot) error) error {
	s.mu.Lock()
	next := s.state.Clone()
	if err := fn(&next); err != nil {
		s.mu.Unlock()
		return err
	}
	next = next.Normalize()
	if err := s.persist(next); err != nil {
		s.mu.Unlock()
		s.logger.Error("store: persist failed", slog.String("error", err.Error()))
		return err
	}
	s.state = next
	snap := next.Clone()
	sink, onChange := s.sink, s.onChange
	s.mu.Unlock()

	if sink != nil {
		sink.Stage(snap)
	}
	if onChange != nil {
		onChange(ChangeLocal, snap)
	}
	return nil
}

// ReplaceAll swaps in snap wholesale (last writer wins). push stages the new
// state for sync; inbound remote updates pass false.
func (s *Store) ReplaceAll(snap models.Snapshot, push bool) error {
	snap = snap.Normalize().Clone()
	s.mu.Lock()
	if err := s.persist(snap); err != nil {
		s.mu.Unlock()
		return err
	}
	s.state = snap
	out := snap.Clone()
	sink, onChange := s.sink, s.onChange
	s.mu.Unlock()

	if push && sink != nil {
		sink.Stage(out)
	}
	if onChange != nil {
		onChange(ChangeReplaced, out)
	}
	return nil
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() models.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Ingredients returns a copy of the stock list.
func (s *Store) Ingredients() []models.Ingredient {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Ingredient{}, s.state.Ingredients...)
}

// AddIngredient appends a new stock record.
func (s *Store) AddIngredient(in IngredientInput) (models.Ingredient, error) {
	in.normalize()
	if err := in.Validate(); err != nil {
		return models.Ingredient{}, invalid(err)
	}
	ing := models.Ingredient{
		ID:       s.newID(),
		Name:     in.Name,
		Type:     in.Type,
		Quantity: in.Quantity,
		Unit:     in.Unit,
	}
	err := s.mutate(func(next *models.Snapshot) error {
		next.Ingredients = append(next.Ingredients, ing)
		return nil
	})
	return ing, err
}

func indexOfIngredient(stock []models.Ingredient, id models.ID) int {
	for i, ing := range stock {
		if ing.ID == id {
			return i
		}
	}
	return -1
}

// UpdateIngredientName renames a stock record. Blank names are rejected.
func (s *Store) UpdateIngredientName(id models.ID, name string) (models.Ingredient, error) {
	in := IngredientInput{Name: name, Quantity: 1}
	in.normalize()
	if in.Name == "" {
		return models.Ingredient{}, invalid(errors.New("name: cannot be blank"))
	}
	var out models.Ingredient
	err := s.mutate(func(next *models.Snapshot) error {
		i := indexOfIngredient(next.Ingredients, id)
		if i < 0 {
			return fmt.Errorf("ingredient %s: %w", id, apperr.ErrNotFound)
		}
		next.Ingredients[i].Name = in.Name
		out = next.Ingredients[i]
		return nil
	})
	return out, err
}

// RemoveIngredient deletes a stock record after confirmation.
func (s *Store) RemoveIngredient(id models.ID, confirm Confirm) error {
	return s.mutate(func(next *models.Snapshot) error {
		i := indexOfIngredient(next.Ingredients, id)
		if i < 0 {
			return fmt.Errorf("ingredient %s: %w", id, apperr.ErrNotFound)
		}
		if !confirm.ask(fmt.Sprintf("delete %s?", next.Ingredients[i].Name)) {
			return apperr.ErrAborted
		}
		next.Ingredients = append(next.Ingredients[:i], next.Ingredients[i+1:]...)
		return nil
	})
}

// ClearIngredients empties the stock list after confirmation.
func (s *Store) ClearIngredients(confirm Confirm) error {
	return s.mutate(func(next *models.Snapshot) error {
		if !confirm.ask("clear all ingredients?") {
			return apperr.ErrAborted
		}
		next.Ingredients = []models.Ingredient{}
		return nil
	})
}

// AdjustQuantity adds delta to a record. When the result is not positive the
// record is removed if confirm agrees, and reset to exactly 1 otherwise.
// removed reports which branch was taken.
func (s *Store) AdjustQuantity(id models.ID, delta float64, confirm Confirm) (ing models.Ingredient, removed bool, err error) {
	err = s.mutate(func(next *models.Snapshot) error {
		i := indexOfIngredient(next.Ingredients, id)
		if i < 0 {
			return fmt.Errorf("ingredient %s: %w", id, apperr.ErrNotFound)
		}
		next.Ingredients[i].Quantity += delta
		if next.Ingredients[i].Quantity > 0 {
			ing = next.Ingredients[i]
			return nil
		}
		if confirm.ask(fmt.Sprintf("%s is used up, delete it?", next.Ingredients[i].Name)) {
			ing = next.Ingredients[i]
			next.Ingredients = append(next.Ingredients[:i], next.Ingredients[i+1:]...)
			removed = true
			return nil
		}
		next.Ingredients[i].Quantity = 1
		ing = next.Ingredients[i]
		return nil
	})
	return ing, removed, err
}

// AddRecognized merges recognised items into stock: each delta is added onto
// the first (name, unit) match or appended as a new record.
func (s *Store) AddRecognized(deltas []models.IngredientDelta) ([]models.Ingredient, error) {
	var out []models.Ingredient
	err := s.mutate(func(next *models.Snapshot) error {
		for _, d := range deltas {
			in := IngredientInput{Name: d.Name, Type: d.Type, Quantity: d.Quantity, Unit: d.Unit}
			in.normalize()
			if in.Quantity <= 0 {
				in.Quantity = 1
			}
			if err := in.Validate(); err != nil {
				return invalid(err)
			}
			if i := findStock(next.Ingredients, in.Name, in.Unit); i >= 0 {
				next.Ingredients[i].Quantity += in.Quantity
				out = append(out, next.Ingredients[i])
				continue
			}
			ing := models.Ingredient{ID: s.newID(), Name: in.Name, Type: in.Type, Quantity: in.Quantity, Unit: in.Unit}
			next.Ingredients = append(next.Ingredients, ing)
			out = append(out, ing)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
