package inventory

import (
	"errors"
	"testing"

	"github.com/starford/pantry/internal/apperr"
)

func TestResolveDate(t *testing.T) {
	cases := map[string]string{
		"":           "2024-01-10",
		"2024-1-5":   "2024-01-05",
		"2024-02-29": "2024-02-29",
		"today":      "2024-01-10",
		"tomorrow":   "2024-01-11",
	}
	for in, want := range cases {
		got, err := ResolveDate(in, wednesday)
		if err != nil {
			t.Errorf("ResolveDate(%q): %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ResolveDate(%q) = %s, want %s", in, got, want)
		}
	}

	if _, err := ResolveDate("banana", wednesday); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("nonsense err = %v", err)
	}
}
