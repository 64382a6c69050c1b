package inventory

import (
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	"github.com/starford/pantry/internal/apperr"
)

var phraseParser = newPhraseParser()

func newPhraseParser() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}

// ResolveDate turns a day key or an English phrase such as "tomorrow" or
// "next friday" into a day key, relative to now. Empty input means today.
func ResolveDate(input string, now time.Time) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return DateKey(now), nil
	}
	if t, err := ParseDateKey(input, now.Location()); err == nil {
		return DateKey(t), nil
	}
	r, err := phraseParser.Parse(input, now)
	if err != nil {
		return "", fmt.Errorf("%w: date %q: %v", apperr.ErrValidation, input, err)
	}
	if r == nil {
		return "", fmt.Errorf("%w: date %q not understood", apperr.ErrValidation, input)
	}
	return DateKey(r.Time), nil
}

// ResolveDate resolves input against the store clock.
func (s *Store) ResolveDate(input string) (string, error) {
	return ResolveDate(input, s.now())
}
