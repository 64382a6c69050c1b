package mcpserver

import (
	"strings"

	"github.com/starford/pantry/internal/assistant"
)

// Conventions describes the data rules an LLM client should follow when it
// adds stock or plans meals.
var Conventions = `# Pantry conventions

## Ingredients

- A stock record is identified by its (name, unit) pair. "葱 1 根" and
  "葱 5 g" are different records and never satisfy each other.
- Quantities are positive numbers. Adding stock for an existing
  (name, unit) pair adds onto that record.
- Categories: 蔬菜, 肉类, 调料, 其他. English aliases vegetable, meat,
  seasoning and other are accepted. Missing category means 其他.
- Units reported by photo recognition: ` + strings.Join(assistant.Units, "、") + `.

## Dishes

- Built-in dishes are read-only. Custom dish names are unique.
- Cooking a dish deducts every required ingredient or nothing at all.
  It needs confirm=true.

## Dates

- Day keys have the form 2006-01-02 in local time.
- Planning tools also accept phrases such as "today", "tomorrow" or
  "next friday".
`
