package menu

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type Kind string

const (
	KindInstant Kind = "instant"
	KindVoice   Kind = "voice"
)

// Template selects how a voice item's spoken input becomes a command.
type Template string

const (
	TemplatePassthrough Template = "passthrough"
	TemplateReminder    Template = "reminder"
	TemplateNote        Template = "note"
	TemplateSearch      Template = "search"
)

type Item struct {
	Key     string
	Label   string
	Kind    Kind
	Command string
	Prompt  string

	// Template is only meaningful for voice items, empty means passthrough.
	Template Template
}

// Menu is the handset's quick action menu. It is immutable once built.
type Menu struct {
	title string
	items []Item
	index map[string]int
}

// New validates items and builds a Menu, keeping the given order.
func New(title string, items ...Item) (*Menu, error) {
	m := &Menu{
		title: title,
		items: make([]Item, 0, len(items)),
		index: make(map[string]int, len(items)),
	}

	for _, item := range items {
		if err := item.validate(); err != nil {
			return nil, err
		}
		if _, ok := m.index[item.Key]; ok {
			return nil, fmt.Errorf("duplicate menu key %q", item.Key)
		}

		m.index[item.Key] = len(m.items)
		m.items = append(m.items, item)
	}

	return m, nil
}

func (i Item) validate() error {
	if i.Key == "" {
		return fmt.Errorf("menu item %q has no key", i.Label)
	}

	switch i.Kind {
	case KindInstant:
		if i.Command == "" {
			return fmt.Errorf("instant item %q needs a command", i.Key)
		}
		if i.Prompt != "" {
			return fmt.Errorf("instant item %q must not have a prompt", i.Key)
		}
		if i.Template != "" {
			return fmt.Errorf("instant item %q must not have a template", i.Key)
		}
	case KindVoice:
		if i.Prompt == "" {
			return fmt.Errorf("voice item %q needs a prompt", i.Key)
		}
		if i.Command != "" {
			return fmt.Errorf("voice item %q must not have a command", i.Key)
		}
		switch i.Template {
		case "", TemplatePassthrough, TemplateReminder, TemplateNote, TemplateSearch:
		default:
			return fmt.Errorf("voice item %q has unknown template %q", i.Key, i.Template)
		}
	default:
		return fmt.Errorf("menu item %q has unknown type %q", i.Key, i.Kind)
	}

	return nil
}

func (m *Menu) Title() string {
	return m.title
}

// Items returns a copy of the items in menu order.
func (m *Menu) Items() []Item {
	items := make([]Item, len(m.items))
	copy(items, m.items)
	return items
}

func (m *Menu) Lookup(key string) (Item, bool) {
	idx, ok := m.index[key]
	if !ok {
		return Item{}, false
	}
	return m.items[idx], true
}

func (m *Menu) Len() int {
	return len(m.items)
}

type wireItem struct {
	Label   string `json:"label"`
	Type    Kind   `json:"type"`
	Command string `json:"command,omitempty"`
	Prompt  string `json:"prompt,omitempty"`
}

// MarshalJSON renders the menu the way the handset expects it:
// {"title": ..., "items": {"1": {...}, ...}} with keys in menu order.
func (m *Menu) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer

	title, err := json.Marshal(m.title)
	if err != nil {
		return nil, fmt.Errorf("marshaling title: %w", err)
	}

	buf.WriteString(`{"title":`)
	buf.Write(title)
	buf.WriteString(`,"items":{`)

	for i, item := range m.items {
		if i > 0 {
			buf.WriteByte(',')
		}

		key, err := json.Marshal(item.Key)
		if err != nil {
			return nil, fmt.Errorf("marshaling key: %w", err)
		}
		value, err := json.Marshal(wireItem{
			Label:   item.Label,
			Type:    item.Kind,
			Command: item.Command,
			Prompt:  item.Prompt,
		})
		if err != nil {
			return nil, fmt.Errorf("marshaling item %s: %w", item.Key, err)
		}

		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}

	buf.WriteString(`}}`)

	return buf.Bytes(), nil
}
