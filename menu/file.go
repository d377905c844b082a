package menu

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type fileItem struct {
	Key      string   `yaml:"key"`
	Label    string   `yaml:"label"`
	Type     Kind     `yaml:"type"`
	Command  string   `yaml:"command"`
	Prompt   string   `yaml:"prompt"`
	Template Template `yaml:"template"`
}

type file struct {
	Title string     `yaml:"title"`
	Items []fileItem `yaml:"items"`
}

// LoadFile reads a YAML menu file. Items are kept in file order.
//
//	title: "🤖 QinBot"
//	items:
//	  - key: "1"
//	    label: "📅 Calendar"
//	    type: instant
//	    command: "What's on my calendar today?"
//	  - key: "2"
//	    label: "⏰ Remind"
//	    type: voice
//	    prompt: "What should I remind you about?"
//	    template: reminder
func LoadFile(path string) (*Menu, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading menu file: %w", err)
	}

	return Parse(data)
}

func Parse(data []byte) (*Menu, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing menu file: %w", err)
	}

	if f.Title == "" {
		f.Title = DefaultTitle
	}
	if len(f.Items) == 0 {
		return nil, fmt.Errorf("menu has no items")
	}

	items := make([]Item, 0, len(f.Items))
	for _, fi := range f.Items {
		items = append(items, Item{
			Key:      fi.Key,
			Label:    fi.Label,
			Kind:     fi.Type,
			Command:  fi.Command,
			Prompt:   fi.Prompt,
			Template: fi.Template,
		})
	}

	m, err := New(f.Title, items...)
	if err != nil {
		return nil, fmt.Errorf("validating menu: %w", err)
	}

	return m, nil
}
