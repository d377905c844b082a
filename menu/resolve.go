package menu

import (
	"errors"
	"fmt"
)

var ErrUnknownAction = errors.New("unknown action")

type UnknownActionError struct {
	Key string
}

func (e *UnknownActionError) Error() string {
	return fmt.Sprintf("Unknown action: %s", e.Key)
}

func (e *UnknownActionError) Is(target error) bool {
	return target == ErrUnknownAction
}

// ActionRequest is what the handset posts when a menu button is pressed.
type ActionRequest struct {
	Action     string `json:"action"`
	VoiceInput string `json:"voice_input"`
}

// Resolve turns an action request into the command sent to the chat backend.
//
// Only an unknown key is an error. An empty voice input for a voice item is
// passed through so callers can surface empty transcripts.
func Resolve(m *Menu, req ActionRequest) (string, error) {
	item, ok := m.Lookup(req.Action)
	if !ok {
		return "", &UnknownActionError{Key: req.Action}
	}

	if item.Kind == KindInstant {
		return item.Command, nil
	}

	switch item.Template {
	case TemplateReminder:
		return "Set a reminder: " + req.VoiceInput, nil
	case TemplateNote:
		return "Add this to today's memory/notes: " + req.VoiceInput, nil
	case TemplateSearch:
		return "Search the web for: " + req.VoiceInput, nil
	default:
		return req.VoiceInput, nil
	}
}
