package messages

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"strings"
	"sync"

	"github.com/google/go-jsonnet"
)

//go:embed jsonnet/*
var templates embed.FS

const (
	FeedbackNotification = "feedback_notification"
	FeedbackConsole      = "feedback_console"
)

// Provider renders the jsonnet message templates. The VM is not safe for
// concurrent use, calls are serialized.
type Provider struct {
	mu sync.Mutex
	vm *jsonnet.VM
}

type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

func NewProvider() (*Provider, error) {
	p := &Provider{
		vm: jsonnet.MakeVM(),
	}

	imports := make(map[string]jsonnet.Contents)
	err := fs.WalkDir(templates, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			content, err := templates.ReadFile(path)
			if err != nil {
				return err
			}
			imports[strings.TrimPrefix(path, "jsonnet/")] = jsonnet.MakeContentsRaw(content)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading templates: %w", err)
	}

	p.vm.Importer(&jsonnet.MemoryImporter{
		Data: imports,
	})

	_, err = p.vm.EvaluateAnonymousSnippet("check", "std.objectFieldsAll(import 'index.jsonnet')")
	if err != nil {
		return nil, fmt.Errorf("importing index: %w", err)
	}

	return p, nil
}

// Execute evaluates the named template with data and returns the resulting
// JSON.
func (p *Provider) Execute(name string, data any) (string, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("marshaling data: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.vm.TLAVar("message_key", name)
	p.vm.TLACode("data", string(jsonData))
	defer p.vm.TLAReset()

	out, err := p.vm.EvaluateAnonymousSnippet("anonymous", "function(message_key, data) (import 'index.jsonnet')[message_key](data)")
	if err != nil {
		return "", fmt.Errorf("evaluating jsonnet: %w", err)
	}

	return out, nil
}

func (p *Provider) Notification(name string, data any) (*Notification, error) {
	out, err := p.Execute(name, data)
	if err != nil {
		return nil, err
	}

	var n Notification
	if err := json.Unmarshal([]byte(out), &n); err != nil {
		return nil, fmt.Errorf("decoding notification: %w", err)
	}

	return &n, nil
}

// String renders a template that produces a single string.
func (p *Provider) String(name string, data any) (string, error) {
	out, err := p.Execute(name, data)
	if err != nil {
		return "", err
	}

	var s string
	if err := json.Unmarshal([]byte(out), &s); err != nil {
		return "", fmt.Errorf("decoding string: %w", err)
	}

	return s, nil
}
