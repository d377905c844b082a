package workerswhisper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/K3das/qin-bridge/asr"
)

// used for the model name in logs and metrics
const apiPrefix = "workers_whisper-"

const DefaultBaseURL = "https://api.cloudflare.com/client/v4"

type CloudflareResponse[T any] struct {
	Result   *T    `json:"result"`
	Success  bool  `json:"success"`
	Errors   []any `json:"errors"`
	Messages []any `json:"messages"`
}

type SpeechRecognitionResponse struct {
	// The transcription
	Text      string  `json:"text"`
	Vtt       string  `json:"vtt"`
	WordCount float64 `json:"word_count"`
}

type WorkersWhisperClient struct {
	account string
	token   string
	model   string
	baseURL string

	http *http.Client
}

type WorkersWhisperClientOptions struct {
	Account   string        `env:"CF_ACCOUNT_ID"`
	Token     string        `env:"CF_TOKEN"`
	ModelName string        `env:"CF_MODEL_NAME" envDefault:"@cf/openai/whisper"`
	BaseURL   string        `env:"CF_BASE_URL" envDefault:"https://api.cloudflare.com/client/v4"`
	Timeout   time.Duration `env:"TIMEOUT" envDefault:"60s"`
}

func NewWorkersWhisperClient(options WorkersWhisperClientOptions) *WorkersWhisperClient {
	w := &WorkersWhisperClient{
		account: options.Account,
		token:   options.Token,
		model:   options.ModelName,
		baseURL: options.BaseURL,
		http:    &http.Client{Timeout: options.Timeout},
	}
	if w.baseURL == "" {
		w.baseURL = DefaultBaseURL
	}
	return w
}

func (w *WorkersWhisperClient) runCF(ctx context.Context, data []byte) (*CloudflareResponse[SpeechRecognitionResponse], error) {
	url := fmt.Sprintf("%s/accounts/%s/ai/run/%s", w.baseURL, w.account, w.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+w.token)

	resp, err := w.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("non-ok http response: [%d] %s", resp.StatusCode, resp.Status)
	}

	var cfResp *CloudflareResponse[SpeechRecognitionResponse]
	err = json.NewDecoder(resp.Body).Decode(&cfResp)
	if err != nil {
		return nil, fmt.Errorf("decoding response json: %w", err)
	}
	if cfResp == nil {
		return nil, fmt.Errorf("empty response body")
	}

	return cfResp, nil
}

// Recognize uploads the audio file to Workers AI. Nothing is written to
// outputDir, the text comes back as Output.
func (w *WorkersWhisperClient) Recognize(ctx context.Context, audioPath, outputDir string) (*asr.RecognizerOutput, error) {
	data, err := os.ReadFile(audioPath)
	if err != nil {
		return nil, fmt.Errorf("reading audio: %w", err)
	}

	resp, err := w.runCF(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("performing request: %w", err)
	}

	if !resp.Success {
		return nil, fmt.Errorf("request unsuccessful: %v", resp.Errors)
	}
	if resp.Result == nil {
		return nil, fmt.Errorf("nil result")
	}

	return &asr.RecognizerOutput{
		ModelName: apiPrefix + w.model,
		Output:    resp.Result.Text,
	}, nil
}
