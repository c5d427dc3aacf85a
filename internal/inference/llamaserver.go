package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// ServerSettings configures a ServerEngine.
type ServerSettings struct {
	Binary         string   // llama-server binary, used when URL is empty
	Host           string   // Listen host for the spawned server
	Port           int      // Listen port for the spawned server
	URL            string   // Base URL of an already running server; nothing is spawned when set
	StartupTimeout time.Duration
	ExtraArgs      []string
}

// ServerEngine serves generation through a llama.cpp server's
// OpenAI-compatible completions endpoint.
type ServerEngine struct {
	settings     ServerSettings
	client       *http.Client
	pollInterval time.Duration
	logger       *zap.Logger
}

// NewServerEngine creates a server-backed engine. Completion requests carry
// no client timeout; generation runs until the server answers.
func NewServerEngine(settings ServerSettings, logger *zap.Logger) *ServerEngine {
	return &ServerEngine{
		settings:     settings,
		client:       &http.Client{},
		pollInterval: 500 * time.Millisecond,
		logger:       logger.Named("llama_server"),
	}
}

// Load starts the server with the model and waits until it reports healthy.
// When attaching to a running server the model parameters are informational.
func (e *ServerEngine) Load(ctx context.Context, modelPath string, contextSize, threadCount int) (Model, error) {
	m := &serverModel{client: e.client, logger: e.logger}

	if e.settings.URL != "" {
		m.baseURL = e.settings.URL
		e.logger.Warn("Attaching to a running inference server; model parameters are set by that server",
			zap.String("url", m.baseURL),
			zap.String("model_path", modelPath),
		)
	} else {
		if err := checkModelFile(modelPath); err != nil {
			return nil, err
		}
		binPath, err := exec.LookPath(e.settings.Binary)
		if err != nil {
			return nil, fmt.Errorf("inference server binary %q not found: %w", e.settings.Binary, err)
		}

		args := []string{
			"-m", modelPath,
			"-c", strconv.Itoa(contextSize),
			"-t", strconv.Itoa(threadCount),
			"--host", e.settings.Host,
			"--port", strconv.Itoa(e.settings.Port),
		}
		args = append(args, e.settings.ExtraArgs...)

		cmd := exec.Command(binPath, args...)
		cmd.Stdout = os.Stderr
		cmd.Stderr = os.Stderr
		if err := cmd.Start(); err != nil {
			return nil, fmt.Errorf("failed to start inference server: %w", err)
		}
		e.logger.Info("Inference server started", zap.Int("pid", cmd.Process.Pid), zap.Int("port", e.settings.Port))

		m.cmd = cmd
		m.exited = make(chan error, 1)
		go func() { m.exited <- cmd.Wait() }()
		m.baseURL = fmt.Sprintf("http://%s:%d", e.settings.Host, e.settings.Port)
	}

	if err := e.waitHealthy(ctx, m); err != nil {
		_ = m.Close()
		return nil, err
	}
	return m, nil
}

// waitHealthy polls /health until the server answers 200, the process exits
// or the startup timeout elapses.
func (e *ServerEngine) waitHealthy(ctx context.Context, m *serverModel) error {
	timeout := e.settings.StartupTimeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(waitCtx, http.MethodGet, m.baseURL+"/health", nil)
		if err != nil {
			return err
		}
		resp, err := e.client.Do(req)
		if err == nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				e.logger.Info("Inference server ready", zap.String("url", m.baseURL))
				return nil
			}
			e.logger.Debug("Inference server not ready", zap.Int("status", resp.StatusCode))
		}

		select {
		case <-waitCtx.Done():
			return fmt.Errorf("inference server at %s not ready after %v", m.baseURL, timeout)
		case exitErr := <-m.exitedChan():
			m.cmd = nil
			return fmt.Errorf("inference server exited during startup: %v", exitErr)
		case <-ticker.C:
		}
	}
}

type serverModel struct {
	baseURL string
	client  *http.Client
	cmd     *exec.Cmd
	exited  chan error
	logger  *zap.Logger
}

func (m *serverModel) exitedChan() <-chan error {
	if m.exited == nil {
		return nil
	}
	return m.exited
}

type completionRequest struct {
	Prompt    string `json:"prompt"`
	MaxTokens int    `json:"max_tokens"`
}

type completionResponse struct {
	Choices []completionChoice `json:"choices"`
	Error   *apiError          `json:"error,omitempty"`
}

type completionChoice struct {
	Index        int    `json:"index"`
	Text         string `json:"text"`
	FinishReason string `json:"finish_reason,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// Generate posts one completion request and returns its choices ordered by index.
func (m *serverModel) Generate(ctx context.Context, prompt string, maxTokens int) ([]Choice, error) {
	data, err := json.Marshal(completionRequest{Prompt: prompt, MaxTokens: maxTokens})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/v1/completions", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, getSnippet(string(body), 512))
	}

	var result completionResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w (body: %s)", err, getSnippet(string(body), 512))
	}
	if result.Error != nil {
		return nil, fmt.Errorf("API error: %s", result.Error.Message)
	}

	sort.SliceStable(result.Choices, func(i, j int) bool {
		return result.Choices[i].Index < result.Choices[j].Index
	})
	choices := make([]Choice, 0, len(result.Choices))
	for _, c := range result.Choices {
		choices = append(choices, Choice{Text: c.Text})
	}
	return choices, nil
}

// Close stops a spawned server: interrupt first, kill if it has not exited in time.
func (m *serverModel) Close() error {
	if m.cmd == nil || m.cmd.Process == nil {
		return nil
	}
	cmd := m.cmd
	m.cmd = nil

	if err := cmd.Process.Signal(os.Interrupt); err != nil && !errors.Is(err, os.ErrProcessDone) {
		m.logger.Warn("Failed to interrupt inference server", zap.Error(err))
	}
	select {
	case <-m.exited:
	case <-time.After(10 * time.Second):
		m.logger.Warn("Inference server did not stop, killing it", zap.Int("pid", cmd.Process.Pid))
		if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return fmt.Errorf("failed to kill inference server: %w", err)
		}
		<-m.exited
	}
	m.logger.Info("Inference server stopped")
	return nil
}
