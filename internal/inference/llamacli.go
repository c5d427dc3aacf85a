package inference

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ExecutionResult holds the outcome of one engine subprocess run.
type ExecutionResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Error    error // Setup or process failure, including a non-zero exit
}

// CLIEngine runs generation through a llama.cpp CLI binary, one process per call.
type CLIEngine struct {
	binary    string
	extraArgs []string
	logger    *zap.Logger
}

// NewCLIEngine creates an engine invoking binary (a path or a name resolved through PATH).
func NewCLIEngine(binary string, extraArgs []string, logger *zap.Logger) *CLIEngine {
	return &CLIEngine{
		binary:    binary,
		extraArgs: extraArgs,
		logger:    logger.Named("llama_cli"),
	}
}

// Load verifies the model artifact and the binary. The model itself is
// loaded by the binary on each generation.
func (e *CLIEngine) Load(ctx context.Context, modelPath string, contextSize, threadCount int) (Model, error) {
	if err := checkModelFile(modelPath); err != nil {
		return nil, err
	}
	binPath, err := exec.LookPath(e.binary)
	if err != nil {
		return nil, fmt.Errorf("inference binary %q not found: %w", e.binary, err)
	}
	e.logger.Debug("Resolved inference binary", zap.String("binary", binPath))

	return &cliModel{
		binary:      binPath,
		modelPath:   modelPath,
		contextSize: contextSize,
		threadCount: threadCount,
		extraArgs:   e.extraArgs,
		logger:      e.logger,
	}, nil
}

type cliModel struct {
	binary      string
	modelPath   string
	contextSize int
	threadCount int
	extraArgs   []string
	logger      *zap.Logger
}

// endOfTextMarker is printed by llama-cli after the completion when generation stops.
const endOfTextMarker = "[end of text]"

// args builds the command line. Parameters are passed to the binary as given.
// Conversation mode is disabled so the prompt is completed as raw text.
func (m *cliModel) args(prompt string, maxTokens int) []string {
	args := []string{
		"-m", m.modelPath,
		"-c", strconv.Itoa(m.contextSize),
		"-t", strconv.Itoa(m.threadCount),
		"-n", strconv.Itoa(maxTokens),
		"-p", prompt,
		"--no-display-prompt",
		"-no-cnv",
	}
	return append(args, m.extraArgs...)
}

// Generate runs the binary to completion. Its stdout is the single choice.
func (m *cliModel) Generate(ctx context.Context, prompt string, maxTokens int) ([]Choice, error) {
	result := m.run(ctx, m.args(prompt, maxTokens))
	if result.Error != nil {
		return nil, fmt.Errorf("%w; stderr: %s", result.Error, getSnippet(result.Stderr, 512))
	}
	return []Choice{{Text: stripEndOfText(result.Stdout)}}, nil
}

// stripEndOfText removes a trailing end-of-text marker from the binary's output.
func stripEndOfText(out string) string {
	trimmed := strings.TrimRight(out, " \t\r\n")
	if !strings.HasSuffix(trimmed, endOfTextMarker) {
		return out
	}
	return strings.TrimSuffix(trimmed, endOfTextMarker)
}

func (m *cliModel) run(ctx context.Context, args []string) ExecutionResult {
	cmd := exec.CommandContext(ctx, m.binary, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	startTime := time.Now()
	m.logger.Debug("Executing inference binary", zap.String("binary", m.binary), zap.Int("args", len(args)))
	runErr := cmd.Run()
	m.logger.Info("Inference binary finished", zap.Duration("duration", time.Since(startTime)), zap.Error(runErr))

	result := ExecutionResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			result.Error = fmt.Errorf("inference binary exited with code %d: %w", result.ExitCode, exitErr)
		} else {
			result.ExitCode = -1
			result.Error = fmt.Errorf("inference binary failed: %w", runErr)
		}
	}

	m.logger.Debug("Inference binary output",
		zap.Int("exit_code", result.ExitCode),
		zap.Int("stdout_bytes", len(result.Stdout)),
		zap.Int("stderr_bytes", len(result.Stderr)),
	)
	return result
}

// Close is a no-op; no process outlives a generation call.
func (m *cliModel) Close() error { return nil }

// checkModelFile fails when the model artifact is missing or not a regular file.
func checkModelFile(modelPath string) error {
	st, err := os.Stat(modelPath)
	if err != nil {
		return fmt.Errorf("model artifact unavailable: %w", err)
	}
	if !st.Mode().IsRegular() {
		return fmt.Errorf("model artifact %s is not a regular file", modelPath)
	}
	return nil
}

// getSnippet returns a snippet of a string, up to a max length.
func getSnippet(s string, maxLength int) string {
	if len(s) <= maxLength {
		return s
	}
	return s[:maxLength] + "... (truncated)"
}
