package detector

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// DefaultIdleTimeout is how long the worker process may sit unused before it
// is shut down.
const DefaultIdleTimeout = 30 * time.Second

// SubprocessConfig holds options for SubprocessModel.
type SubprocessConfig struct {
	// Script is the worker script path. Empty means search the usual
	// locations for scripts/yolo_service.py.
	Script string
	// Python is the interpreter. Empty means prefer a venv, then python3.
	Python string
	// ModelPath is passed to the worker as its first argument.
	ModelPath   string
	IdleTimeout time.Duration
}

// SubprocessModel implements Model using a Python YOLO worker process.
//
// Each request is a 4-byte big-endian length followed by a JPEG frame on the
// worker's stdin; each reply is one JSON line on stdout.
type SubprocessModel struct {
	config    SubprocessConfig
	script    string
	python    string
	logger    *zap.Logger
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stdout    *bufio.Reader
	mu        sync.Mutex
	started   bool
	lastUsed  time.Time
	idleTimer *time.Timer
}

// NewSubprocessModel creates a new subprocess model.
// The Python process is started lazily on first prediction.
func NewSubprocessModel(config SubprocessConfig, logger *zap.Logger) (*SubprocessModel, error) {
	script := config.Script
	if script == "" {
		script = findWorkerScript()
	}
	if script == "" {
		return nil, fmt.Errorf("yolo_service.py not found")
	}
	if _, err := os.Stat(script); err != nil {
		return nil, fmt.Errorf("worker script: %w", err)
	}

	python := config.Python
	if python == "" {
		python = findVenvPython()
	}
	if python == "" {
		python = "python3"
	}

	if config.IdleTimeout <= 0 {
		config.IdleTimeout = DefaultIdleTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &SubprocessModel{
		config: config,
		script: script,
		python: python,
		logger: logger,
	}, nil
}

// Predict sends the frame to the worker and parses its detections.
func (m *SubprocessModel) Predict(ctx context.Context, frame *gocv.Mat) ([]RawDetection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := m.ensureStarted(); err != nil {
		return nil, err
	}

	data, err := encodeJPEG(frame)
	if err != nil {
		return nil, err
	}

	done := make(chan exchangeResult, 1)
	stdin, stdout := m.stdin, m.stdout
	go func() {
		line, err := exchange(stdin, stdout, data)
		done <- exchangeResult{line: line, err: err}
	}()

	var line string
	select {
	case <-ctx.Done():
		// The worker may be stuck mid-frame; it cannot be reused.
		m.kill()
		return nil, ctx.Err()
	case res := <-done:
		if res.err != nil {
			m.shutdown()
			return nil, res.err
		}
		line = res.line
	}

	var response wireResponse
	if err := json.Unmarshal([]byte(line), &response); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	m.lastUsed = time.Now()
	m.resetIdleTimer()

	return response.toRaw()
}

// Close shuts down the Python process.
func (m *SubprocessModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shutdown()
}

type exchangeResult struct {
	line string
	err  error
}

// exchange writes one length-prefixed frame and reads the reply line.
func exchange(stdin io.Writer, stdout *bufio.Reader, data []byte) (string, error) {
	length := make([]byte, 4)
	binary.BigEndian.PutUint32(length, uint32(len(data)))

	if _, err := stdin.Write(length); err != nil {
		return "", fmt.Errorf("write length: %w", err)
	}
	if _, err := stdin.Write(data); err != nil {
		return "", fmt.Errorf("write data: %w", err)
	}

	line, err := stdout.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	return line, nil
}

// kill terminates the worker without waiting for it to drain its input.
func (m *SubprocessModel) kill() {
	if !m.started {
		return
	}
	if err := m.cmd.Process.Kill(); err != nil {
		m.logger.Warn("failed to kill yolo worker", zap.Error(err))
	}
	m.shutdown()
}

func (m *SubprocessModel) ensureStarted() error {
	if m.started {
		return nil
	}

	args := []string{m.script}
	if m.config.ModelPath != "" {
		args = append(args, m.config.ModelPath)
	}
	m.cmd = exec.Command(m.python, args...)

	stdin, err := m.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}

	stdout, err := m.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}

	// Worker diagnostics go straight to our stderr
	m.cmd.Stderr = os.Stderr

	if err := m.cmd.Start(); err != nil {
		return fmt.Errorf("start yolo worker: %w", err)
	}

	m.stdin = stdin
	m.stdout = bufio.NewReader(stdout)
	m.started = true
	m.lastUsed = time.Now()

	m.logger.Info("yolo worker started",
		zap.String("python", m.python),
		zap.String("script", m.script),
		zap.Int("pid", m.cmd.Process.Pid),
	)
	return nil
}

func (m *SubprocessModel) shutdown() error {
	if !m.started {
		return nil
	}

	if m.idleTimer != nil {
		m.idleTimer.Stop()
		m.idleTimer = nil
	}

	if m.stdin != nil {
		m.stdin.Close()
	}

	err := m.cmd.Wait()
	m.started = false
	m.cmd = nil
	m.stdin = nil
	m.stdout = nil

	m.logger.Info("yolo worker stopped", zap.Error(err))
	return err
}

func (m *SubprocessModel) resetIdleTimer() {
	if m.idleTimer != nil {
		m.idleTimer.Stop()
	}
	m.idleTimer = time.AfterFunc(m.config.IdleTimeout, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.shutdown()
	})
}

func findWorkerScript() string {
	execPath, err := os.Executable()
	var execDir string
	if err == nil {
		execDir = filepath.Dir(execPath)
	}

	candidates := []string{
		"scripts/yolo_service.py",
		"../scripts/yolo_service.py",
		filepath.Join(execDir, "scripts/yolo_service.py"),
		filepath.Join(os.Getenv("HOME"), ".spacevision/scripts/yolo_service.py"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			absPath, err := filepath.Abs(path)
			if err == nil {
				return absPath
			}
			return path
		}
	}
	return ""
}

// findVenvPython looks for a Python interpreter in a virtual environment
// next to the working directory, the executable or ~/.spacevision.
func findVenvPython() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}
	execDir := filepath.Dir(execPath)

	candidates := []string{
		"venv/bin/python",
		"../venv/bin/python",
		"../../venv/bin/python",
		filepath.Join(execDir, "venv/bin/python"),
		filepath.Join(os.Getenv("HOME"), ".spacevision/venv/bin/python"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			absPath, err := filepath.Abs(path)
			if err == nil {
				return absPath
			}
			return path
		}
	}
	return ""
}
