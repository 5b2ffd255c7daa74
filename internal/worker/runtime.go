package worker

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"slices"
	"strconv"
	"strings"

	"github.com/me/controlnode/pkg/model"
)

// Runner performs the work of one offered task.
type Runner interface {
	Run(ctx context.Context, offer *model.Offer) error
}

// CommandExecutor abstracts process execution for testing.
type CommandExecutor interface {
	Run(ctx context.Context, dir string, env []string, name string, args ...string) (stdout, stderr string, exitCode int, err error)
}

// osExecutor is the real implementation using os/exec.
type osExecutor struct{}

func (osExecutor) Run(ctx context.Context, dir string, env []string, name string, args ...string) (string, string, int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), env...)
	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	runErr := cmd.Run()
	stdout := stdoutBuf.String()
	stderr := stderrBuf.String()

	switch e := runErr.(type) {
	case nil:
		return stdout, stderr, 0, nil
	case *exec.ExitError:
		return stdout, stderr, e.ExitCode(), nil
	default:
		return stdout, stderr, -1, runErr
	}
}

// ShellRunner runs a configured shell command line per task type. The task
// is described to the command through KTS_* environment variables.
type ShellRunner struct {
	commands map[model.TaskType]string
	workDir  string
	exec     CommandExecutor
	logger   *slog.Logger
}

// NewShellRunner validates commands (task type name to command line) and
// returns a runner executing them in workDir.
func NewShellRunner(commands map[string]string, workDir string, logger *slog.Logger) (*ShellRunner, error) {
	return newShellRunnerWithExecutor(commands, workDir, osExecutor{}, logger)
}

func newShellRunnerWithExecutor(commands map[string]string, workDir string, ex CommandExecutor, logger *slog.Logger) (*ShellRunner, error) {
	r := &ShellRunner{
		commands: make(map[model.TaskType]string, len(commands)),
		workDir:  workDir,
		exec:     ex,
		logger:   logger.With("component", "runner"),
	}
	for name, line := range commands {
		t, err := model.ParseTaskType(name)
		if err != nil {
			return nil, fmt.Errorf("commands: %w", err)
		}
		if strings.TrimSpace(line) == "" {
			return nil, fmt.Errorf("commands: empty command for %s", t)
		}
		r.commands[t] = line
	}
	return r, nil
}

// Supports reports whether a command is configured for t.
func (r *ShellRunner) Supports(t model.TaskType) bool {
	_, ok := r.commands[t]
	return ok
}

// Types lists the task types with a configured command, in canonical order.
func (r *ShellRunner) Types() []model.TaskType {
	var out []model.TaskType
	for _, t := range model.TaskTypes() {
		if r.Supports(t) {
			out = append(out, t)
		}
	}
	return out
}

// Run executes the command for the offered task's type. A non-zero exit is an error.
func (r *ShellRunner) Run(ctx context.Context, offer *model.Offer) error {
	task := offer.Task
	line, ok := r.commands[task.Type]
	if !ok {
		return fmt.Errorf("no command for task type %s", task.Type)
	}
	if r.workDir != "" {
		if err := os.MkdirAll(r.workDir, 0o755); err != nil {
			return fmt.Errorf("create workdir %s: %w", r.workDir, err)
		}
	}

	r.logger.Debug("running command", "type", task.Type, "project", task.Project, "job", task.Job, "command", line)

	stdout, stderr, code, err := r.exec.Run(ctx, r.workDir, TaskEnv(offer), "sh", "-c", line)
	if err != nil {
		return fmt.Errorf("%s: %w", task.Type, err)
	}
	if stdout != "" {
		r.logger.Debug("command output", "type", task.Type, "stdout", stdout)
	}
	if code != 0 {
		return fmt.Errorf("%s: exit code %d: %s", task.Type, code, lastLine(stderr))
	}
	return nil
}

// TaskEnv describes an offer as environment variables.
func TaskEnv(offer *model.Offer) []string {
	task := offer.Task
	env := []string{
		"KTS_PROJECT=" + task.Project,
		"KTS_JOB=" + task.Job,
		"KTS_TASK_TYPE=" + string(task.Type),
	}
	if sim := task.Simulation; sim != nil {
		env = append(env,
			"KTS_START_STEP="+strconv.FormatInt(sim.StartStep, 10),
			"KTS_BATCH_LENGTH="+strconv.FormatInt(sim.BatchLength, 10),
			"KTS_DURATION="+strconv.FormatFloat(sim.Duration, 'g', -1, 64),
			"KTS_STEP_DURATION="+strconv.FormatFloat(sim.StepDuration, 'g', -1, 64),
		)
	}
	if len(offer.Databases) > 0 {
		db := offer.Databases[0]
		env = append(env,
			"KTS_DB_HOST="+db.Host,
			"KTS_DB_PORT="+strconv.Itoa(db.Port),
		)
	}
	return env
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	lines = slices.DeleteFunc(lines, func(l string) bool { return strings.TrimSpace(l) == "" })
	if len(lines) == 0 {
		return ""
	}
	return lines[len(lines)-1]
}
