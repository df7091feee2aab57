package providers

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/deskrecall/deskrecalld/internal/apperr"
	"github.com/deskrecall/deskrecalld/internal/llm"
	"github.com/deskrecall/deskrecalld/internal/procgroup"
)

const cliStderrTailLines = 40

// CLI implements llm.Provider by shelling out to a local command-line model
// SDK (e.g. a vendor's CLI, or a wrapper script around one) rather than
// calling an HTTP endpoint. The Orchestrator's retry/repair/audit policy
// applies identically; only Call differs.
//
// Per SPEC_FULL.md §4.E, the subprocess is spawned with a hidden console
// window on Windows, a wall-clock timeout, stderr captured and its tail
// carried in the returned error on timeout or nonzero exit (the Orchestrator
// records that error text in the LLM call audit row), and an explicitly
// constructed child environment so the
// daemon's own environment (which may carry unrelated secrets) never leaks
// into the child.
type CLI struct {
	command     string
	args        []string
	model       string
	timeout     time.Duration
	extraEnv    map[string]string
	promptViaArg bool // true: prompt passed as final arg; false: piped on stdin
}

func NewCLI() *CLI {
	return &CLI{timeout: 2 * time.Minute}
}

func (p *CLI) Name() string { return "cli" }

// Configure accepts {"command", "args" ([]any of string), "model",
// "timeout_seconds", "env" (map[string]any of string), "prompt_via_arg"
// (bool)}.
func (p *CLI) Configure(settings map[string]any) error {
	command, _ := settings["command"].(string)
	if command == "" {
		return apperr.New(apperr.KindConfigInvalid, "cli provider requires command")
	}
	p.command = command
	p.model, _ = settings["model"].(string)

	if rawArgs, ok := settings["args"].([]any); ok {
		p.args = make([]string, 0, len(rawArgs))
		for _, a := range rawArgs {
			if s, ok := a.(string); ok {
				p.args = append(p.args, s)
			}
		}
	}

	if secs, ok := settings["timeout_seconds"].(float64); ok && secs > 0 {
		p.timeout = time.Duration(secs) * time.Second
	}

	if env, ok := settings["env"].(map[string]any); ok {
		p.extraEnv = make(map[string]string, len(env))
		for k, v := range env {
			if s, ok := v.(string); ok {
				p.extraEnv[k] = s
			}
		}
	}

	if v, ok := settings["prompt_via_arg"].(bool); ok {
		p.promptViaArg = v
	}
	return nil
}

func (p *CLI) IsConfigured() bool { return p.command != "" }

// Capabilities reports path-reference-only image payloads: CLI SDKs take
// file paths, not embedded bytes, since they run on the same filesystem as
// the frames they analyze.
func (p *CLI) Capabilities() llm.Capabilities {
	return llm.Capabilities{AcceptsInlineImages: false, AcceptsImageURLs: true, SupportsDaySummary: true}
}

func (p *CLI) Call(ctx context.Context, req llm.Request) (llm.Response, error) {
	if !p.IsConfigured() {
		return llm.Response{}, apperr.New(apperr.KindLLMAuth, "cli provider not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	prompt := req.SystemPrompt + "\n\n" + req.UserPrompt
	for _, f := range req.Frames {
		prompt += "\n" + f.Path
	}

	args := append([]string{}, p.args...)
	if p.promptViaArg {
		args = append(args, prompt)
	}

	cmd := exec.CommandContext(ctx, p.command, args...)
	cmd.Env = p.childEnv()
	procgroup.Set(cmd)
	procgroup.HideWindow(cmd)

	if !p.promptViaArg {
		cmd.Stdin = strings.NewReader(prompt)
	}

	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return llm.Response{}, apperr.Wrap(apperr.KindLLMUnavailable, "attach cli provider stderr pipe", err)
	}

	tail := make([]string, 0, cliStderrTailLines)
	if err := cmd.Start(); err != nil {
		return llm.Response{}, apperr.Wrap(apperr.KindLLMUnavailable, "start cli provider subprocess: "+p.command, err)
	}

	done := make(chan struct{})
	go func() {
		sc := bufio.NewScanner(stderr)
		for sc.Scan() {
			tail = append(tail, sc.Text())
			if len(tail) > cliStderrTailLines {
				tail = tail[1:]
			}
		}
		close(done)
	}()

	waitErr := cmd.Wait()
	<-done

	if ctx.Err() != nil {
		if cmd.Process != nil {
			_ = procgroup.KillGroup(cmd.Process.Pid, 5*time.Second, 10*time.Second)
		}
		return llm.Response{}, apperr.New(apperr.KindLLMUnavailable,
			fmt.Sprintf("cli provider exceeded %s timeout; stderr tail: %s", p.timeout, strings.Join(tail, " | ")))
	}
	if waitErr != nil {
		return llm.Response{}, apperr.Wrap(apperr.KindLLMUnavailable,
			"cli provider exited nonzero; stderr tail: "+strings.Join(tail, " | "), waitErr)
	}

	return llm.Response{Text: stdout.String(), Model: p.model}, nil
}

// childEnv constructs the subprocess environment explicitly rather than
// inheriting the daemon's full environment, so credentials or settings
// unrelated to this provider never leak to the child.
func (p *CLI) childEnv() []string {
	env := []string{
		"PATH=" + os.Getenv("PATH"),
		"HOME=" + os.Getenv("HOME"),
	}
	for k, v := range p.extraEnv {
		env = append(env, k+"="+v)
	}
	return env
}
