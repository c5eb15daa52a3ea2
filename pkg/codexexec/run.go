// Package codexexec runs the codex CLI for an automation pipeline: it builds
// the command line, picks the sandbox, optionally runs the tool as a separate
// user, feeds it the prompt and publishes its final message. Every scratch
// file it creates is removed before Run returns.
package codexexec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"os/exec"
	"slices"
	"strconv"
	"strings"

	"github.com/bpicori/codex-launch/internal/capture"
	"github.com/bpicori/codex-launch/internal/envfwd"
	"github.com/bpicori/codex-launch/internal/platform"
	"github.com/bpicori/codex-launch/internal/policy"
	"github.com/bpicori/codex-launch/internal/privfs"
	"github.com/bpicori/codex-launch/internal/publish"
)

const (
	// OriginatorEnv marks requests as coming from this launcher. An existing
	// value is kept.
	OriginatorEnv   = "CODEX_INTERNAL_ORIGINATOR_OVERRIDE"
	originatorValue = "codex_github_action"

	// HomeEnv carries the home-directory override.
	HomeEnv = "CODEX_HOME"

	defaultCodexPath        = "codex"
	defaultElevationCommand = "sudo"
)

// Orchestrator runs invocations. The zero value is not usable; Publisher is
// required and the other fields have defaults.
type Orchestrator struct {
	Platform  platform.Platform
	Publisher publish.Publisher
	Logger    *slog.Logger

	// Helper runs elevation helper and lookup commands. Nil means a
	// privfs.ExecRunner using the invocation's environment.
	Helper privfs.Runner
}

// Run executes req with a default Orchestrator publishing through pub.
func Run(ctx context.Context, req ExecutionRequest, env Environment, rio RunIO, pub publish.Publisher, logger *slog.Logger) (Result, error) {
	o := &Orchestrator{Platform: platform.New(), Publisher: pub, Logger: logger}
	return o.Run(ctx, req, env, rio)
}

// invocation is the per-call state of Run.
type invocation struct {
	req       ExecutionRequest
	env       Environment
	runAsUser string

	workDir    string
	promptPath string
	outputPath string
	schema     *SchemaSource

	prompt string
	output capture.Scratch
}

// Run performs one invocation. The returned error, when non-nil, is an
// *Error. Scratch resources are released on every path, and a failure to
// release them never replaces an earlier error.
func (o *Orchestrator) Run(ctx context.Context, req ExecutionRequest, env Environment, rio RunIO) (res Result, err error) {
	res = Result{State: StateFailed, ExitCode: -1}
	logger := o.logger()

	inv, err := o.validate(req, env)
	if err != nil {
		return res, err
	}
	plat := o.platform()
	euid := plat.EffectiveUID()
	if euid == 0 && inv.runAsUser == "" {
		logger.Warn("codex will run as root; use the unprivileged-user strategy to run it as another account",
			slog.String("strategy", string(req.Strategy)))
	}
	logger.Debug("resolved invocation",
		slog.String("platform", plat.Name()),
		slog.Int("euid", euid),
		slog.String("strategy", string(req.Strategy)),
		slog.String("sandbox", string(policy.EffectiveSandbox(req.Strategy, req.Sandbox))),
		slog.String("run_as", inv.runAsUser),
	)

	// ResolvingPrompt: nothing has been created yet.
	if inv.prompt, err = readPrompt(inv); err != nil {
		return res, newError(KindResolution, StateResolvingPrompt, "read prompt", err)
	}

	helper := o.helperRunner(env)
	direct := &privfs.Direct{TempDir: env.TempDir}
	elevated := &privfs.Elevated{Runner: helper, Command: inv.elevationCommand()}
	scratch := capture.New(privfs.For(inv.runAsUser, direct, elevated))

	defer func() {
		// Cleanup must run even when ctx is already done.
		errs := scratch.Release(context.WithoutCancel(ctx))
		if len(errs) == 0 {
			return
		}
		for _, cerr := range errs {
			logger.Warn("failed to release scratch resource", slog.String("error", cerr.Error()))
		}
		var primary *Error
		if errors.As(err, &primary) {
			primary.Cleanup = append(primary.Cleanup, errs...)
			return
		}
		res.State = StateFailed
		err = newError(KindCleanup, StateFinalizing, "release scratch resources", errors.Join(errs...))
	}()

	// ResolvingScratch
	if inv.output, err = scratch.Output(ctx, inv.outputPath); err != nil {
		return res, newError(KindResolution, StateResolvingScratch, "prepare output file", err)
	}
	schema, hasSchema, err := scratch.Schema(ctx, inv.schema)
	if err != nil {
		return res, newError(KindResolution, StateResolvingScratch, "prepare output schema", err)
	}

	// BuildingCommand. The environment comes first: the elevation helper
	// must be told which forwarded names to preserve.
	childEnv, fwd := o.buildEnv(inv)
	res.Forwarded, res.Missing = fwd.Forwarded, fwd.Missing

	program, err := o.locateTool(ctx, inv, helper)
	if err != nil {
		return res, newError(KindResolution, StateBuildingCommand, "locate "+inv.codexPath(), err)
	}
	argv := buildArgs(inv, program, schema.Path, hasSchema, fwd.Forwarded)
	res.Command = argv
	logger.Info("Running: " + FormatCommand(inv.req.CodexHome, argv))

	if req.ShowCommand {
		res.State = StateDone
		return res, nil
	}

	// Spawning and Running
	exitCode, err := spawn(argv, childEnv, inv, rio)
	res.ExitCode = exitCode
	if err != nil {
		return res, err
	}

	// Finalizing
	msg, err := scratch.ReadResult(ctx, inv.output)
	if err != nil {
		return res, newError(KindFinalization, StateFinalizing, "collect final message", err)
	}
	if err := o.Publisher.Publish(publish.FinalMessageKey, msg); err != nil {
		return res, newError(KindFinalization, StateFinalizing, "publish final message", err)
	}

	res.FinalMessage = msg
	res.State = StateDone
	return res, nil
}

// validate turns the request into configuration for this call. Every
// problem is reported at once.
func (o *Orchestrator) validate(req ExecutionRequest, env Environment) (*invocation, error) {
	inv := &invocation{req: req, env: env}
	var errs []error

	if _, err := policy.ParseSafetyStrategy(string(req.Strategy)); err != nil {
		errs = append(errs, err)
	}
	if _, err := policy.ParseSandboxMode(string(req.Sandbox)); err != nil {
		errs = append(errs, err)
	}

	runAsUser, err := req.Strategy.RunAsUser(req.RunAsUser)
	if err != nil {
		errs = append(errs, err)
	}
	inv.runAsUser = runAsUser
	if runAsUser != "" {
		if err := platform.CheckElevation(o.platform()); err != nil {
			errs = append(errs, err)
		}
	}

	workDir := req.WorkDir
	if workDir == "" {
		workDir = env.WorkDir
	}
	if inv.workDir, err = policy.ResolvePath(workDir, env.WorkDir); err != nil {
		errs = append(errs, fmt.Errorf("working directory: %w", err))
	}

	switch {
	case req.Prompt.Path != "":
		if inv.promptPath, err = policy.ResolvePath(req.Prompt.Path, env.WorkDir); err != nil {
			errs = append(errs, fmt.Errorf("prompt file: %w", err))
		}
	case req.Prompt.Text == "":
		errs = append(errs, errors.New("either a prompt or a prompt file must be specified"))
	}

	if req.OutputFile != "" {
		if inv.outputPath, err = policy.ResolvePath(req.OutputFile, env.WorkDir); err != nil {
			errs = append(errs, fmt.Errorf("output file: %w", err))
		}
	}

	if req.OutputSchema != nil {
		schema := *req.OutputSchema
		if schema.Path != "" {
			if schema.Path, err = policy.ResolvePath(schema.Path, env.WorkDir); err != nil {
				errs = append(errs, fmt.Errorf("output schema file: %w", err))
			}
		}
		inv.schema = &schema
	}

	if o.Publisher == nil {
		errs = append(errs, errors.New("no result publisher configured"))
	}

	if err := errors.Join(errs...); err != nil {
		return nil, newError(KindConfig, StateIdle, "invalid request", err)
	}
	return inv, nil
}

func readPrompt(inv *invocation) (string, error) {
	if inv.promptPath == "" {
		return inv.req.Prompt.Text, nil
	}
	raw, err := os.ReadFile(inv.promptPath)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// buildEnv copies the base environment, pins the launcher's own variables
// and forwards the requested names around them.
func (o *Orchestrator) buildEnv(inv *invocation) (map[string]string, envfwd.Result) {
	env := maps.Clone(inv.env.Vars)
	if env == nil {
		env = make(map[string]string)
	}
	protected := make(map[string]struct{})

	if env[OriginatorEnv] == "" {
		env[OriginatorEnv] = originatorValue
	}
	protected[OriginatorEnv] = struct{}{}

	if inv.req.CodexHome != "" {
		env[HomeEnv] = inv.req.CodexHome
		protected[HomeEnv] = struct{}{}
	}

	source := inv.env.Source
	if source == nil {
		source = inv.env.Vars
	}

	// Forwarded values become visible to the tool and everything it runs;
	// only names are ever logged.
	fwd := envfwd.Forward(inv.req.PassThroughEnv, source, env, protected)

	logger := o.logger()
	if len(fwd.Forwarded) > 0 {
		logger.Info("Forwarding env vars to Codex: " + strings.Join(fwd.Forwarded, ", "))
	}
	for _, name := range fwd.Missing {
		logger.Info(fmt.Sprintf("Requested env var %q is not set; skipping.", name))
	}
	return env, fwd
}

// locateTool returns the executable to run. Under elevation the other
// user's PATH may differ, so a bare name is resolved here first.
func (o *Orchestrator) locateTool(ctx context.Context, inv *invocation, helper privfs.Runner) (string, error) {
	name := inv.codexPath()
	if inv.runAsUser == "" || strings.ContainsRune(name, os.PathSeparator) {
		return name, nil
	}

	out, err := helper.Run(ctx, nil, "which", name)
	if err != nil {
		return "", err
	}
	path := strings.TrimSpace(out)
	if path == "" {
		return "", fmt.Errorf("could not find %q in PATH", name)
	}
	return path, nil
}

// buildArgs assembles the full argv. The order is fixed; extra arguments go
// before --sandbox so they cannot override the sandbox selection.
func buildArgs(inv *invocation, program, schemaPath string, hasSchema bool, preserve []string) []string {
	req := inv.req
	var argv []string

	if inv.runAsUser != "" {
		argv = append(argv, inv.elevationCommand())
		if len(preserve) > 0 {
			argv = append(argv, "--preserve-env="+strings.Join(preserve, ","))
		}
		argv = append(argv, "-u", inv.runAsUser, "--")
	}

	argv = append(argv,
		program,
		"exec",
		"--skip-git-repo-check",
		"--cd", inv.workDir,
		"--output-last-message", inv.output.Path,
	)
	if hasSchema {
		argv = append(argv, "--output-schema", schemaPath)
	}
	if req.Model != "" {
		argv = append(argv, "--model", req.Model)
	}
	if req.Effort != "" {
		argv = append(argv, "--config", fmt.Sprintf("model_reasoning_effort=%q", req.Effort))
	}
	argv = append(argv, req.ExtraArgs...)

	sandbox := policy.EffectiveSandbox(req.Strategy, req.Sandbox)
	return append(argv, "--sandbox", string(sandbox))
}

// spawn runs argv to completion. The prompt is streamed to stdin, which is
// closed once the prompt is written; stdout and stderr are passed through.
func spawn(argv []string, env map[string]string, inv *invocation, rio RunIO) (int, error) {
	path, err := privfs.LookPath(argv[0], childPath(env))
	if err != nil {
		return -1, newError(KindSubprocess, StateSpawning, "start "+argv[0], err)
	}

	cmd := exec.Command(path, argv[1:]...)
	cmd.Args[0] = argv[0]
	cmd.Dir = inv.env.WorkDir
	cmd.Env = environ(env)
	cmd.Stdin = strings.NewReader(inv.prompt)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if rio.Stdout != nil {
		cmd.Stdout = rio.Stdout
	}
	if rio.Stderr != nil {
		cmd.Stderr = rio.Stderr
	}

	if err := cmd.Start(); err != nil {
		return -1, newError(KindSubprocess, StateSpawning, "start "+argv[0], err)
	}

	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code := exitErr.ExitCode()
			e := newError(KindSubprocess, StateRunning, "run "+argv[0], fmt.Errorf("%s exited with code %d", argv[0], code))
			e.ExitCode = code
			return code, e
		}
		return -1, newError(KindSubprocess, StateRunning, "run "+argv[0], err)
	}
	return 0, nil
}

// childPath is the PATH used to find the tool: the child's own, or the
// launcher's when the child environment sets none.
func childPath(env map[string]string) string {
	if path, ok := env["PATH"]; ok {
		return path
	}
	return os.Getenv("PATH")
}

// environ renders env as sorted KEY=VALUE pairs.
func environ(env map[string]string) []string {
	keys := slices.Sorted(maps.Keys(env))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}

// FormatCommand renders argv as it is logged before the tool starts, with
// the home override shown as an environment prefix.
func FormatCommand(codexHome string, argv []string) string {
	var b strings.Builder
	if codexHome != "" {
		b.WriteString(HomeEnv + "=" + codexHome + " ")
	}
	b.WriteString(argv[0])
	for _, a := range argv[1:] {
		b.WriteString(" ")
		b.WriteString(strconv.Quote(a))
	}
	return b.String()
}

func (o *Orchestrator) helperRunner(env Environment) privfs.Runner {
	if o.Helper != nil {
		return o.Helper
	}
	return privfs.ExecRunner{Env: environ(env.Vars), Dir: env.WorkDir}
}

func (o *Orchestrator) platform() platform.Platform {
	if o.Platform != nil {
		return o.Platform
	}
	return platform.New()
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.New(slog.DiscardHandler)
}

func (inv *invocation) codexPath() string {
	if inv.req.CodexPath != "" {
		return inv.req.CodexPath
	}
	return defaultCodexPath
}

func (inv *invocation) elevationCommand() string {
	if inv.req.ElevationCommand != "" {
		return inv.req.ElevationCommand
	}
	return defaultElevationCommand
}
