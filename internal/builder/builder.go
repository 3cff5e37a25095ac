// Package builder coordinates a PTX build of one crate: it checks the
// toolchain, claims the crate's naming slot, runs cargo and resolves the
// produced assembly and its dependency set.
package builder

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"git.home.luguber.info/inful/ptxbuilder/internal/diagnostics"
	berrors "git.home.luguber.info/inful/ptxbuilder/internal/errors"
	"git.home.luguber.info/inful/ptxbuilder/internal/executable"
	"git.home.luguber.info/inful/ptxbuilder/internal/logfields"
	"git.home.luguber.info/inful/ptxbuilder/internal/metrics"
	"git.home.luguber.info/inful/ptxbuilder/internal/namingslot"
	"git.home.luguber.info/inful/ptxbuilder/internal/source"
)

// StatusKind is the result of a Build call that did not fail.
type StatusKind int

const (
	// StatusNotNeeded means the call was nested inside another build and did nothing.
	StatusNotNeeded StatusKind = iota
	// StatusSuccess means the assembly was produced; Status.Output is set.
	StatusSuccess
)

func (k StatusKind) String() string {
	if k == StatusSuccess {
		return "success"
	}
	return "not_needed"
}

// Status is returned by Build.
type Status struct {
	Kind   StatusKind
	Output *Output
}

// Builder compiles one crate. A Builder is immutable; configuration methods
// return modified copies, so a Builder may be shared between goroutines.
type Builder struct {
	crate    *source.Crate
	config   Config
	runner   executable.Runner
	logger   *slog.Logger
	recorder metrics.Recorder
}

type options struct {
	runner     executable.Runner
	logger     *slog.Logger
	recorder   metrics.Recorder
	outputRoot string
}

// Option customises New.
type Option func(*options)

// WithRunner replaces the os/exec runner, mainly for tests.
func WithRunner(r executable.Runner) Option {
	return func(o *options) { o.runner = r }
}

// WithLogger sets the logger used for debug output.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRecorder enables build metrics.
func WithRecorder(r metrics.Recorder) Option {
	return func(o *options) { o.recorder = r }
}

// WithOutputRoot overrides the directory under which the crate's output
// directory is created.
func WithOutputRoot(dir string) Option {
	return func(o *options) { o.outputRoot = dir }
}

// New analyses the crate at path and returns a Builder with DefaultConfig.
func New(path string, opts ...Option) (*Builder, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.runner == nil {
		o.runner = executable.NewExec(o.logger)
	}
	if o.recorder == nil {
		o.recorder = metrics.NoopRecorder{}
	}

	crate, err := source.Analyze(path, source.WithOutputRoot(o.outputRoot))
	if err != nil {
		if berrors.IsKind(err, berrors.KindAnalysisFailed) {
			return nil, err
		}
		return nil, berrors.AnalysisFailed(path, err)
	}

	return &Builder{
		crate:    crate,
		config:   DefaultConfig(),
		runner:   o.runner,
		logger:   o.logger.With(logfields.Crate(crate.Name())),
		recorder: o.recorder,
	}, nil
}

// CrateName is the package name of the crate.
func (b *Builder) CrateName() string { return b.crate.Name() }

// Crate exposes the analysed crate.
func (b *Builder) Crate() *source.Crate { return b.crate }

// Config returns the current configuration.
func (b *Builder) Config() Config { return b.config }

// WithConfig returns a copy of b using cfg.
func (b *Builder) WithConfig(cfg Config) *Builder {
	c := *b
	c.config = cfg
	return &c
}

// WithProfile returns a copy of b building with profile p.
func (b *Builder) WithProfile(p Profile) *Builder {
	return b.WithConfig(b.config.WithProfile(p))
}

// WithCrateType picks the target to build; only consulted for mixed crates.
func (b *Builder) WithCrateType(t CrateType) *Builder {
	return b.WithConfig(b.config.WithCrateType(t))
}

// WithMessageFormat returns a copy of b using message format f.
func (b *Builder) WithMessageFormat(f MessageFormat) *Builder {
	return b.WithConfig(b.config.WithMessageFormat(f))
}

// WithColors returns a copy of b with cargo colors enabled or disabled.
func (b *Builder) WithColors(enabled bool) *Builder {
	return b.WithConfig(b.config.WithColors(enabled))
}

// DisableColors is shorthand for WithColors(false).
func (b *Builder) DisableColors() *Builder { return b.WithColors(false) }

// WithPrefix returns a copy of b with the given invocation name suffix.
func (b *Builder) WithPrefix(prefix string) *Builder {
	return b.WithConfig(b.config.WithPrefix(prefix))
}

// InvocationName is the example name written to the manifest during a build.
func (b *Builder) InvocationName() string {
	return b.crate.Name() + "-" + b.config.prefix
}

// Build runs the build without live output.
func (b *Builder) Build(ctx context.Context, nesting Nesting) (Status, error) {
	return b.BuildLive(ctx, nesting, nil, nil)
}

// BuildLive runs the build, passing each stdout line and each relevant stderr
// line to the sinks while cargo runs. Either sink may be nil.
//
// When nesting is Nested nothing is done. Otherwise the manifest is always
// restored before BuildLive returns, whatever the outcome.
func (b *Builder) BuildLive(ctx context.Context, nesting Nesting, onStdout, onStderr executable.LineFunc) (Status, error) {
	if !IsBuildNeeded(nesting) {
		b.logger.Debug("Build skipped", logfields.Outcome(StatusNotNeeded.String()))
		b.recorder.IncBuildOutcome(metrics.BuildOutcomeNotNeeded)
		return Status{Kind: StatusNotNeeded}, nil
	}

	start := time.Now()
	out, err := b.build(ctx, onStdout, onStderr)
	b.recorder.ObserveBuildDuration(time.Since(start))
	b.recorder.IncBuildOutcome(outcomeLabel(err))
	if err != nil {
		return Status{}, err
	}

	b.logger.Debug("Build finished",
		logfields.Path(out.AssemblyPath()),
		logfields.Duration(time.Since(start)))
	return Status{Kind: StatusSuccess, Output: out}, nil
}

func (b *Builder) build(ctx context.Context, onStdout, onStderr executable.LineFunc) (_ *Output, err error) {
	crateType, err := resolveCrateType(b.crate.Scanned(), b.config.crateType)
	if err != nil {
		return nil, err
	}

	err = b.timeStage(metrics.StageVersionCheck, func() error {
		_, verr := executable.CheckVersion(ctx, b.runner, executable.Linker)
		return verr
	})
	if err != nil {
		return nil, err
	}

	outputDir, err := b.crate.OutputPath()
	if err != nil {
		return nil, berrors.InternalError("unable to create output directory", err)
	}

	invocation := b.InvocationName()
	arbiter := namingslot.New(outputDir, b.crate.ManifestPath(), b.crate.CanonicalEntryName(), b.logger)
	claim, err := arbiter.Claim(ctx, invocation)
	if err != nil {
		b.recorder.IncStageResult(metrics.StageLockWait, resultLabel(err))
		return nil, err
	}
	b.recorder.ObserveStageDuration(metrics.StageLockWait, claim.Waited())
	b.recorder.IncStageResult(metrics.StageLockWait, metrics.ResultSuccess)

	defer func() {
		restoreErr := b.timeStage(metrics.StageRestore, claim.Restore)
		if restoreErr != nil {
			err = errors.Join(err, restoreErr)
		}
	}()

	cmd := executable.Cargo.Command(b.config.cargoArgs(invocation, crateType)...)
	cmd.Dir = b.crate.Path()
	cmd.Env = map[string]string{
		EnvBuilding:        "1",
		"CARGO_TARGET_DIR": outputDir,
	}

	b.logger.Debug("Compiling",
		logfields.Invocation(invocation),
		logfields.Profile(b.config.profile.String()),
		logfields.CrateType(crateType.String()))

	stderrSink := executable.LineFunc(diagnostics.FilterSink(diagnostics.LineFunc(onStderr)))
	var run *executable.Output
	err = b.timeStage(metrics.StageCompile, func() error {
		var rerr error
		run, rerr = b.runner.RunLive(ctx, cmd, onStdout, stderrSink)
		return rerr
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if berrors.IsKind(err, berrors.KindCommandFailed) && run != nil {
			return nil, berrors.BuildFailed(diagnostics.Filter(run.Stderr))
		}
		return nil, err
	}

	output := &Output{builder: b, outputDir: outputDir, crateType: crateType}
	if _, statErr := os.Stat(output.AssemblyPath()); statErr != nil {
		return nil, berrors.InternalError("unable to find PTX assembly output", statErr).
			WithContext("path", output.AssemblyPath())
	}
	return output, nil
}

// timeStage runs fn and records its duration and result.
func (b *Builder) timeStage(stage metrics.Stage, fn func() error) error {
	start := time.Now()
	err := fn()
	b.recorder.ObserveStageDuration(stage, time.Since(start))
	b.recorder.IncStageResult(stage, resultLabel(err))
	if err != nil {
		b.logger.Debug("Stage failed", logfields.Stage(string(stage)), logfields.Error(err))
	}
	return err
}

// resolveCrateType applies the configured override. It only matters for
// mixed crates, where it is required.
func resolveCrateType(scanned source.ScannedType, override CrateType) (CrateType, error) {
	switch scanned {
	case source.ScannedLibrary:
		return CrateTypeLibrary, nil
	case source.ScannedBinary:
		return CrateTypeBinary, nil
	default:
		if override == CrateTypeAuto {
			return CrateTypeAuto, berrors.MissingCrateType()
		}
		return override, nil
	}
}

func resultLabel(err error) metrics.ResultLabel {
	switch {
	case err == nil:
		return metrics.ResultSuccess
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return metrics.ResultCanceled
	default:
		return metrics.ResultFailed
	}
}

func outcomeLabel(err error) metrics.BuildOutcomeLabel {
	switch {
	case err == nil:
		return metrics.BuildOutcomeSuccess
	case berrors.IsKind(err, berrors.KindBuildFailed):
		return metrics.BuildOutcomeFailed
	default:
		return metrics.BuildOutcomeError
	}
}
