package diagnose

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"

	"github.com/dustin/go-humanize"

	"github.com/born-ml/harness/internal/backend/webgpu"
	"github.com/born-ml/harness/internal/config"
	"github.com/born-ml/harness/internal/native"
	"github.com/born-ml/harness/internal/pose"
	"github.com/born-ml/harness/internal/serialization"
	"github.com/born-ml/harness/internal/shim"
)

// Stage names of the default pipeline.
const (
	StageRuntime    = "Runtime and backend"
	StageExtension  = "Native extension"
	StageDependency = "Dependent library"
	StageLoadProbe  = "Model load probe"
	StageAssets     = "Input assets"
	StageSummary    = "Summary"
)

// Library is an open native library.
type Library interface {
	HasSymbol(name string) bool
	Version(symbol string) (string, error)
	Close() error
}

// Model is an initialised model.
type Model interface {
	Describe() string
}

// Deps are the collaborators of the default stages.
type Deps struct {
	RuntimeVersion string
	GoVersion      string
	ProbeWebGPU    func(dirs []string) webgpu.Status
	OpenLibrary    func(name string, dirs []string) (Library, error)
	InitModel      func(ctx context.Context, configPath, checkpointPath, device string) (Model, error)
	Stat           func(path string) (fs.FileInfo, error)
}

// DefaultDeps returns the collaborators used outside tests.
func DefaultDeps() Deps {
	return Deps{
		RuntimeVersion: serialization.RuntimeVersion,
		GoVersion:      runtime.Version(),
		ProbeWebGPU:    webgpu.Probe,
		OpenLibrary: func(name string, dirs []string) (Library, error) {
			lib, err := native.Load(name, dirs)
			if err != nil {
				return nil, err
			}
			return lib, nil
		},
		InitModel: func(ctx context.Context, configPath, checkpointPath, device string) (Model, error) {
			m, err := pose.InitModel(ctx, configPath, checkpointPath, device)
			if err != nil {
				return nil, err
			}
			return m, nil
		},
		Stat: os.Stat,
	}
}

// DefaultStages returns the six stages of the environment self-test.
func DefaultStages(cfg *config.Config, deps Deps) []Stage {
	return []Stage{
		{Name: StageRuntime, Check: runtimeStage(cfg, deps)},
		{Name: StageExtension, Fatal: true, Check: extensionStage(cfg, deps)},
		{Name: StageDependency, Fatal: true, Check: dependencyStage(cfg, deps)},
		{Name: StageLoadProbe, Check: loadProbeStage(cfg, deps)},
		{Name: StageAssets, Check: assetsStage(cfg, deps)},
		{Name: StageSummary, Summary: true, Check: summaryStage},
	}
}

func runtimeStage(cfg *config.Config, deps Deps) func(context.Context, []Result) Result {
	return func(context.Context, []Result) Result {
		res := Result{Status: StatusPass}
		status := deps.ProbeWebGPU(cfg.WebGPUDirs())
		res.fact("Runtime version", "%s", deps.RuntimeVersion)
		res.fact("Go version", "%s", deps.GoVersion)
		res.fact("WebGPU built", "%t", status.Built)
		res.fact("WebGPU available", "%t", status.Available)
		res.fact("Using device", "%s", status.Device())
		if !status.Available && status.Error != "" {
			res.Notes = append(res.Notes, "WebGPU: "+status.Error)
		}
		return res
	}
}

func extensionStage(cfg *config.Config, deps Deps) func(context.Context, []Result) Result {
	ext := cfg.Native.Extension
	return func(context.Context, []Result) Result {
		res := Result{Status: StatusPass}
		lib, err := deps.OpenLibrary(ext.Library, cfg.Native.SearchPaths)
		if err != nil {
			res.fail(KindDependency, (&DependencyError{Component: ext.Label, Library: ext.Library, Err: err}).Error())
			return res
		}
		defer func() { _ = lib.Close() }()

		if ext.VersionSymbol != "" && lib.HasSymbol(ext.VersionSymbol) {
			if v, err := lib.Version(ext.VersionSymbol); err == nil {
				res.fact(ext.Label+" version", "%s", v)
			}
		}
		res.item(ext.Library+" loaded", true, "")

		if !lib.HasSymbol(ext.Symbol) {
			err := &DependencyError{Component: ext.Label, Library: ext.Library, Symbol: ext.Symbol, Err: errors.New("not exported")}
			res.item(ext.Symbol, false, "not exported")
			res.fail(KindDependency, err.Error())
			return res
		}
		res.item(ext.Symbol+" available", true, "")
		return res
	}
}

func dependencyStage(cfg *config.Config, deps Deps) func(context.Context, []Result) Result {
	dep := cfg.Native.Dependency
	return func(context.Context, []Result) Result {
		res := Result{Status: StatusPass}
		lib, err := deps.OpenLibrary(dep.Library, cfg.Native.SearchPaths)
		if err != nil {
			res.fail(KindDependency, (&DependencyError{Component: dep.Label, Library: dep.Library, Err: err}).Error())
			return res
		}
		defer func() { _ = lib.Close() }()

		if dep.VersionSymbol != "" {
			v, err := lib.Version(dep.VersionSymbol)
			if err != nil {
				res.fail(KindDependency, (&DependencyError{Component: dep.Label, Library: dep.Library, Symbol: dep.VersionSymbol, Err: err}).Error())
				return res
			}
			res.fact(dep.Label+" version", "%s", v)
		}
		if dep.Symbol != "" && !lib.HasSymbol(dep.Symbol) {
			res.fail(KindDependency, (&DependencyError{Component: dep.Label, Library: dep.Library, Symbol: dep.Symbol, Err: errors.New("not exported")}).Error())
			return res
		}
		res.item(dep.Library+" loaded", true, "")
		return res
	}
}

func loadProbeStage(cfg *config.Config, deps Deps) func(context.Context, []Result) Result {
	probe := cfg.Probe
	return func(ctx context.Context, _ []Result) Result {
		res := Result{Status: StatusPass}
		res.fact("Config", "%s", filepath.Base(probe.PoseConfig))
		res.fact("Checkpoint", "%s", filepath.Base(probe.PoseCheckpoint))

		var model Model
		err := shim.WithPermissiveLoad(func() error {
			var err error
			model, err = deps.InitModel(ctx, probe.PoseConfig, probe.PoseCheckpoint, probe.Device)
			return err
		})
		if err != nil {
			kind, detail := Classify(err)
			res.fail(kind, detail)
			if kind == KindPolicy {
				res.Notes = append(res.Notes, PolicyNote)
			}
			return res
		}
		res.item("Pose model loaded", true, model.Describe())
		return res
	}
}

func assetsStage(cfg *config.Config, deps Deps) func(context.Context, []Result) Result {
	return func(context.Context, []Result) Result {
		res := Result{Status: StatusPass}
		var missing int
		for _, a := range cfg.Assets {
			info, err := deps.Stat(a.Path)
			switch {
			case err == nil:
				res.item(a.Label, true, fmt.Sprintf("%s (%s)", a.Path, humanize.Bytes(uint64(info.Size())))) //nolint:gosec // G115: sizes are non-negative
			case errors.Is(err, fs.ErrNotExist):
				missing++
				res.item(a.Label, false, "not found: "+a.Path)
			default:
				missing++
				res.item(a.Label, false, err.Error())
			}
		}
		if missing > 0 {
			res.fail(KindMissing, fmt.Sprintf("%d of %d assets unavailable", missing, len(cfg.Assets)))
		}
		return res
	}
}

func summaryStage(_ context.Context, prior []Result) Result {
	s := Summarize(prior)
	res := Result{Status: StatusPass, Detail: s.Statement}
	for _, r := range prior {
		label := fmt.Sprintf("[%d] %s", r.Index, r.Name)
		res.item(label, !r.Failed(), r.Detail)
	}
	res.fact("Passed", "%d", s.Passed)
	res.fact("Failed", "%d", s.Failed)
	if s.Skipped > 0 {
		res.fact("Skipped", "%d", s.Skipped)
	}
	return res
}
