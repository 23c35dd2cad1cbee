package catfim

import (
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/catfim/internal/model"
)

// RunLog is the parent log file of a run. Workers write to their own child
// files which are folded into the parent between steps.
type RunLog struct {
	Path  string
	RunID string

	dir     string
	level   zapcore.Level
	console *zap.Logger
	file    *os.File
	sink    zapcore.WriteSyncer
}

// OpenRunLog creates logs/catfim_<mode>_<timestamp>.log under dir and
// installs a global logger that writes to both the current global core and
// the file at level. The returned restore function reinstates the previous
// global.
func OpenRunLog(dir string, mode model.Mode, clock clockwork.Clock, runID string, level zapcore.Level) (*RunLog, func(), error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, eris.Wrapf(err, "catfim: create %s", dir)
	}
	name := "catfim_" + string(mode) + "_" + clock.Now().UTC().Format("2006_01_02-15_04_05") + ".log"
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "catfim: open run log %s", path)
	}

	console := zap.L()
	r := &RunLog{
		Path:    path,
		RunID:   runID,
		dir:     dir,
		level:   level,
		console: console,
		file:    f,
		sink:    zapcore.Lock(zapcore.AddSync(f)),
	}

	logger := console.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
		return zapcore.NewTee(c, r.core(r.sink))
	})).With(zap.String("run_id", runID))
	restore := zap.ReplaceGlobals(logger)
	return r, restore, nil
}

func (r *RunLog) core(ws zapcore.WriteSyncer) zapcore.Core {
	return zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), ws, r.level)
}

// ChildPath is the log file of one worker.
func (r *RunLog) ChildPath(step, huc string) string {
	return filepath.Join(r.dir, step+"_"+huc+".log")
}

// Child returns a logger writing to logs/<step>_<huc>.log and the console.
// The parent file only receives the child lines through Merge, so nothing
// is logged twice. Call the returned close function when the worker ends.
func (r *RunLog) Child(step, huc string) (*zap.Logger, func() error, error) {
	path := r.ChildPath(step, huc)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "catfim: open child log %s", path)
	}
	fileCore := r.core(zapcore.Lock(zapcore.AddSync(f)))
	logger := r.console.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
		return zapcore.NewTee(c, fileCore)
	})).With(zap.String("run_id", r.RunID), zap.String("huc", huc))
	closeFn := func() error {
		_ = logger.Sync()
		return f.Close()
	}
	return logger, closeFn, nil
}

// Merge appends every logs/<step>_*.log to the parent file in name order and
// removes them.
func (r *RunLog) Merge(step string) error {
	paths, err := filepath.Glob(filepath.Join(r.dir, step+"_*.log"))
	if err != nil {
		return eris.Wrap(err, "catfim: list child logs")
	}
	sort.Strings(paths)
	for _, p := range paths {
		if err := r.appendFile(p); err != nil {
			return err
		}
		if err := os.Remove(p); err != nil {
			return eris.Wrapf(err, "catfim: remove %s", p)
		}
	}
	return r.sink.Sync()
}

func (r *RunLog) appendFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return eris.Wrapf(err, "catfim: open %s", path)
	}
	defer f.Close() //nolint:errcheck
	if _, err := io.Copy(r.sink, f); err != nil {
		return eris.Wrapf(err, "catfim: merge %s", path)
	}
	return nil
}

// Close flushes and closes the parent file.
func (r *RunLog) Close() error {
	_ = r.sink.Sync()
	return eris.Wrap(r.file.Close(), "catfim: close run log")
}
