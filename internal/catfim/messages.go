package catfim

import (
	"bufio"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Messages collects the "{lid}:{status}" lines of one HUC worker.
type Messages struct {
	mu    sync.Mutex
	lines []string
}

// Add records status for lid. Empty statuses are ignored.
func (m *Messages) Add(lid, status string) {
	if status == "" {
		return
	}
	m.mu.Lock()
	m.lines = append(m.lines, strings.ToLower(lid)+":"+status)
	m.mu.Unlock()
}

// Len returns the number of recorded lines.
func (m *Messages) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.lines)
}

// MessagesPath is the message file of huc under dir.
func MessagesPath(dir, huc string) string {
	return filepath.Join(dir, huc+"_messages.txt")
}

// Write stores the lines at path. Nothing is written when there are none.
func (m *Messages) Write(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.lines) == 0 {
		return nil
	}
	data := strings.Join(m.lines, "\n") + "\n"
	return eris.Wrapf(os.WriteFile(path, []byte(data), 0o644), "catfim: write %s", path)
}

// ReadMessages scans every *_messages.txt under dir and returns the status
// per lid. When a lid appears more than once the last line wins.
func ReadMessages(dir string) (map[string]string, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*_messages.txt"))
	if err != nil {
		return nil, eris.Wrap(err, "catfim: list message files")
	}
	sort.Strings(paths)
	log := zap.L().With(zap.String("component", "catfim.messages"))

	out := make(map[string]string)
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return nil, eris.Wrapf(err, "catfim: open %s", p)
		}
		sc := bufio.NewScanner(f)
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" {
				continue
			}
			lid, status, ok := strings.Cut(line, ":")
			lid = strings.ToLower(strings.TrimSpace(lid))
			if !ok || lid == "" {
				log.Warn("malformed message line", zap.String("file", p), zap.String("line", line))
				continue
			}
			if prev, dup := out[lid]; dup {
				log.Debug("duplicate message, keeping last", zap.String("lid", lid),
					zap.String("previous", prev), zap.String("status", status))
			}
			out[lid] = status
		}
		err = sc.Err()
		_ = f.Close()
		if err != nil {
			return nil, eris.Wrapf(err, "catfim: read %s", p)
		}
	}
	return out, nil
}
