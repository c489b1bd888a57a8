package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aretw0/parley/internal/dto"
	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// FlowStore implements ports.FlowStore over a directory of YAML or JSON flow documents.
// A document may hold a single flow or a list of flows under a top-level "flows" key.
type FlowStore struct {
	Root   string
	logger *slog.Logger
}

// FlowOption configures a FlowStore.
type FlowOption func(*FlowStore)

// WithLogger sets the logger used for watch diagnostics.
func WithLogger(logger *slog.Logger) FlowOption {
	return func(s *FlowStore) {
		s.logger = logger
	}
}

// NewFlowStore creates a store reading flows below root.
func NewFlowStore(root string, opts ...FlowOption) *FlowStore {
	s := &FlowStore{Root: root, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func isFlowDocument(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}

// LoadAll parses every flow document below Root. Duplicate flow ids are an error.
func (s *FlowStore) LoadAll(ctx context.Context) ([]domain.Flow, error) {
	var paths []string
	err := filepath.WalkDir(s.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != s.Root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if isFlowDocument(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan flow directory: %w", err)
	}
	sort.Strings(paths)

	var flows []domain.Flow
	origin := make(map[string]string)
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rel, err := filepath.Rel(s.Root, path)
		if err != nil {
			rel = filepath.Base(path)
		}

		parsed, err := s.parseFile(path, rel)
		if err != nil {
			return nil, err
		}
		for _, f := range parsed {
			if prev, ok := origin[f.ID]; ok {
				return nil, fmt.Errorf("collision detected: flow '%s' is defined in both '%s' and '%s'", f.ID, prev, rel)
			}
			origin[f.ID] = rel
			flows = append(flows, f)
		}
	}
	return flows, nil
}

func (s *FlowStore) parseFile(path, rel string) ([]domain.Flow, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", rel, err)
	}

	var doc map[string]any
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(content, &doc)
	} else {
		err = yaml.Unmarshal(content, &doc)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", rel, err)
	}
	if doc == nil {
		return nil, nil
	}

	list, ok := doc["flows"].([]any)
	if !ok {
		if _, hasNodes := doc["nodes"]; !hasNodes {
			return nil, nil
		}
		f, err := dto.DecodeFlow(doc, rel)
		if err != nil {
			return nil, err
		}
		return []domain.Flow{f}, nil
	}

	flows := make([]domain.Flow, 0, len(list))
	for i, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s: flows[%d] is not an object", rel, i)
		}
		if _, hasID := m["id"]; !hasID {
			return nil, fmt.Errorf("%s: flows[%d] has no id", rel, i)
		}
		f, err := dto.DecodeFlow(m, rel)
		if err != nil {
			return nil, err
		}
		flows = append(flows, f)
	}
	return flows, nil
}

// Watch implements ports.Watchable. It signals the relative path of every changed
// flow document until ctx is done.
func (s *FlowStore) Watch(ctx context.Context) (<-chan string, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	err = filepath.WalkDir(s.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
	if err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", s.Root, err)
	}

	ch := make(chan string, 1)
	go func() {
		defer close(ch)
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op.Has(fsnotify.Create) {
					if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
						_ = watcher.Add(event.Name)
						continue
					}
				}
				if !isFlowDocument(event.Name) || event.Op == fsnotify.Chmod {
					continue
				}
				rel, err := filepath.Rel(s.Root, event.Name)
				if err != nil {
					rel = event.Name
				}
				s.logger.Debug("flow document changed", "file", rel, "op", event.Op.String())
				select {
				case ch <- filepath.ToSlash(rel):
				case <-ctx.Done():
					return
				default:
					// Coalesce with the pending signal.
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Error("flow watcher error", "err", err)
			}
		}
	}()

	return ch, nil
}
