package file

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/zxjlm/playwright-gateway/contrib/config"
)

var _ config.Source = (*fileSource)(nil)

type fileSource struct {
	path string
}

// NewSource returns a config.Source reading a single local YAML/JSON file,
// watchable via fsnotify.
func NewSource(path string) config.Source {
	return &fileSource{path: path}
}

// Load implements config.Source.
func (f *fileSource) Load() ([]*config.KeyValue, error) {
	buf, err := os.ReadFile(f.path)
	if err != nil {
		return nil, err
	}

	return []*config.KeyValue{
		{
			Key:    filepath.Base(f.path),
			Value:  buf,
			Format: format(f.path),
		},
	}, nil
}

// Watch implements config.Source.
func (f *fileSource) Watch() (config.Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(filepath.Dir(f.path)); err != nil {
		_ = w.Close()
		return nil, err
	}
	return &fileWatcher{source: f, w: w}, nil
}

func format(path string) string {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	switch ext {
	case "yaml", "yml":
		return "yaml"
	default:
		return "json"
	}
}

type fileWatcher struct {
	source *fileSource
	w      *fsnotify.Watcher
}

func (fw *fileWatcher) Next() ([]*config.KeyValue, error) {
	for {
		select {
		case event, ok := <-fw.w.Events:
			if !ok {
				return nil, nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(fw.source.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			return fw.source.Load()
		case err, ok := <-fw.w.Errors:
			if !ok {
				return nil, nil
			}
			return nil, err
		}
	}
}

func (fw *fileWatcher) Stop() error {
	return fw.w.Close()
}
