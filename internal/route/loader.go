package route

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"rights-console-portal/agent/internal/scope"
)

// routeFile is the on-disk shape of the navigation forest.
type routeFile struct {
	Routes []routeEntry `yaml:"routes"`
}

type routeEntry struct {
	Pattern    string `yaml:"pattern"`
	Scope      string `yaml:"scope"`
	Parent     string `yaml:"parent"`
	Label      string `yaml:"label"`
	Role       string `yaml:"required_role"`
	Permission string `yaml:"required_permission"`
}

// Load reads a YAML route file and builds a validated Registry from it.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read route file: %w", err)
	}
	return Parse(data)
}

// Parse builds a validated Registry from YAML route file contents.
func Parse(data []byte) (*Registry, error) {
	var f routeFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse route file: %w", err)
	}
	if len(f.Routes) == 0 {
		return nil, fmt.Errorf("route file declares no routes")
	}
	nodes := make([]Node, 0, len(f.Routes))
	for _, e := range f.Routes {
		sc, ok := scope.Parse(e.Scope)
		if !ok {
			return nil, fmt.Errorf("route %q: unknown scope %q", e.Pattern, e.Scope)
		}
		nodes = append(nodes, Node{
			Pattern:            e.Pattern,
			Scope:              sc,
			ParentPath:         e.Parent,
			Label:              e.Label,
			RequiredRole:       e.Role,
			RequiredPermission: e.Permission,
		})
	}
	return New(nodes)
}

// Holder serves the current Registry and swaps it atomically on reload. A
// reload that fails validation keeps the previous registry in place.
type Holder struct {
	mu  sync.RWMutex
	reg *Registry
}

// NewHolder returns a Holder serving the given registry.
func NewHolder(reg *Registry) *Holder {
	return &Holder{reg: reg}
}

// Registry returns the currently active registry.
func (h *Holder) Registry() *Registry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.reg
}

func (h *Holder) swap(reg *Registry) {
	h.mu.Lock()
	h.reg = reg
	h.mu.Unlock()
}

// Watch reloads the route file whenever it changes on disk, until ctx is
// cancelled. The parent directory is watched rather than the file itself so
// editors that replace the file via rename are still observed.
func (h *Holder) Watch(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("route watcher: %w", err)
	}
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(path) {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
					continue
				}
				reg, err := Load(path)
				if err != nil {
					log.Printf("route: reload of %s failed, keeping previous registry: %v", path, err)
					continue
				}
				h.swap(reg)
				log.Printf("route: reloaded %s (%d routes)", path, len(reg.nodes))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("route: watcher error: %v", err)
			}
		}
	}()
	return nil
}
