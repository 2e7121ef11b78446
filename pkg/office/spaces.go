package office

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/goccy/go-json"

	"github.com/meetgrid/meetgrid/pkg/api"
	"github.com/meetgrid/meetgrid/pkg/config"
	"github.com/meetgrid/meetgrid/pkg/logger"
)

// libConf is an optimized internal library configuration
type libConf struct {
	path      string
	supported map[string]struct{}
	ignored   []string
	verbose   bool
	watchMode bool
}

// library indexes the space template files of the office. A template
// is one JSON file with the map name, bounds, and the spawn point.
// Templates with duplicate names are merged.
type library struct {
	config libConf
	// indicates template source existence
	hasSource bool
	// scan time
	lastScanDuration time.Duration
	// space name -> template meta
	spaces map[string]SpaceMeta
	log    *logger.Logger

	// to restrict parallel execution or throttling
	// for file watch mode
	mu                sync.Mutex
	isScanning        bool
	isScanningDelayed bool
}

type SpaceLibrary interface {
	GetAll() []SpaceMeta
	FindByName(name string) SpaceMeta
	Names() []string
	Scan()
}

type SpaceMeta struct {
	Name  string  // the display name of the space
	Path  string  // the template path relative to the library base path
	W     int     // map bounds
	H     int
	Spawn api.Pos // where newcomers appear
}

// spaceFile is the on-disk template format.
type spaceFile struct {
	Name   string  `json:"name"`
	Width  int     `json:"width"`
	Height int     `json:"height"`
	Spawn  api.Pos `json:"spawn"`
}

func NewLibrary(conf config.Library, log *logger.Logger) SpaceLibrary {
	hasSource := true
	dir, err := filepath.Abs(conf.BasePath)
	if err != nil {
		hasSource = false
		log.Error().Err(err).Str("dir", conf.BasePath).Msg("Lib has invalid source")
	}

	if len(conf.Supported) == 0 {
		conf.Supported = []string{"json"}
	}

	library := &library{
		config: libConf{
			path:      dir,
			supported: toMap(conf.Supported),
			ignored:   conf.Ignored,
			verbose:   conf.Verbose,
			watchMode: conf.WatchMode,
		},
		spaces:    map[string]SpaceMeta{},
		hasSource: hasSource,
		log:       log,
	}

	if conf.WatchMode && hasSource {
		go library.watch()
	}

	return library
}

func (lib *library) GetAll() []SpaceMeta {
	lib.mu.Lock()
	defer lib.mu.Unlock()
	var res []SpaceMeta
	for _, value := range lib.spaces {
		res = append(res, value)
	}
	return res
}

// FindByName returns the template meta of one space or a zero value.
func (lib *library) FindByName(name string) SpaceMeta {
	lib.mu.Lock()
	defer lib.mu.Unlock()
	if val, ok := lib.spaces[name]; ok {
		return val
	}
	return SpaceMeta{}
}

// Names lists the known space names sorted.
func (lib *library) Names() []string {
	lib.mu.Lock()
	res := make([]string, 0, len(lib.spaces))
	for name := range lib.spaces {
		res = append(res, name)
	}
	lib.mu.Unlock()
	sort.Strings(res)
	return res
}

func (lib *library) Scan() {
	if !lib.hasSource {
		lib.log.Info().Msg("Lib scan... skipped (no source)")
		return
	}

	// scan throttling
	lib.mu.Lock()
	if lib.isScanning {
		defer lib.mu.Unlock()
		lib.isScanningDelayed = true
		lib.log.Debug().Msg("Lib scan... delayed")
		return
	}
	lib.isScanning = true
	lib.mu.Unlock()

	lib.log.Debug().Msg("Lib scan... started")

	start := time.Now()
	var spaces []SpaceMeta
	dir := lib.config.path
	err := filepath.WalkDir(dir, func(path string, info fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if info == nil || info.IsDir() || !lib.isExtAllowed(path) {
			return nil
		}

		meta, err := lib.template(path)
		if err != nil {
			lib.log.Warn().Err(err).Str("dir", path).Msg("Lib skips a broken template")
			return nil
		}

		ignored := false
		for _, k := range lib.config.ignored {
			if meta.Name == k || (len(k) > 0 && k[0] == '.' && strings.Contains(meta.Name, k)) {
				ignored = true
				break
			}
		}

		if !ignored {
			spaces = append(spaces, meta)
		}

		return nil
	})

	if err != nil {
		lib.log.Error().Err(err).Str("dir", dir).Msgf("Lib scan... failed")
		return
	}

	lib.set(spaces)

	lib.lastScanDuration = time.Since(start)
	if lib.config.verbose {
		lib.dumpLibrary()
	}

	// run scan again if delayed
	lib.mu.Lock()
	defer lib.mu.Unlock()
	lib.isScanning = false
	if lib.isScanningDelayed {
		lib.isScanningDelayed = false
		go lib.Scan()
	}

	lib.log.Info().Msg("Lib scan... completed")
}

// template reads one space file, the file name is the fallback for a
// missing display name.
func (lib *library) template(path string) (SpaceMeta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SpaceMeta{}, err
	}
	var file spaceFile
	if err := json.Unmarshal(data, &file); err != nil {
		return SpaceMeta{}, err
	}

	name := file.Name
	if name == "" {
		base := filepath.Base(path)
		name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	relPath, _ := filepath.Rel(lib.config.path, path)

	return SpaceMeta{
		Name:  name,
		Path:  relPath,
		W:     file.Width,
		H:     file.Height,
		Spawn: file.Spawn,
	}, nil
}

// watch adds the ability to rescan the entire library
// during filesystem changes in a watched directory.
// !to add incremental library change
func (lib *library) watch() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		lib.log.Error().Err(err).Msg("Lib watcher has failed")
		return
	}

	done := make(chan bool)
	go func(repo *library) {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op == fsnotify.Create || event.Op == fsnotify.Remove || event.Op == fsnotify.Write {
					repo.Scan()
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}(lib)

	if err = watcher.Add(lib.config.path); err != nil {
		lib.log.Error().Err(err).Msg("Lib watch error")
	}
	<-done
	_ = watcher.Close()
	lib.log.Info().Msg("Lib watch has ended")
}

func (lib *library) set(spaces []SpaceMeta) {
	res := make(map[string]SpaceMeta, len(spaces))
	for _, value := range spaces {
		res[value.Name] = value
	}
	lib.mu.Lock()
	lib.spaces = res
	lib.mu.Unlock()
}

func (lib *library) isExtAllowed(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return false
	}
	_, ok := lib.config.supported[ext[1:]]
	return ok
}

// dumpLibrary printouts the current library snapshot of spaces
func (lib *library) dumpLibrary() {
	lib.mu.Lock()
	keys := make([]string, 0, len(lib.spaces))
	for k := range lib.spaces {
		keys = append(keys, k)
	}
	total := len(lib.spaces)
	lib.mu.Unlock()
	sort.Strings(keys)

	var list strings.Builder
	for _, k := range keys {
		space := lib.FindByName(k)
		list.WriteString("    " + space.Name + " (" + space.Path + ")\n")
	}

	lib.log.Debug().Msgf("Lib dump\n"+
		"--------------------------------------------\n"+
		"--- The Library of Spaces                ---\n"+
		"--------------------------------------------\n"+
		"%v"+
		"--------------------------------------------\n"+
		"--- Spaces: %03d %24s ---\n"+
		"--------------------------------------------",
		list.String(), total, lib.lastScanDuration)
}

func toMap(list []string) map[string]struct{} {
	res := make(map[string]struct{}, len(list))
	for _, s := range list {
		res[s] = struct{}{}
	}
	return res
}
