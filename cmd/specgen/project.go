package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"specgen/pkg/compiler"
	"specgen/pkg/emit"
	"specgen/pkg/fetch"
	"specgen/pkg/manifest"
	"specgen/pkg/suite"
)

// projectFlags are shared by every command that compiles suites. Set flags override
// the manifest.
type projectFlags struct {
	output    string
	pkg       string
	layout    string
	testParam string
	manifest  string
	offline   bool
}

func (f *projectFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "Directory to write generated files to (default: manifest output or .)")
	cmd.Flags().StringVar(&f.pkg, "pkg", "", "Package name of the generated files (default: manifest package or specs)")
	cmd.Flags().StringVar(&f.layout, "layout", "", "Output layout: flat or subtests")
	cmd.Flags().StringVar(&f.testParam, "test-param", "", "Name of the *testing.T parameter (default t)")
	cmd.Flags().StringVar(&f.manifest, "manifest", "", "Path to specgen.yml (default: search upwards from the working directory)")
	cmd.Flags().BoolVar(&f.offline, "offline", false, "Skip git sources")
}

type project struct {
	manifest *manifest.Manifest
	paths    []string
	// sources are the suite files contributed by git sources, already part of paths.
	sources []string
	output  string
	opts    compiler.Options
}

// sourceLoader returns the suite files a manifest's git sources contribute.
type sourceLoader func(m *manifest.Manifest) ([]string, error)

func (a *app) loadProject(flags *projectFlags, args []string) (*project, error) {
	return a.resolveProject(flags, args, a.fetchSources)
}

func (a *app) resolveProject(flags *projectFlags, args []string, loadSources sourceLoader) (*project, error) {
	m, err := findManifest(flags.manifest, len(args) == 0)
	if err != nil {
		return nil, err
	}
	p := &project{manifest: m, output: "."}
	p.opts = compiler.Options{PackageName: flags.pkg, TestParam: flags.testParam, Logger: a.logger}

	layout := flags.layout
	if m != nil {
		if p.opts.PackageName == "" {
			p.opts.PackageName = m.Package
		}
		if p.opts.TestParam == "" {
			p.opts.TestParam = m.TestParam
		}
		if layout == "" {
			layout = m.Layout
		}
		if m.Output != "" {
			p.output = m.Output
		}
		p.opts.Imports = m.Imports
	}
	if flags.output != "" {
		p.output = flags.output
	}
	if p.opts.Layout, err = emit.ParseLayout(layout); err != nil {
		return nil, err
	}

	if len(args) > 0 {
		p.paths = args
		return p, nil
	}
	if m == nil {
		return nil, errors.New("no suite files given and no specgen.yml found")
	}
	if p.paths, err = m.SuitePaths(); err != nil {
		return nil, err
	}
	if !flags.offline && len(m.Sources) > 0 {
		if p.sources, err = loadSources(m); err != nil {
			return nil, err
		}
		p.paths = append(p.paths, p.sources...)
	}
	if len(p.paths) == 0 {
		return nil, fmt.Errorf("no suite files match the globs in %s", m.Path)
	}
	return p, nil
}

// findManifest loads the manifest at path, or searches for one when search is set and
// path is empty. A missing manifest during a search is not an error.
func findManifest(path string, search bool) (*manifest.Manifest, error) {
	if path != "" {
		return manifest.Load(path)
	}
	if !search {
		return nil, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	found, ok := manifest.Find(wd)
	if !ok {
		return nil, nil
	}
	return manifest.Load(found)
}

// fetchSources checks out every git source, refreshes specgen.lock when a pin moved and
// returns the suite files the sources contribute.
func (a *app) fetchSources(m *manifest.Manifest) ([]string, error) {
	cacheDir, err := fetch.DefaultCacheDir()
	if err != nil {
		return nil, err
	}
	lock, err := manifest.LoadLockfile(m.LockPath())
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		lock = manifest.NewLockfile("specgen " + version)
		lock.Path = m.LockPath()
	}

	fetcher := fetch.NewGitFetcher(cacheDir).WithLock(lock).WithLogger(a.logger)
	changed := false
	var paths []string
	for _, src := range m.Sources {
		locked, dir, err := fetcher.Fetch(src.Name, src)
		if err != nil {
			return nil, err
		}
		if prev, ok := lock.Find(src.Name); !ok || *prev != *locked {
			lock.Upsert(locked)
			changed = true
		}
		a.logger.Info("source ready", zap.String("source", src.Name), zap.String("version", locked.Version))
		found, err := fetch.SuitePaths(dir, src.Suites)
		if err != nil {
			return nil, err
		}
		paths = append(paths, found...)
	}
	if changed {
		if err := manifest.WriteLockfile(lock, ""); err != nil {
			return nil, err
		}
	}
	return paths, nil
}

func loadSuites(paths []string) ([]*suite.Suite, error) {
	suites := make([]*suite.Suite, 0, len(paths))
	var failures []string
	for _, path := range paths {
		s, err := suite.Load(path)
		if err != nil {
			failures = append(failures, err.Error())
			continue
		}
		suites = append(suites, s)
	}
	if len(failures) > 0 {
		return nil, errors.New(strings.Join(failures, "\n"))
	}
	return suites, nil
}
