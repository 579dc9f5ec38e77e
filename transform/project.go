package transform

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/relloyd/sunglass-etl/etlerr"
	"gopkg.in/yaml.v2"
)

// Project is a transformation package: the project file plus its models and declared sources.
type Project struct {
	Name       string                 `yaml:"name"`
	ModelPaths []string               `yaml:"model-paths"`
	SourcePath []string               `yaml:"source-paths"` // older project files use source-paths for models.
	Models     map[string]interface{} `yaml:"models"`
	location   string
	models     []*Model
	sources    map[string]string // source name -> schema
}

type sourcesFile struct {
	Sources []struct {
		Name   string `yaml:"name"`
		Schema string `yaml:"schema"`
	} `yaml:"sources"`
}

// checkPackage returns a PackageNotFoundError unless location is a directory holding a project file.
func checkPackage(location string) error {
	fi, err := os.Stat(location)
	if err != nil {
		return &etlerr.PackageNotFoundError{Location: location, Err: err}
	}
	if !fi.IsDir() {
		return &etlerr.PackageNotFoundError{Location: location, Err: errors.New("not a directory")}
	}
	if _, err = os.Stat(filepath.Join(location, ProjectFileName)); err != nil {
		return &etlerr.PackageNotFoundError{Location: location, Err: err}
	}
	return nil
}

// LoadProject reads the project file at location and discovers its models.
func LoadProject(location string) (*Project, error) {
	if err := checkPackage(location); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(location, ProjectFileName))
	if err != nil {
		return nil, errors.Wrap(err, "error reading project file")
	}
	p := &Project{location: location, sources: make(map[string]string)}
	if err = yaml.Unmarshal(data, p); err != nil {
		return nil, errors.Wrapf(err, "error parsing %v", ProjectFileName)
	}
	paths := p.ModelPaths
	if len(paths) == 0 {
		paths = p.SourcePath
	}
	if len(paths) == 0 {
		paths = []string{defaultModelPath}
	}
	for _, mp := range paths {
		if err = p.discover(mp); err != nil {
			return nil, err
		}
	}
	sort.SliceStable(p.models, func(i, j int) bool { return p.models[i].Path < p.models[j].Path })
	return p, nil
}

// discover walks one model path collecting *.sql models and the sources declared in *.yml files.
func (p *Project) discover(modelPath string) error {
	root := filepath.Join(p.location, filepath.FromSlash(modelPath))
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return nil
	}
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		switch strings.ToLower(filepath.Ext(path)) {
		case ".sql":
			data, err := os.ReadFile(path)
			if err != nil {
				return errors.Wrapf(err, "error reading model %v", rel)
			}
			m := parseModel(rel, string(data))
			m.Materialized = p.materializationFor(m.Dirs)
			if m.configMaterialized != "" {
				m.Materialized = m.configMaterialized
			}
			p.models = append(p.models, m)
		case ".yml", ".yaml":
			data, err := os.ReadFile(path)
			if err != nil {
				return errors.Wrapf(err, "error reading %v", rel)
			}
			sf := sourcesFile{}
			if err = yaml.Unmarshal(data, &sf); err != nil {
				return errors.Wrapf(err, "error parsing %v", rel)
			}
			for _, s := range sf.Sources {
				if s.Schema != "" && !strings.Contains(s.Schema, "{{") {
					p.sources[s.Name] = s.Schema
				}
			}
		}
		return nil
	})
}

// materializationFor resolves the materialized setting for a model in the given directories from the models
// section of the project file. Deeper settings win.
func (p *Project) materializationFor(dirs []string) string {
	retval := MaterializedView
	var node interface{} = p.Models
	if v, ok := p.Models[p.Name]; ok {
		retval = materializedSetting(p.Models, retval)
		node = v
	}
	for _, d := range append([]string{""}, dirs...) {
		if d != "" {
			node = childNode(node, d)
		}
		if node == nil {
			break
		}
		retval = materializedSetting(node, retval)
	}
	return retval
}

func childNode(node interface{}, key string) interface{} {
	switch n := node.(type) {
	case map[string]interface{}:
		return n[key]
	case map[interface{}]interface{}:
		return n[key]
	}
	return nil
}

func materializedSetting(node interface{}, current string) string {
	for _, k := range []string{"+materialized", "materialized"} {
		if v, ok := childNode(node, k).(string); ok && v != "" {
			return strings.ToLower(v)
		}
	}
	return current
}

// SourceSchema returns the schema declared for a source, if any.
func (p *Project) SourceSchema(name string) (string, bool) {
	s, ok := p.sources[name]
	return s, ok
}

// ModelsList returns the models in path order.
func (p *Project) ModelsList() []*Model {
	return p.models
}
