package confkit

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/zeromicro/go-zero/core/conf"
)

// ResolvePath expands environment variables in file and joins it to base
// unless it is already absolute.
func ResolvePath(base, file string) string {
	file = os.ExpandEnv(file)
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(base, file)
}

// BaseDir returns the directory of the main config file path.
func BaseDir(mainPath string) string {
	return filepath.Dir(mainPath)
}

// LoadFile loads a go-zero style config file into a fresh T.
func LoadFile[T any](path string, useEnv bool) (*T, error) {
	var cfg T
	opts := []conf.Option{}
	if useEnv {
		opts = append(opts, conf.UseEnv())
	}
	if err := conf.Load(path, &cfg, opts...); err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	return &cfg, nil
}

// Section is a config block whose body lives in its own file, e.g.
//
//	Loader:
//	  File: loader.yaml
type Section[T any] struct {
	File  string `json:",optional"`
	Value *T     `json:"-"`
}

// Hydrate resolves File against base, parses it with load and stores the
// result in Value. An empty File leaves the section untouched.
func (s *Section[T]) Hydrate(base string, load func(string) (*T, error)) error {
	if s.File == "" {
		return nil
	}
	p := ResolvePath(base, s.File)
	v, err := load(p)
	if err != nil {
		return err
	}
	s.File, s.Value = p, v
	return nil
}

// Require is Hydrate for sections that must be present.
func (s *Section[T]) Require(name, base string, load func(string) (*T, error)) error {
	if s.File == "" {
		return fmt.Errorf("config: %s.File is required", name)
	}
	if err := s.Hydrate(base, load); err != nil {
		return fmt.Errorf("config: %s: %w", name, err)
	}
	return nil
}
