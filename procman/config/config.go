// Package config loads the procman manifest: an ordered list of child
// commands plus the environment preparation applied to all of them.
package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/prth/procman/procman"
)

// Manifest mirrors the procman.yaml document structure.
type Manifest struct {
	Version  string            `yaml:"version"`
	Workdir  string            `yaml:"workdir"`
	Env      map[string]string `yaml:"env"`
	EnvFile  string            `yaml:"envFile"`
	Children []*ChildSpec      `yaml:"children"`

	// ResolvedWorkdir is the manifest workdir resolved against the
	// manifest's own directory. Populated by Load.
	ResolvedWorkdir string `yaml:"-"`
}

// ChildSpec describes one child command.
type ChildSpec struct {
	Name    string            `yaml:"name"`
	Command []string          `yaml:"command"`
	Dir     string            `yaml:"dir"`
	Env     map[string]string `yaml:"env"`
}

// Load reads a manifest from the provided path. Unknown fields are
// rejected, $VAR references are expanded, the env file (if any) is merged
// under the inline env, and the result is validated.
func Load(path string) (*Manifest, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrap(err, "resolve manifest path")
	}

	f, err := os.Open(absPath)
	if err != nil {
		return nil, errors.Wrap(err, "open manifest")
	}
	defer f.Close()

	decoder := yaml.NewDecoder(f)
	decoder.KnownFields(true)

	var doc Manifest
	if err := decoder.Decode(&doc); err != nil {
		return nil, errors.Wrapf(err, "%s: decode", absPath)
	}

	doc.ResolvedWorkdir = resolveDir(filepath.Dir(absPath), os.ExpandEnv(doc.Workdir))

	inline := expandValues(doc.Env)

	var fileEnv map[string]string
	if doc.EnvFile != "" {
		expanded := os.ExpandEnv(doc.EnvFile)
		if !filepath.IsAbs(expanded) {
			expanded = filepath.Clean(filepath.Join(doc.ResolvedWorkdir, expanded))
		}
		doc.EnvFile = expanded

		fileEnv, err = loadEnvFile(expanded)
		if err != nil {
			return nil, errors.Wrapf(err, "%s: envFile", absPath)
		}
	}

	doc.Env = mergeEnv(fileEnv, inline)

	for _, child := range doc.Children {
		if child == nil {
			continue
		}
		child.Dir = resolveDir(doc.ResolvedWorkdir, os.ExpandEnv(child.Dir))
		child.Env = expandValues(child.Env)

		for i, arg := range child.Command {
			child.Command[i] = os.ExpandEnv(arg)
		}
	}

	if err := doc.Validate(); err != nil {
		return nil, errors.Wrapf(err, "%s", absPath)
	}

	return &doc, nil
}

// Validate checks that every child has a unique non-empty name and a
// non-empty command.
func (m *Manifest) Validate() error {
	if len(m.Children) == 0 {
		return errors.New("manifest declares no children")
	}

	seen := make(map[string]struct{}, len(m.Children))
	for i, child := range m.Children {
		if child == nil {
			return fmt.Errorf("children[%d]: empty entry", i)
		}
		if child.Name == "" {
			return fmt.Errorf("children[%d]: missing name", i)
		}
		if _, ok := seen[child.Name]; ok {
			return fmt.Errorf("children[%d]: duplicate name %q", i, child.Name)
		}
		seen[child.Name] = struct{}{}

		if len(child.Command) == 0 || child.Command[0] == "" {
			return fmt.Errorf("child %q: missing command", child.Name)
		}
	}

	return nil
}

// Commands converts the manifest into launch commands in declaration order.
// Each child's environment is the supervisor's environment overlaid with
// the manifest env, overlaid with the child's own env.
func (m *Manifest) Commands() []procman.Command {
	cmds := make([]procman.Command, 0, len(m.Children))

	for _, child := range m.Children {
		cmds = append(cmds, procman.Command{
			Name: child.Name,
			Argv: append([]string(nil), child.Command...),
			Dir:  child.Dir,
			Env:  environ(os.Environ(), m.Env, child.Env),
		})
	}

	return cmds
}

// environ overlays base KEY=VALUE pairs with the given maps, later wins.
func environ(base []string, overlays ...map[string]string) []string {
	merged := make(map[string]string, len(base))
	order := make([]string, 0, len(base))

	put := func(k, v string) {
		if _, ok := merged[k]; !ok {
			order = append(order, k)
		}
		merged[k] = v
	}

	for _, kv := range base {
		if eq := strings.IndexByte(kv, '='); eq >= 0 {
			put(kv[:eq], kv[eq+1:])
		}
	}

	var overlaid []string
	for _, overlay := range overlays {
		for k := range overlay {
			overlaid = append(overlaid, k)
		}
	}
	sort.Strings(overlaid)
	for _, overlay := range overlays {
		for _, k := range overlaid {
			if v, ok := overlay[k]; ok {
				put(k, v)
			}
		}
	}

	env := make([]string, 0, len(order))
	for _, k := range order {
		env = append(env, k+"="+merged[k])
	}

	return env
}

func mergeEnv(under, over map[string]string) map[string]string {
	if len(under) == 0 {
		return over
	}

	merged := make(map[string]string, len(under)+len(over))
	for k, v := range under {
		merged[k] = v
	}
	for k, v := range over {
		merged[k] = v
	}

	return merged
}

func expandValues(env map[string]string) map[string]string {
	if len(env) == 0 {
		return nil
	}

	expanded := make(map[string]string, len(env))
	for k, v := range env {
		expanded[k] = os.ExpandEnv(v)
	}

	return expanded
}

func resolveDir(base, dir string) string {
	if dir == "" {
		return base
	}
	if filepath.IsAbs(dir) {
		return filepath.Clean(dir)
	}
	return filepath.Clean(filepath.Join(base, dir))
}

// loadEnvFile parses a KEY=VALUE file, one pair per line. Blank lines and
// #-comments are skipped; a leading "export " is tolerated.
func loadEnvFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "load env file %q", path)
	}
	defer f.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(f)
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}

		raw = strings.TrimPrefix(raw, "export ")

		eq := strings.IndexByte(raw, '=')
		if eq <= 0 {
			return nil, fmt.Errorf("%s:%d: malformed line", path, lineNo)
		}

		key := strings.TrimSpace(raw[:eq])
		value := strings.TrimSpace(raw[eq+1:])
		value = strings.Trim(value, `"'`)

		values[key] = os.ExpandEnv(value)
	}

	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "read env file %q", path)
	}

	return values, nil
}
