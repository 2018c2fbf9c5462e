// Package config fills env-tagged structs with caarlos0/env.
//
//	type Config struct {
//		Port int `env:"HTTP_PORT" envDefault:"8080"`
//	}
//
// Any variable may instead be supplied as NAME_FILE holding a path; the file
// content, with surrounding whitespace trimmed, becomes the value of NAME.
// This is how container secrets such as JWT_ACCESS_SECRET are mounted.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v10"
)

const fileSuffix = "_FILE"

// Load parses the process environment into cfg.
func Load(cfg any) error {
	return LoadFrom(cfg, env.ToMap(os.Environ()))
}

// LoadFrom parses environ instead of the process environment. Unset keys get
// their envDefault.
func LoadFrom(cfg any, environ map[string]string) error {
	resolved, err := resolveFiles(environ)
	if err != nil {
		return err
	}
	if err := env.ParseWithOptions(cfg, env.Options{Environment: resolved}); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// resolveFiles expands NAME_FILE entries. Setting both NAME and NAME_FILE is
// an error.
func resolveFiles(environ map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(environ))
	for k, v := range environ {
		out[k] = v
	}

	for key, path := range environ {
		name, ok := strings.CutSuffix(key, fileSuffix)
		if !ok || name == "" || path == "" {
			continue
		}
		if _, dup := environ[name]; dup {
			return nil, fmt.Errorf("parse config: both %s and %s are set", name, key)
		}
		raw, err := os.ReadFile(path) // #nosec G304 -- path comes from the operator
		if err != nil {
			return nil, fmt.Errorf("parse config: read %s: %w", key, err)
		}
		out[name] = strings.TrimSpace(string(raw))
	}
	return out, nil
}
