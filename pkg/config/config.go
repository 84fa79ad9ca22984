// Package config loads YAML configuration files.
package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML file at path into conf.
//
// Unknown keys are rejected. If expandEnv is true, references to ${VAR} or
// $VAR are replaced with the environment variable before parsing, where
// ${VAR:default} falls back to 'default' if VAR is unset.
func Load(path string, conf interface{}, expandEnv bool) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %s: %w", path, err)
	}

	if expandEnv {
		buf = []byte(os.Expand(string(buf), lookupEnv))
	}

	dec := yaml.NewDecoder(bytes.NewReader(buf))
	dec.KnownFields(true)

	if err := dec.Decode(conf); err != nil {
		return fmt.Errorf("parse config: %s: %w", path, err)
	}

	return nil
}

func lookupEnv(s string) string {
	name, def, hasDefault := strings.Cut(s, ":")
	v, ok := os.LookupEnv(name)
	if !ok && hasDefault {
		return def
	}
	return v
}
