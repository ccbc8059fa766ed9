package config

import (
	"context"
	"fmt"
	"os"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Watch observes the YAML file named by TALLY_CONFIG and calls onLevel with
// the new log_level each time the file changes. It returns immediately when
// no file is configured. Watching stops when ctx is done.
func Watch(ctx context.Context, onLevel func(level string)) error {
	path := os.Getenv(EnvConfigPath)
	if path == "" {
		return nil
	}

	fp := file.Provider(path)
	err := fp.Watch(func(_ any, err error) {
		if err != nil {
			return
		}
		k := koanf.New(".")
		if err := k.Load(fp, yaml.Parser()); err != nil {
			return
		}
		if level := k.String("log_level"); level != "" {
			onLevel(level)
		}
	})
	if err != nil {
		return fmt.Errorf("%w: watch %s: %w", ErrLoadConfig, path, err)
	}

	go func() {
		<-ctx.Done()
		_ = fp.Unwatch()
	}()
	return nil
}
