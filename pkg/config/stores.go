package config

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// LocalStoreOptions configures the local filesystem backend.
type LocalStoreOptions struct {
	// Root is the directory files are stored below
	Root string `mapstructure:"root"`
}

// LocalOptions decodes the local backend options map into its typed
// form.
func (c StorageConfig) LocalOptions() (LocalStoreOptions, error) {
	var opts LocalStoreOptions
	if err := mapstructure.Decode(c.Local, &opts); err != nil {
		return LocalStoreOptions{}, fmt.Errorf("decode local store options: %w", err)
	}
	return opts, nil
}
