package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"path/filepath"
	"strings"

	"github.com/mstoykov/envconfig"
	"github.com/spf13/pflag"
	"gopkg.in/guregu/null.v3"
	"gopkg.in/yaml.v3"

	"github.com/niivue/niiview/cmd/state"
	"github.com/niivue/niiview/internal/errext"
	"github.com/niivue/niiview/internal/errext/exitcodes"
	"github.com/niivue/niiview/internal/fsext"
)

const defaultAddress = "localhost:6566"

// Config is the host configuration.
type Config struct {
	Address     null.String `json:"address" envconfig:"NIIVIEW_ADDRESS"`
	OpenBrowser null.Bool   `json:"openBrowser" envconfig:"NIIVIEW_OPEN_BROWSER"`
	Compression null.Bool   `json:"compression" envconfig:"NIIVIEW_COMPRESSION"`
	Root        null.String `json:"root" envconfig:"NIIVIEW_ROOT"`
}

// NewConfig returns the default configuration, relative paths resolving
// against cwd.
func NewConfig(cwd string) Config {
	return Config{
		Address:     null.NewString(defaultAddress, false),
		OpenBrowser: null.NewBool(true, false),
		Compression: null.NewBool(true, false),
		Root:        null.NewString(cwd, false),
	}
}

// Apply returns c with the valid values of cfg applied on top.
func (c Config) Apply(cfg Config) Config {
	if cfg.Address.Valid {
		c.Address = cfg.Address
	}
	if cfg.OpenBrowser.Valid {
		c.OpenBrowser = cfg.OpenBrowser
	}
	if cfg.Compression.Valid {
		c.Compression = cfg.Compression
	}
	if cfg.Root.Valid {
		c.Root = cfg.Root
	}
	return c
}

func configFlagSet() *pflag.FlagSet {
	flags := pflag.NewFlagSet("", pflag.ContinueOnError)
	flags.SortFlags = false
	flags.StringP("address", "a", defaultAddress, "address of the niiview host")
	flags.Bool("no-browser", false, "print the panel addresses instead of opening them in a browser")
	flags.Bool("no-compression", false, "disable the compression of pages and messages")
	flags.String("root", "", "base directory of relative paths (default the working directory)")
	return flags
}

func getConfig(flags *pflag.FlagSet) Config {
	conf := Config{
		Address: getNullString(flags, "address"),
		Root:    getNullString(flags, "root"),
	}
	if v := getNullBool(flags, "no-browser"); v.Valid {
		conf.OpenBrowser = null.BoolFrom(!v.Bool)
	}
	if v := getNullBool(flags, "no-compression"); v.Valid {
		conf.Compression = null.BoolFrom(!v.Bool)
	}
	return conf
}

// readDiskConfig reads the config file. A missing file is only an error when
// it was asked for explicitly.
func readDiskConfig(gs *state.GlobalState) (Config, error) {
	path := gs.Flags.ConfigFilePath
	data, err := fsext.ReadFile(gs.FS, path)
	if errors.Is(err, fs.ErrNotExist) && path == gs.DefaultFlags.ConfigFilePath {
		return Config{}, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("couldn't load the configuration from %q: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var raw map[string]any
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return Config{}, fmt.Errorf("couldn't parse the configuration from %q: %w", path, err)
		}
		if data, err = json.Marshal(raw); err != nil {
			return Config{}, err
		}
	}

	var conf Config
	if err := json.Unmarshal(data, &conf); err != nil {
		return Config{}, fmt.Errorf("couldn't parse the configuration from %q: %w", path, err)
	}
	return conf, nil
}

// Reads configuration variables from the environment.
func readEnvConfig(env map[string]string) (Config, error) {
	var conf Config
	err := envconfig.Process("", &conf, func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	})
	return conf, err
}

// getConsolidatedConfig merges, in order of precedence, the defaults, the
// config file, the environment and the command flags.
func getConsolidatedConfig(gs *state.GlobalState, flags *pflag.FlagSet) (Config, error) {
	cwd, err := gs.Getwd()
	if err != nil {
		return Config{}, err
	}

	fileConf, err := readDiskConfig(gs)
	if err != nil {
		return Config{}, errext.WithExitCodeIfNone(err, exitcodes.InvalidConfig)
	}
	envConf, err := readEnvConfig(gs.Env)
	if err != nil {
		return Config{}, errext.WithExitCodeIfNone(err, exitcodes.InvalidConfig)
	}

	conf := NewConfig(cwd).Apply(fileConf).Apply(envConf).Apply(getConfig(flags))
	conf.Root = null.NewString(fsext.Abs(cwd, conf.Root.String), conf.Root.Valid)

	if err := validateConfig(conf); err != nil {
		return Config{}, errext.WithExitCodeIfNone(err, exitcodes.InvalidConfig)
	}
	return conf, nil
}

func validateConfig(conf Config) error {
	if _, _, err := net.SplitHostPort(conf.Address.String); err != nil {
		return fmt.Errorf("invalid address %q: %w", conf.Address.String, err)
	}
	return nil
}
