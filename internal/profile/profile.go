// Package profile stores named database connection profiles plus per-profile
// analysis settings in a YAML file under the user config directory.
package profile

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const configFileName = "profiles.yaml"

var configDirFunc = configDir

// Settings tunes one profile's analysis behavior. Zero values mean the
// built-in defaults.
type Settings struct {
	StaleStatsDays      int   `yaml:"stale_stats_days,omitempty"`
	StatementTimeoutSec int   `yaml:"statement_timeout_sec,omitempty"`
	ConnectTimeoutSec   int   `yaml:"connect_timeout_sec,omitempty"`
	PoolMinConns        int32 `yaml:"pool_min_conns,omitempty"`
	PoolMaxConns        int32 `yaml:"pool_max_conns,omitempty"`
	HistoryKeepDays     int   `yaml:"history_keep_days,omitempty"`
}

type Profile struct {
	Name    string `yaml:"name"`
	ConnStr string `yaml:"conn_str"`

	// HistoryDSN points history storage at a different database. Empty
	// means snapshots live in the target database itself.
	HistoryDSN string `yaml:"history_dsn,omitempty"`

	Settings *Settings `yaml:"settings,omitempty"`
}

type Config struct {
	Default string `yaml:"default,omitempty"`

	// InstanceID distinguishes several installations writing to a shared
	// history database. Generated by `queryscope init`.
	InstanceID string `yaml:"instance_id,omitempty"`

	Profiles []Profile `yaml:"profiles"`
}

// Resolve returns the connection string of a named profile.
func Resolve(name string) (string, error) {
	p, err := Get(name)
	if err != nil {
		return "", err
	}
	return p.ConnStr, nil
}

// Get returns the full profile record, including settings.
func Get(name string) (*Profile, error) {
	cfg, err := load()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no profiles configured")
		}
		return nil, err
	}

	for i := range cfg.Profiles {
		if cfg.Profiles[i].Name == name {
			return &cfg.Profiles[i], nil
		}
	}

	return nil, fmt.Errorf("profile %q not found", name)
}

func List() ([]Profile, error) {
	cfg, err := load()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return cfg.Profiles, nil
}

func Add(name, connStr string) error {
	cfg, err := load()
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	if cfg == nil {
		cfg = &Config{}
	}

	for i, p := range cfg.Profiles {
		if p.Name == name {
			cfg.Profiles[i].ConnStr = connStr
			return save(cfg)
		}
	}

	cfg.Profiles = append(cfg.Profiles, Profile{
		Name:    name,
		ConnStr: connStr,
	})
	return save(cfg)
}

func Remove(name string) error {
	cfg, err := load()
	if err != nil {
		return err
	}

	for i, p := range cfg.Profiles {
		if p.Name == name {
			cfg.Profiles = append(cfg.Profiles[:i], cfg.Profiles[i+1:]...)
			if cfg.Default == name {
				cfg.Default = ""
			}
			return save(cfg)
		}
	}

	return fmt.Errorf("profile %q not found", name)
}

// ResolveProfile picks the effective profile: an explicit dsn wins, then a
// named profile, then the configured default. A dsn-only invocation yields
// an anonymous profile with default settings.
func ResolveProfile(dsn, profileName string) (*Profile, error) {
	if dsn != "" {
		return &Profile{ConnStr: dsn}, nil
	}
	if profileName != "" {
		return Get(profileName)
	}

	cfg, err := load()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if cfg.Default != "" {
		return Get(cfg.Default)
	}

	return nil, nil
}

// ResolveConnStr is the string-only form of ResolveProfile.
func ResolveConnStr(dsn, profileName string) (string, error) {
	p, err := ResolveProfile(dsn, profileName)
	if err != nil || p == nil {
		return "", err
	}
	return p.ConnStr, nil
}

// InstanceID returns the configured installation id, or empty when init has
// not run.
func InstanceID() (string, error) {
	cfg, err := load()
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return cfg.InstanceID, nil
}

// SetInstanceID records the installation id, keeping an existing one.
func SetInstanceID(id string) error {
	cfg, err := load()
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.InstanceID != "" {
		return nil
	}
	cfg.InstanceID = id
	return save(cfg)
}

func load() (*Config, error) {
	path, err := configPath()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return &cfg, nil
}

func configDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("finding config directory: %w", err)
	}
	return filepath.Join(base, "queryscope"), nil
}

func configPath() (string, error) {
	dir, err := configDirFunc()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFileName), nil
}

func ensureConfigDir() error {
	dir, err := configDirFunc()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

func save(cfg *Config) error {
	if err := ensureConfigDir(); err != nil {
		return err
	}

	path, err := configPath()
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config %s: %w", path, err)
	}

	return nil
}

func SetDefault(name string) error {
	cfg, err := load()
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	if cfg == nil {
		cfg = &Config{}
	}

	found := false
	for _, p := range cfg.Profiles {
		if p.Name == name {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("profile %q not found", name)
	}

	cfg.Default = name
	return save(cfg)
}

func GetDefault() (string, error) {
	cfg, err := load()
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return cfg.Default, nil
}

func ClearDefault() error {
	cfg, err := load()
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	cfg.Default = ""
	return save(cfg)
}

// UpdateSettings replaces the settings block of a named profile.
func UpdateSettings(name string, settings *Settings) error {
	cfg, err := load()
	if err != nil {
		return err
	}

	for i, p := range cfg.Profiles {
		if p.Name == name {
			cfg.Profiles[i].Settings = settings
			return save(cfg)
		}
	}

	return fmt.Errorf("profile %q not found", name)
}

// SetHistoryDSN points a profile's history storage at a separate database.
func SetHistoryDSN(name, dsn string) error {
	cfg, err := load()
	if err != nil {
		return err
	}

	for i, p := range cfg.Profiles {
		if p.Name == name {
			cfg.Profiles[i].HistoryDSN = dsn
			return save(cfg)
		}
	}

	return fmt.Errorf("profile %q not found", name)
}
