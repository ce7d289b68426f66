/*
Package cli resolves the client's credentials and options. A Config merges,
field by field and in rising precedence, the persisted voc.conf record, the
system keyring, environment variables, and explicit command-line flags. An
explicit value always wins over a persisted one; an absent override never
erases a persisted value.

The package uses [keyring]'s platform-agnostic interface so that passwords
can live in an OS-dependent credential store instead of the conf file.
*/
package cli

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/99designs/keyring"
	"gopkg.in/yaml.v3"

	"github.com/volvooncall/voc/internal/log"
)

// Environment variable names read by [Config.ReadFromEnvironment].
const (
	EnvUsername     = "VOC_USERNAME"
	EnvPassword     = "VOC_PASSWORD"
	EnvRegion       = "VOC_REGION"
	EnvServiceURL   = "VOC_SERVICE_URL"
	EnvVIN          = "VOC_VIN"
	EnvOwntracksKey = "VOC_OWNTRACKS_KEY"
	EnvKeyringType  = "VOC_KEYRING_TYPE"
	EnvKeyringPass  = "VOC_KEYRING_PASSWORD"
	EnvKeyringPath  = "VOC_KEYRING_PATH"
)

// ErrMissingCredentials indicates no username/password pair could be
// assembled from any source. It is reported before any network activity.
var ErrMissingCredentials = errors.New("username and password are required")

// Config holds the merged client configuration.
type Config struct {
	Username     string
	Password     string
	Region       string
	ServiceURL   string
	VIN          string
	OwntracksKey string
	Geocode      bool

	Backend     keyring.Config
	BackendType backendType

	password *string // keyring file/keychain password, not the VOC password
	logger   *log.Logger
}

func NewConfig() *Config {
	c := Config{
		Backend: keyring.Config{
			ServiceName:              keyringServiceName,
			KeychainTrustApplication: true,
			KeyCtlScope:              "user",
		},
	}
	c.BackendType = backendType{&c}
	c.Backend.KeychainPasswordFunc = c.getPassword
	c.Backend.FilePasswordFunc = c.getPassword
	return &c
}

// SetLogger installs the logger; call after flag parsing, once verbosity is
// known.
func (c *Config) SetLogger(logger *log.Logger) {
	c.logger = logger
}

func (c *Config) RegisterCommandLineFlags() {
	flag.StringVar(&c.Username, "u", "", "VOC `username`. Defaults to $VOC_USERNAME or the conf file.")
	flag.StringVar(&c.Password, "p", "", "VOC `password`. Defaults to $VOC_PASSWORD, the conf file, or the system keyring.")
	flag.StringVar(&c.Region, "r", "", "Service `region` (eu, na, cn). Defaults to $VOC_REGION.")
	flag.StringVar(&c.ServiceURL, "s", "", "Service `URL` override. Defaults to $VOC_SERVICE_URL.")
	flag.StringVar(&c.VIN, "i", "", "Vehicle `identifier` (VIN or registration number). Defaults to $VOC_VIN.")
	flag.BoolVar(&c.Geocode, "g", false, "Reverse-geocode the vehicle position in status output.")
	flag.StringVar(&c.OwntracksKey, "owntracks-key", "", "Encryption `passphrase` for owntracks output. Defaults to $VOC_OWNTRACKS_KEY or the system keyring.")

	var names []string
	for _, name := range keyring.AvailableBackends() {
		names = append(names, string(name))
	}
	sort.Strings(names)
	flag.Var(&c.BackendType, "keyring-type", "Keyring `type` ("+strings.Join(names, "|")+"). Defaults to $VOC_KEYRING_TYPE.")
	flag.StringVar(&c.Backend.FileDir, "keyring-file-dir", keyringDirectory, "keyring `directory` for file-backed keyring types")
}

// ReadFromEnvironment populates c using environment variables. Values that
// are already populated are not overwritten, so calling this after
// flag.Parse keeps command-line parameters authoritative.
func (c *Config) ReadFromEnvironment() {
	fields := []struct {
		value *string
		env   string
		label string
	}{
		{&c.Username, EnvUsername, "username"},
		{&c.Password, EnvPassword, "password"},
		{&c.Region, EnvRegion, "region"},
		{&c.ServiceURL, EnvServiceURL, "service URL"},
		{&c.VIN, EnvVIN, "VIN"},
		{&c.OwntracksKey, EnvOwntracksKey, "owntracks key"},
	}
	for _, f := range fields {
		if *f.value == "" {
			if env := os.Getenv(f.env); env != "" {
				*f.value = env
				c.logger.Debug("Set %s from $%s", f.label, f.env)
			}
		}
	}
	if c.BackendType.String() == string(keyring.InvalidBackend) {
		if err := c.BackendType.Set(os.Getenv(EnvKeyringType)); err == nil {
			c.logger.Debug("Set keyring type to '%s'", c.BackendType)
		}
	}
	if c.password == nil {
		password := os.Getenv(EnvKeyringPass)
		c.password = &password
	}
	if c.Backend.FileDir == "" {
		c.Backend.FileDir = os.Getenv(EnvKeyringPath)
	}
}

// Persisted credential record. The voc.conf layout is a flat "key: value"
// document, which parses as YAML.
type fileCredentials struct {
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	Region       string `yaml:"region"`
	ServiceURL   string `yaml:"service_url"`
	VIN          string `yaml:"vin"`
	OwntracksKey string `yaml:"owntracks_key"`
}

// configFilePaths lists candidate conf file locations: next to the
// executable, in the home directory, and under XDG_CONFIG_HOME.
func configFilePaths() []string {
	var dirs []string
	if exe, err := os.Executable(); err == nil {
		dirs = append(dirs, filepath.Dir(exe))
	}
	home, err := os.UserHomeDir()
	if err == nil {
		dirs = append(dirs, home)
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		dirs = append(dirs, xdg)
	} else if err == nil {
		dirs = append(dirs, filepath.Join(home, ".config"))
	}
	var paths []string
	for _, dir := range dirs {
		for _, name := range []string{"voc.conf", ".voc.conf"} {
			paths = append(paths, filepath.Join(dir, name))
		}
	}
	return paths
}

// ReadFromFile fills unpopulated fields from the first readable conf file.
// A missing conf file is not an error; a malformed one is.
func (c *Config) ReadFromFile() error {
	for _, path := range configFilePaths() {
		c.logger.Debug("Checking for config file %s", path)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		return c.mergeFileRecord(path, data)
	}
	return nil
}

func (c *Config) mergeFileRecord(path string, data []byte) error {
	var record fileCredentials
	if err := yaml.Unmarshal(data, &record); err != nil {
		return fmt.Errorf("malformed credential file %s: %w", path, err)
	}
	c.logger.Debug("Read credentials from %s", path)
	merge := []struct {
		dst *string
		src string
	}{
		{&c.Username, record.Username},
		{&c.Password, record.Password},
		{&c.Region, record.Region},
		{&c.ServiceURL, record.ServiceURL},
		{&c.VIN, record.VIN},
		{&c.OwntracksKey, record.OwntracksKey},
	}
	for _, f := range merge {
		if *f.dst == "" {
			*f.dst = f.src
		}
	}
	return nil
}

// LoadCredentials consults the system keyring for secrets that are still
// missing after flags, environment, and conf file. Keyring misses are not
// errors; keyring access failures are.
func (c *Config) LoadCredentials() error {
	if c.Username == "" {
		return nil // nothing to key the lookup on
	}
	if c.Password == "" {
		password, err := c.LoadPasswordFromKeyring()
		if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
			return err
		}
		c.Password = password
	}
	if c.OwntracksKey == "" {
		key, err := c.LoadOwntracksKeyFromKeyring()
		if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
			return err
		}
		c.OwntracksKey = key
	}
	return nil
}

// Validate reports whether a session may be established with the merged
// configuration. It must be called before any network activity.
func (c *Config) Validate() error {
	if c.Username == "" || c.Password == "" {
		return ErrMissingCredentials
	}
	return nil
}
