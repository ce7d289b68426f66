package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/99designs/keyring"
	"golang.org/x/term"
)

const (
	keyringServiceName   = "com.volvooncall.voc"
	keyringPasswordItem  = "vocPassword"
	keyringOwntracksItem = "owntracksKey"
	keyringDirectory     = "~/.voc_keys"
)

type backendType struct {
	config *Config
}

func (b backendType) String() string {
	if b.config == nil || len(b.config.Backend.AllowedBackends) == 0 {
		return string(keyring.InvalidBackend)
	}
	return string(b.config.Backend.AllowedBackends[0])
}

func (b backendType) Set(v string) error {
	value := keyring.BackendType(v)
	if b.config == nil {
		return fmt.Errorf("invalid backendType")
	}
	if v == "" {
		return nil
	}
	for _, name := range keyring.AvailableBackends() {
		if name == value {
			b.config.Backend.AllowedBackends = []keyring.BackendType{name}
			return nil
		}
	}
	return fmt.Errorf("unsupported credential storage")
}

// getPassword unlocks file- or keychain-backed keyrings. This is the keyring
// password, not the VOC account password.
func (c *Config) getPassword(prompt string) (string, error) {
	if c.password != nil && *c.password != "" {
		return *c.password, nil
	}
	password, err := promptSecret(prompt)
	if err != nil {
		return "", err
	}
	c.password = &password
	return password, nil
}

// promptSecret reads a secret from the terminal without echo.
func promptSecret(prompt string) (string, error) {
	var w io.Writer
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		fd = int(os.Stderr.Fd())
		if !term.IsTerminal(fd) {
			return "", fmt.Errorf("no terminal available for password prompt")
		}
		w = os.Stderr
	} else {
		w = os.Stdout
	}

	fmt.Fprintf(w, "%s: ", prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return "", err
	}
	fmt.Fprintln(w)
	return string(b), nil
}

func (c *Config) openKeyring() (keyring.Keyring, error) {
	return keyring.Open(c.Backend)
}

func (c *Config) passwordItemKey() string {
	return keyringPasswordItem + "." + c.Username
}

func (c *Config) owntracksItemKey() string {
	return keyringOwntracksItem + "." + c.Username
}

// LoadPasswordFromKeyring loads the VOC account password stored for
// c.Username.
func (c *Config) LoadPasswordFromKeyring() (string, error) {
	kr, err := c.openKeyring()
	if err != nil {
		return "", err
	}
	item, err := kr.Get(c.passwordItemKey())
	if err != nil {
		return "", err
	}
	return string(item.Data), nil
}

// SavePasswordToKeyring stores the VOC account password under c.Username.
func (c *Config) SavePasswordToKeyring(password string) error {
	kr, err := c.openKeyring()
	if err != nil {
		return err
	}
	if err := kr.Set(keyring.Item{
		Key:  c.passwordItemKey(),
		Data: []byte(password),
	}); err != nil {
		return fmt.Errorf("failed to enroll password in keyring: %s", err)
	}
	return nil
}

// LoadOwntracksKeyFromKeyring loads the owntracks encryption passphrase
// stored for c.Username.
func (c *Config) LoadOwntracksKeyFromKeyring() (string, error) {
	kr, err := c.openKeyring()
	if err != nil {
		return "", err
	}
	item, err := kr.Get(c.owntracksItemKey())
	if err != nil {
		return "", err
	}
	return string(item.Data), nil
}

// SaveOwntracksKeyToKeyring stores the owntracks encryption passphrase under
// c.Username.
func (c *Config) SaveOwntracksKeyToKeyring(key string) error {
	kr, err := c.openKeyring()
	if err != nil {
		return err
	}
	if err := kr.Set(keyring.Item{
		Key:  c.owntracksItemKey(),
		Data: []byte(key),
	}); err != nil {
		return fmt.Errorf("failed to enroll owntracks key in keyring: %s", err)
	}
	return nil
}

// DeleteCredentials removes the stored password and owntracks key for
// c.Username. Missing items are ignored.
func (c *Config) DeleteCredentials() error {
	kr, err := c.openKeyring()
	if err != nil {
		return err
	}
	for _, key := range []string{c.passwordItemKey(), c.owntracksItemKey()} {
		if err := kr.Remove(key); err != nil && err != keyring.ErrKeyNotFound {
			return err
		}
	}
	return nil
}

// PromptPassword interactively reads the VOC account password. Used by the
// credentials command; normal operation never prompts.
func PromptPassword() (string, error) {
	return promptSecret("VOC password")
}
