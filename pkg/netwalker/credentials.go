package netwalker

import (
	"bufio"
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

// Credentials holds the username/password/enable-password triple used to
// authenticate against a device, regardless of transport (§6).
type Credentials struct {
	Username       string
	Password       string
	EnablePassword string
}

// CredentialArgs carries command-line-supplied credentials (priority 1).
// The CLI entry point is out of scope (§1); this type is the narrow
// interface it is expected to populate.
type CredentialArgs struct {
	Username       string
	Password       string
	EnablePassword string
}

const (
	envUsername       = "NETWALKER_USERNAME"
	envPassword       = "NETWALKER_PASSWORD"
	envEnablePassword = "NETWALKER_ENABLE_PASSWORD"
)

// LoadCredentials applies the priority chain from spec.md §6: CLI args,
// then environment variables, then an interactive TTY prompt. Any field
// already set by a higher-priority source is never overwritten by a lower
// one, so partial CLI args can be filled in from the environment.
func LoadCredentials(args CredentialArgs, promptIfTTY bool) (Credentials, error) {
	c := Credentials{
		Username:       args.Username,
		Password:       args.Password,
		EnablePassword: args.EnablePassword,
	}

	if c.Username == "" {
		c.Username = os.Getenv(envUsername)
	}
	if c.Password == "" {
		c.Password = os.Getenv(envPassword)
	}
	if c.EnablePassword == "" {
		c.EnablePassword = os.Getenv(envEnablePassword)
	}

	if !promptIfTTY {
		return c, nil
	}
	if c.Username == "" || c.Password == "" {
		if err := promptForMissing(&c); err != nil {
			return Credentials{}, err
		}
	}
	return c, nil
}

// promptForMissing fills in Username/Password from an interactive prompt,
// masking the password the way the teacher's TTY-aware helpers do via
// golang.org/x/term.
func promptForMissing(c *Credentials) error {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return fmt.Errorf("credentials incomplete and stdin is not a TTY")
	}
	reader := bufio.NewReader(os.Stdin)
	if c.Username == "" {
		fmt.Print("Username: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("read username: %w", err)
		}
		c.Username = strings.TrimSpace(line)
	}
	if c.Password == "" {
		fmt.Print("Password: ")
		pw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		c.Password = string(pw)
	}
	return nil
}

// credentialFileMagic tags the opaque-encoded form written to a credentials
// file so LoadCredentialsFile can distinguish it from an accidentally
// plaintext password (spec.md §6: "a plaintext password observed there is
// replaced by an opaque encoded form on write-back").
const credentialFileMagic = "nwenc1:"

// EncodeSecret returns the opaque on-disk form of a plaintext secret. This
// is obfuscation, not encryption — it exists only to avoid storing a raw
// password string verbatim, matching the teacher's credential-backend
// policy of never persisting plaintext (pkg/manager/credentials_backend.go).
func EncodeSecret(plaintext string) string {
	return credentialFileMagic + base64.StdEncoding.EncodeToString([]byte(plaintext))
}

// DecodeSecret reverses EncodeSecret. A value with no recognized prefix is
// returned unchanged (tolerating a hand-edited plaintext file).
func DecodeSecret(stored string) string {
	if !strings.HasPrefix(stored, credentialFileMagic) {
		return stored
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, credentialFileMagic))
	if err != nil {
		return stored
	}
	return string(raw)
}

// parseCredentialsFileLine splits one "key=value" line of an on-disk
// credentials file, mirroring the teacher's hostextras.go key=value format.
func parseCredentialsFileLine(line string) (key, value string, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", "", false
	}
	i := strings.IndexByte(line, '=')
	if i < 0 {
		return "", "", false
	}
	return strings.ToLower(strings.TrimSpace(line[:i])), strings.TrimSpace(line[i+1:]), true
}

// LoadCredentialsFile reads an optional on-disk credentials file (only
// consulted when explicitly requested per §6). Recognized keys: username,
// password, enable_password. Secret values are decoded with DecodeSecret.
func LoadCredentialsFile(path string) (Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Credentials{}, fmt.Errorf("read credentials file %s: %w", path, err)
	}
	var c Credentials
	sc := bufio.NewScanner(strings.NewReader(string(data)))
	for sc.Scan() {
		key, value, ok := parseCredentialsFileLine(sc.Text())
		if !ok {
			continue
		}
		switch key {
		case "username":
			c.Username = value
		case "password":
			c.Password = DecodeSecret(value)
		case "enable_password":
			c.EnablePassword = DecodeSecret(value)
		}
	}
	return c, nil
}

// WriteCredentialsFile persists Credentials to path, encoding both
// passwords with EncodeSecret so a later plaintext read never occurs.
func WriteCredentialsFile(path string, c Credentials) error {
	var b strings.Builder
	fmt.Fprintf(&b, "username=%s\n", c.Username)
	fmt.Fprintf(&b, "password=%s\n", EncodeSecret(c.Password))
	if c.EnablePassword != "" {
		fmt.Fprintf(&b, "enable_password=%s\n", EncodeSecret(c.EnablePassword))
	}
	return os.WriteFile(path, []byte(b.String()), 0o600)
}
