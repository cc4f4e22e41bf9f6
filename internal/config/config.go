// Package config merges environment variables and the on-disk account
// file into the endpoint and credential bundle a command runs with.
package config

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"xin/internal/common/security"
	"xin/internal/envelope"
	"xin/internal/jmap"
)

// Environment variables. Env always wins over the file, field by field.
const (
	EnvConfigPath    = "XIN_CONFIG_PATH"
	EnvBaseURL       = "XIN_BASE_URL"
	EnvSessionURL    = "XIN_SESSION_URL"
	EnvToken         = "XIN_TOKEN"
	EnvTokenFile     = "XIN_TOKEN_FILE"
	EnvBasicUser     = "XIN_BASIC_USER"
	EnvBasicPass     = "XIN_BASIC_PASS"
	EnvBasicPassFile = "XIN_BASIC_PASS_FILE"
	EnvTrustHosts    = "XIN_TRUST_REDIRECT_HOSTS"
)

// Auth holds one account's credential source. Exactly one family is
// used: bearer (token, tokenEnv, or tokenFile, in that order) or basic
// (user plus pass or passFile).
type Auth struct {
	Type      string `json:"type,omitempty"`
	Token     string `json:"token,omitempty"`
	TokenEnv  string `json:"tokenEnv,omitempty"`
	TokenFile string `json:"tokenFile,omitempty"`
	User      string `json:"user,omitempty"`
	Pass      string `json:"pass,omitempty"`
	PassFile  string `json:"passFile,omitempty"`
}

// Account is one server endpoint in the config file.
type Account struct {
	BaseURL            string   `json:"baseUrl,omitempty"`
	SessionURL         string   `json:"sessionUrl,omitempty"`
	Auth               Auth     `json:"auth"`
	TrustRedirectHosts []string `json:"trustRedirectHosts,omitempty"`
}

// Defaults holds file-level defaults.
type Defaults struct {
	Account string `json:"account,omitempty"`
}

// File is the on-disk config document.
type File struct {
	Defaults Defaults           `json:"defaults"`
	Accounts map[string]Account `json:"accounts"`
}

// Resolved is the runtime bundle handed to the session client.
type Resolved struct {
	AccountName        string
	Origin             string
	SessionURL         string
	Credentials        jmap.Credentials
	TrustRedirectHosts []string
}

// Path returns the config file location: XIN_CONFIG_PATH, then
// $XDG_CONFIG_HOME/xin/config.json, then ~/.config/xin/config.json.
func Path() (string, error) {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p, nil
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "xin", "config.json"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", envelope.Configf("cannot locate config: %v (set %s)", err, EnvConfigPath)
	}
	return filepath.Join(home, ".config", "xin", "config.json"), nil
}

// Load reads the config file. A missing file yields an empty config,
// not an error; malformed JSON is a config error.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &File{Accounts: map[string]Account{}}, nil
	}
	if err != nil {
		return nil, envelope.Configf("reading config %s: %v", path, err)
	}

	var file File
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, envelope.Configf("parsing config %s: %v", path, err)
	}
	if file.Accounts == nil {
		file.Accounts = map[string]Account{}
	}
	return &file, nil
}

// Resolve merges environment over the selected account, field by
// field. An empty account selector falls back to the single configured
// account, then to the stored default.
func Resolve(path, account string) (*Resolved, error) {
	file, err := Load(path)
	if err != nil {
		return nil, err
	}

	name, acct, err := selectAccount(file, account)
	if err != nil {
		return nil, err
	}

	resolved := &Resolved{
		AccountName:        name,
		Origin:             acct.BaseURL,
		SessionURL:         acct.SessionURL,
		TrustRedirectHosts: acct.TrustRedirectHosts,
	}

	if v := os.Getenv(EnvBaseURL); v != "" {
		resolved.Origin = v
	}
	if v := os.Getenv(EnvSessionURL); v != "" {
		resolved.SessionURL = v
	}
	if v := os.Getenv(EnvTrustHosts); v != "" {
		resolved.TrustRedirectHosts = splitHosts(v)
	}

	creds, err := resolveCredentials(name, acct)
	if err != nil {
		return nil, err
	}
	resolved.Credentials = creds

	return resolved, nil
}

func selectAccount(file *File, selector string) (string, Account, error) {
	if selector != "" {
		acct, ok := file.Accounts[selector]
		if !ok {
			return "", Account{}, envelope.Configf("unknown account %q", selector)
		}
		return selector, acct, nil
	}

	if len(file.Accounts) == 1 {
		for name, acct := range file.Accounts {
			return name, acct, nil
		}
	}

	if def := file.Defaults.Account; def != "" {
		acct, ok := file.Accounts[def]
		if !ok {
			return "", Account{}, envelope.Configf("default account %q is not defined", def)
		}
		return def, acct, nil
	}

	// No account; the environment must carry everything.
	return "", Account{}, nil
}

func resolveCredentials(accountName string, acct Account) (jmap.Credentials, error) {
	envToken := os.Getenv(EnvToken)
	envTokenFile := os.Getenv(EnvTokenFile)
	envUser := os.Getenv(EnvBasicUser)
	envPass := os.Getenv(EnvBasicPass)
	envPassFile := os.Getenv(EnvBasicPassFile)

	hasBearer := envToken != "" || envTokenFile != ""
	hasBasic := envUser != "" || envPass != "" || envPassFile != ""

	if hasBearer && hasBasic {
		return jmap.Credentials{}, envelope.Configf(
			"both bearer (%s/%s) and basic (%s/…) credentials are set in the environment; unset one",
			EnvToken, EnvTokenFile, EnvBasicUser)
	}

	if hasBearer {
		token := envToken
		if token == "" {
			var err error
			token, err = readSecretFile(envTokenFile)
			if err != nil {
				return jmap.Credentials{}, envelope.Configf("reading %s: %v", EnvTokenFile, err)
			}
		}
		return jmap.Credentials{Type: jmap.AuthBearer, Token: token}, nil
	}

	if hasBasic {
		if envUser == "" {
			return jmap.Credentials{}, envelope.Configf("%s is required with basic credentials", EnvBasicUser)
		}
		pass := envPass
		if pass == "" && envPassFile != "" {
			var err error
			pass, err = readSecretFile(envPassFile)
			if err != nil {
				return jmap.Credentials{}, envelope.Configf("reading %s: %v", EnvBasicPassFile, err)
			}
		}
		return jmap.Credentials{Type: jmap.AuthBasic, User: envUser, Pass: pass}, nil
	}

	return accountCredentials(accountName, acct.Auth)
}

func accountCredentials(accountName string, auth Auth) (jmap.Credentials, error) {
	authType := strings.ToLower(auth.Type)
	if authType == "" {
		switch {
		case auth.Token != "" || auth.TokenEnv != "" || auth.TokenFile != "":
			authType = "bearer"
		case auth.User != "":
			authType = "basic"
		default:
			return jmap.Credentials{}, nil
		}
	}

	switch authType {
	case "bearer":
		token, err := bearerToken(auth)
		if err != nil {
			return jmap.Credentials{}, err
		}
		if token == "" {
			return jmap.Credentials{}, envelope.Configf(
				"account %q: bearer auth needs one of token, tokenEnv, tokenFile", accountName)
		}
		return jmap.Credentials{Type: jmap.AuthBearer, Token: token}, nil

	case "basic":
		if auth.User == "" {
			return jmap.Credentials{}, envelope.Configf("account %q: basic auth needs user", accountName)
		}
		pass := auth.Pass
		if pass == "" && auth.PassFile != "" {
			var err error
			pass, err = readSecretFile(auth.PassFile)
			if err != nil {
				return jmap.Credentials{}, envelope.Configf("account %q: reading passFile: %v", accountName, err)
			}
		}
		return jmap.Credentials{Type: jmap.AuthBasic, User: auth.User, Pass: pass}, nil

	default:
		return jmap.Credentials{}, envelope.Configf("account %q: unknown auth type %q", accountName, auth.Type)
	}
}

// bearerToken resolves the token in source order: literal, env-var
// name indirection, token file.
func bearerToken(auth Auth) (string, error) {
	if auth.Token != "" {
		return auth.Token, nil
	}
	if auth.TokenEnv != "" {
		v := os.Getenv(auth.TokenEnv)
		if v == "" {
			return "", envelope.Configf("token env var %s is unset or empty", auth.TokenEnv)
		}
		return v, nil
	}
	if auth.TokenFile != "" {
		token, err := readSecretFile(auth.TokenFile)
		if err != nil {
			return "", envelope.Configf("reading tokenFile: %v", err)
		}
		return token, nil
	}
	return "", nil
}

// readSecretFile reads a single-value file trimmed of trailing
// whitespace. Error messages carry the path, never the contents.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimRightFunc(string(data), unicode.IsSpace), nil
}

func splitHosts(raw string) []string {
	var hosts []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			hosts = append(hosts, part)
		}
	}
	return hosts
}

// CheckReady verifies the bundle can reach a server. Commands that
// only touch local state skip this.
func (r *Resolved) CheckReady() error {
	if r.Origin == "" && r.SessionURL == "" {
		return envelope.Configf("no server configured: set baseUrl in the config or %s", EnvBaseURL)
	}
	if r.Credentials.Token == "" && r.Credentials.User == "" {
		return envelope.Configf("no credentials configured: set %s or account auth", EnvToken)
	}
	return nil
}

// ClientOptions maps the bundle onto session client options.
func (r *Resolved) ClientOptions() jmap.Options {
	return jmap.Options{
		Origin:       r.Origin,
		SessionURL:   r.SessionURL,
		Credentials:  r.Credentials,
		TrustedHosts: r.TrustRedirectHosts,
	}
}

// Effective is the masked view rendered by config show --effective.
type Effective struct {
	ConfigPath         string   `json:"configPath"`
	Account            string   `json:"account,omitempty"`
	Origin             string   `json:"origin,omitempty"`
	SessionURL         string   `json:"sessionUrl,omitempty"`
	AuthType           string   `json:"authType"`
	Token              string   `json:"token,omitempty"`
	User               string   `json:"user,omitempty"`
	Pass               string   `json:"pass,omitempty"`
	TrustRedirectHosts []string `json:"trustRedirectHosts,omitempty"`
}

// EffectiveView masks credentials for display. Raw secret values never
// leave this package through it.
func (r *Resolved) EffectiveView(path string) Effective {
	view := Effective{
		ConfigPath:         path,
		Account:            r.AccountName,
		Origin:             r.Origin,
		SessionURL:         r.SessionURL,
		TrustRedirectHosts: r.TrustRedirectHosts,
		AuthType:           "none",
	}
	switch {
	case r.Credentials.Token != "":
		view.AuthType = "bearer"
		view.Token = security.MaskToken(r.Credentials.Token)
	case r.Credentials.User != "":
		view.AuthType = "basic"
		view.User = r.Credentials.User
		view.Pass = security.MaskPassword(r.Credentials.Pass)
	}
	return view
}

// Redacted returns a copy of the file with secret literals masked,
// for config show.
func (f *File) Redacted() *File {
	out := &File{
		Defaults: f.Defaults,
		Accounts: make(map[string]Account, len(f.Accounts)),
	}
	for name, acct := range f.Accounts {
		acct.Auth.Token = security.MaskToken(acct.Auth.Token)
		acct.Auth.Pass = security.MaskPassword(acct.Auth.Pass)
		out.Accounts[name] = acct
	}
	return out
}

// AccountNames returns the configured account names, sorted.
func (f *File) AccountNames() []string {
	names := make([]string, 0, len(f.Accounts))
	for name := range f.Accounts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
