package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"xin/internal/common/atomicfile"
	"xin/internal/common/validation"
	"xin/internal/envelope"
)

// Save writes the file atomically with owner-only permissions.
func Save(path string, file *File) error {
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return envelope.Configf("encoding config: %v", err)
	}
	data = append(data, '\n')

	if err := atomicfile.WriteFile(path, data, 0o600); err != nil {
		return envelope.Configf("writing config %s: %v", path, err)
	}
	_ = os.Chmod(filepath.Dir(path), 0o700)
	return nil
}

// Init creates a skeleton config file. Refuses to overwrite.
func Init(path string) (*File, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, envelope.Configf("config already exists at %s", path)
	}
	file := &File{Accounts: map[string]Account{}}
	if err := Save(path, file); err != nil {
		return nil, err
	}
	return file, nil
}

// SetDefaultAccount records the default account name.
func SetDefaultAccount(path, account string) error {
	file, err := Load(path)
	if err != nil {
		return err
	}
	if _, ok := file.Accounts[account]; !ok {
		return envelope.Configf("unknown account %q", account)
	}
	file.Defaults.Account = account
	return Save(path, file)
}

// SetToken stores a bearer token for the selected account, creating a
// "default" account when the file has none. When the account routes
// through a tokenFile the token is written there instead of into the
// config document.
func SetToken(path, account, token string) (string, error) {
	if token == "" {
		return "", envelope.Usagef("token must not be empty")
	}

	file, err := Load(path)
	if err != nil {
		return "", err
	}

	name, acct, err := selectAccount(file, account)
	if err != nil {
		return "", err
	}
	if name == "" {
		name = "default"
		acct = Account{}
	}
	if err := validation.ValidateAccountName(name); err != nil {
		return "", envelope.Usagef("invalid account name: %v", err)
	}

	if acct.Auth.TokenFile != "" {
		if err := atomicfile.WriteFile(acct.Auth.TokenFile, []byte(token+"\n"), 0o600); err != nil {
			return "", envelope.Configf("writing token file: %v", err)
		}
		return name, nil
	}

	acct.Auth.Type = "bearer"
	acct.Auth.Token = token
	file.Accounts[name] = acct
	return name, Save(path, file)
}
