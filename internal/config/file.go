package config

import (
	"encoding/json"
	"os"

	"github.com/deskrecall/deskrecalld/internal/apperr"
	"github.com/google/renameio/v2"
)

// Load reads config.json from path. A missing file is not an error: the
// caller gets Default() back so first-run startup has something to work
// with.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return Config{}, apperr.Wrap(apperr.KindStorageIO, "read config file", err)
	}

	var c Config
	if err := json.Unmarshal(data, &c); err != nil {
		return Config{}, apperr.Wrap(apperr.KindConfigInvalid, "parse config file", err)
	}
	return c, nil
}

// Save writes cfg to path atomically: renameio builds the new content in a
// sibling temp file, fsyncs it, then renames it into place, so a crash
// mid-write never leaves config.json truncated or partially written. The
// file is created user-only (0600) since it may carry LLM API credentials
// (§6 "credentials are never persisted in plaintext... config file is
// stored with user-only filesystem permissions").
func Save(path string, cfg Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "marshal config", err)
	}

	pending, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o600))
	if err != nil {
		return apperr.Wrap(apperr.KindStorageIO, "create pending config file", err)
	}
	defer func() { _ = pending.Cleanup() }()

	if _, err := pending.Write(data); err != nil {
		return apperr.Wrap(apperr.KindStorageIO, "write pending config file", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return apperr.Wrap(apperr.KindStorageIO, "atomically replace config file", err)
	}
	return nil
}
