package config

import (
	"errors"
	"io"
	"os"
	"path/filepath"
)

const DataDirEnv = "JOBFEED_DATA_DIR"

// ResolveDataDir picks the data dir: env first, then the given fallback,
// then ~/.jobfeed. The directory is created.
func ResolveDataDir(fallback string) (string, error) {
	dir := os.Getenv(DataDirEnv)
	if dir == "" {
		dir = fallback
	}
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(home, ".jobfeed")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// EnsureUserConfig copies defaultPath into <dataDir>/config.yml on first run.
// A missing default file yields a config written from Default().
func EnsureUserConfig(dataDir string, defaultPath string) (string, error) {
	userPath := filepath.Join(dataDir, "config.yml")

	_, err := os.Stat(userPath)
	if err == nil {
		return userPath, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}

	src, err := os.Open(defaultPath)
	if errors.Is(err, os.ErrNotExist) {
		cfg := Default()
		cfg.App.DataDir = dataDir
		return userPath, SaveAtomic(userPath, cfg)
	}
	if err != nil {
		return "", err
	}
	defer src.Close()

	dst, err := os.Create(userPath)
	if err != nil {
		return "", err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return "", err
	}
	return userPath, nil
}
