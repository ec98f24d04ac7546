package secrets

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"
)

const (
	// Service groups the app's secrets in the OS keychain.
	KeyringService = "jobfeed"
)

var ErrTokenNotFound = errors.New("source token not found")

// SourceTokenAccount is the keychain account for one source's API token.
func SourceTokenAccount(sourceType, identifier string) string {
	return fmt.Sprintf("jobfeed:source:%s:%s",
		strings.ToLower(strings.TrimSpace(sourceType)),
		strings.ToLower(strings.TrimSpace(identifier)),
	)
}

func GetSourceToken(sourceType, identifier string) (string, error) {
	tok, err := keyring.Get(KeyringService, SourceTokenAccount(sourceType, identifier))
	if errors.Is(err, keyring.ErrNotFound) || (err == nil && strings.TrimSpace(tok) == "") {
		return "", fmt.Errorf("%w for %s %q (set it in keychain)", ErrTokenNotFound, sourceType, identifier)
	}
	if err != nil {
		return "", err
	}
	return tok, nil
}

func SetSourceToken(sourceType, identifier, token string) error {
	if strings.TrimSpace(sourceType) == "" || strings.TrimSpace(identifier) == "" {
		return errors.New("source type and identifier are required")
	}
	if strings.TrimSpace(token) == "" {
		return errors.New("token is empty")
	}
	return keyring.Set(KeyringService, SourceTokenAccount(sourceType, identifier), strings.TrimSpace(token))
}

func DeleteSourceToken(sourceType, identifier string) error {
	if strings.TrimSpace(sourceType) == "" || strings.TrimSpace(identifier) == "" {
		return errors.New("source type and identifier are required")
	}
	err := keyring.Delete(KeyringService, SourceTokenAccount(sourceType, identifier))
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}

// HasSourceToken reports whether a non-empty token is stored.
func HasSourceToken(sourceType, identifier string) bool {
	_, err := GetSourceToken(sourceType, identifier)
	return err == nil
}
