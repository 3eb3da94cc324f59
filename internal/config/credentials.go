package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"

	"github.com/Seunghyun-Min/nextjs-recoru/internal/portal"
)

const (
	EnvContractID = "RECORU_CONTRACTID"
	EnvUser       = "RECORU_USER"
	EnvPassword   = "RECORU_PASS"
)

// LoadCredentials reads the portal login from the environment after
// loading envFile, if it exists. Variables already set in the process
// environment win over the file.
func LoadCredentials(envFile string) (portal.Credentials, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return portal.Credentials{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	creds := portal.Credentials{
		ContractID: os.Getenv(EnvContractID),
		UserID:     os.Getenv(EnvUser),
		Password:   os.Getenv(EnvPassword),
	}
	if !creds.Complete() {
		return creds, fmt.Errorf("%w: set %s, %s and %s", portal.ErrMissingCredentials,
			EnvContractID, EnvUser, EnvPassword)
	}
	return creds, nil
}
