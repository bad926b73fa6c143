package config

import (
	"os"

	"github.com/joho/godotenv"

	"git.home.luguber.info/inful/contentsync/internal/foundation/errors"
)

// envFiles are loaded in order; variables already in the process environment win.
var envFiles = []string{".env", ".env.local"}

// LoadDotEnv loads .env files from the working directory if present.
func LoadDotEnv() error {
	for _, name := range envFiles {
		if _, err := os.Stat(name); err != nil {
			continue
		}
		if err := godotenv.Load(name); err != nil {
			return errors.WrapError(err, errors.CategoryConfig, "loading env file").
				WithContext("file", name).Build()
		}
	}
	return nil
}
