// Package testing prepares the process environment for package tests. Import
// it for side effects: binaries skip startup and config loading has secrets.
package testing

import (
	"os"
	"sync"
)

var once sync.Once

var defaults = map[string]string{
	"LMS_TEST_MODE":      "1",
	"LOG_FORMAT":         "text",
	"JWT_SECRET":         "test-access-secret",
	"JWT_REFRESH_SECRET": "test-refresh-secret",
}

func init() {
	once.Do(func() {
		for key, value := range defaults {
			if key == "LMS_TEST_MODE" || os.Getenv(key) == "" {
				_ = os.Setenv(key, value)
			}
		}
	})
}
