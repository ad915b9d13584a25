// Package envutil provides cached environment-variable lookups used to seed
// configuration defaults before the YAML config file is loaded.
package envutil

import (
	"os"
	"strconv"
	"sync"
)

// cache stores previously fetched non-empty environment variable values so
// repeat lookups avoid the relatively expensive syscall interaction.
var cache sync.Map // map[string]string

// OrDefault returns the value of the environment variable identified by key
// or the provided fallback if the variable is unset or empty.
func OrDefault(key, fallback string) string {
	if v, ok := cache.Load(key); ok {
		return v.(string)
	}
	if v, ok := os.LookupEnv(key); ok && v != "" {
		cache.Store(key, v)
		return v
	}
	return fallback
}

// OrDefaultInt returns the integer value of the environment variable
// identified by key or the provided fallback if the variable is unset,
// empty, or cannot be parsed as an integer.
func OrDefaultInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
