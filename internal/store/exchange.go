package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/ibeckermayer/fauxpost/internal/config"
)

// Exchange is one request/response pair with a classifier backend, kept for debugging
type Exchange struct {
	Timestamp time.Time `json:"timestamp"`
	Provider  string    `json:"provider"` // e.g. "remote"
	Model     string    `json:"model,omitempty"`
	Endpoint  string    `json:"endpoint,omitempty"`
	Request   string    `json:"request"`
	Response  string    `json:"response"`
	Status    int       `json:"status,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// ExchangeDir returns the path to the exchange dump directory.
// On macOS this is ~/Library/Caches/fauxpost/exchanges/
func ExchangeDir() (string, error) {
	cacheDir, err := config.CacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cacheDir, "exchanges"), nil
}

// SaveExchange writes the exchange as indented JSON into the default dump directory
func SaveExchange(exchange Exchange) (string, error) {
	dir, err := ExchangeDir()
	if err != nil {
		return "", err
	}
	return SaveExchangeTo(dir, exchange)
}

// SaveExchangeTo writes the exchange into dir and returns the file path
func SaveExchangeTo(dir string, exchange Exchange) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}

	// dashes instead of colons for filesystem compatibility; nanos keep concurrent dumps apart
	ts := exchange.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	filename := ts.Format("2006-01-02T15-04-05.000000000") + ".json"
	path := filepath.Join(dir, filename)

	data, err := json.MarshalIndent(exchange, "", "  ")
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", err
	}
	return path, nil
}
