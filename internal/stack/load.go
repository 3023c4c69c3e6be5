package stack

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

const defaultMaxBytes int64 = 5 << 20

// LoadFile reads a compose file from disk, enforcing a size limit.
func LoadFile(path string, maxBytes int64) ([]byte, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("compose path must not be empty")
	}
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open compose file: %w", err)
	}
	defer file.Close()

	body, err := readWithLimit(file, maxBytes)
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, errors.New("compose body is empty")
	}
	return body, nil
}

// Fingerprint computes a SHA-256 hash for the given compose bytes.
func Fingerprint(body []byte) (string, error) {
	if len(body) == 0 {
		return "", errors.New("compose body is empty")
	}
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:]), nil
}

func readWithLimit(r io.Reader, maxBytes int64) ([]byte, error) {
	limited := io.LimitReader(r, maxBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("read compose: %w", err)
	}
	if int64(len(body)) > maxBytes {
		return nil, fmt.Errorf("compose body exceeds %d bytes", maxBytes)
	}
	return body, nil
}
