package config

import (
	"fmt"
	"sort"
	"strings"
)

// normalizer provides type-safe string-to-enum normalization with error handling.
type normalizer[T comparable] struct {
	name         string
	validValues  map[string]T
	defaultValue T
	validKeys    []string // Cached for error messages
}

// newNormalizer creates a normalizer with a map of valid string->value pairs.
// Several keys may map to the same value (aliases).
func newNormalizer[T comparable](name string, values map[string]T, defaultValue T) *normalizer[T] {
	normalized := make(map[string]T, len(values))
	validKeys := make([]string, 0, len(values))

	for k, v := range values {
		key := normalizeKey(k)
		normalized[key] = v
		validKeys = append(validKeys, key)
	}

	// Sort keys for consistent error messages
	sort.Strings(validKeys)

	return &normalizer[T]{
		name:         name,
		validValues:  normalized,
		defaultValue: defaultValue,
		validKeys:    validKeys,
	}
}

// Normalize returns the default value if the string is not recognized.
func (n *normalizer[T]) Normalize(raw string) T {
	if value, exists := n.validValues[normalizeKey(raw)]; exists {
		return value
	}
	return n.defaultValue
}

// Parse is like Normalize but rejects unknown input. Empty input yields the default.
func (n *normalizer[T]) Parse(raw string) (T, error) {
	cleaned := normalizeKey(raw)
	if cleaned == "" {
		return n.defaultValue, nil
	}
	if value, exists := n.validValues[cleaned]; exists {
		return value, nil
	}

	var zero T
	return zero, fmt.Errorf("invalid %s %q, valid options: %v", n.name, raw, n.validKeys)
}

// ValidKeys returns all valid normalized keys.
func (n *normalizer[T]) ValidKeys() []string {
	result := make([]string, len(n.validKeys))
	copy(result, n.validKeys)
	return result
}

func normalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
