// Package keys validates and manipulates the composite identifiers used
// throughout Crosswalk.
//
// A framework key is "frameworkName#version" (e.g. "NIST-SP-800-53#R5").
// A control key is "frameworkName#version#controlId" (e.g.
// "AWS.ControlCatalog#1.0#API_GW_CACHE_ENABLED"); the controlId segment may
// itself contain '#'.
package keys

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	MaxControlKeyLength   = 256
	MaxFrameworkKeyLength = 128
	MaxTargetControlIDs   = 100
)

var (
	controlKeyPattern   = regexp.MustCompile(`^[A-Za-z0-9._-]+#[A-Za-z0-9._-]+#.+$`)
	frameworkKeyPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+#[A-Za-z0-9._-]+$`)
)

// ValidateControlKey returns a caller-facing message describing why the key is
// invalid, or "" when it is valid.
func ValidateControlKey(controlKey string) string {
	if controlKey == "" {
		return "control_key is required"
	}
	if len(controlKey) > MaxControlKeyLength {
		return fmt.Sprintf("control_key exceeds maximum length of %d", MaxControlKeyLength)
	}
	if !controlKeyPattern.MatchString(controlKey) {
		return "control_key must match format: frameworkName#version#controlId " +
			"(e.g., AWS.ControlCatalog#1.0#API_GW_CACHE_ENABLED)"
	}
	return ""
}

// ValidateFrameworkKey returns a caller-facing message describing why the key
// is invalid, or "" when it is valid.
func ValidateFrameworkKey(frameworkKey string) string {
	if frameworkKey == "" {
		return "target_framework_key is required"
	}
	if len(frameworkKey) > MaxFrameworkKeyLength {
		return fmt.Sprintf("target_framework_key exceeds maximum length of %d", MaxFrameworkKeyLength)
	}
	if !frameworkKeyPattern.MatchString(frameworkKey) {
		return "target_framework_key must match format: frameworkName#version " +
			"(e.g., NIST-SP-800-53#R5)"
	}
	return ""
}

// ValidateTargetControlIDs checks an explicit candidate restriction list.
func ValidateTargetControlIDs(ids []string) string {
	if len(ids) > MaxTargetControlIDs {
		return fmt.Sprintf("target_control_ids exceeds maximum count of %d", MaxTargetControlIDs)
	}
	for i, id := range ids {
		if id == "" {
			return fmt.Sprintf("target_control_ids[%d] cannot be empty", i)
		}
	}
	return ""
}

// ParseControlKey splits a control key into framework name, version and
// control id. The control id may contain '#'.
func ParseControlKey(controlKey string) (frameworkName, version, controlID string, err error) {
	parts := strings.SplitN(controlKey, "#", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", fmt.Errorf("invalid control key format: %q", controlKey)
	}
	return parts[0], parts[1], parts[2], nil
}

// FrameworkKeyOf returns the "frameworkName#version" prefix of a control key.
func FrameworkKeyOf(controlKey string) (string, error) {
	name, version, _, err := ParseControlKey(controlKey)
	if err != nil {
		return "", err
	}
	return name + "#" + version, nil
}

// BuildControlKey composes a control key from a framework key and control id.
func BuildControlKey(frameworkKey, controlID string) string {
	return frameworkKey + "#" + controlID
}

// ControlIDOf returns the trailing control-id segment of a control key. For a
// malformed key the key itself is returned so callers degrade gracefully.
func ControlIDOf(controlKey string) string {
	_, _, id, err := ParseControlKey(controlKey)
	if err != nil {
		return controlKey
	}
	return id
}
