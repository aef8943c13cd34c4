package systemd

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
)

// UnitFilePaths are the paths checked for the installed unit file.
var UnitFilePaths = []string{
	"/etc/systemd/system/" + UnitName,
	"/usr/lib/systemd/system/" + UnitName,
}

// CheckUnitFileIntegrity compares the installed unit file against the
// hash stored at hashPath. Returns a warning message if the unit file
// has been modified, or empty string if integrity is confirmed or
// checking is not applicable (no unit file or no stored hash).
func CheckUnitFileIntegrity(hashPath string) string {
	var unitPath string
	for _, p := range UnitFilePaths {
		if _, err := os.Stat(p); err == nil {
			unitPath = p
			break
		}
	}
	if unitPath == "" {
		return ""
	}

	stored, err := os.ReadFile(hashPath)
	if err != nil {
		return ""
	}
	expectedHash := strings.TrimSpace(string(stored))
	if len(expectedHash) != 64 {
		return ""
	}

	data, err := os.ReadFile(unitPath)
	if err != nil {
		return fmt.Sprintf("cannot read unit file %s: %v", unitPath, err)
	}
	actualHash := hashBytes(data)
	if actualHash == expectedHash {
		return ""
	}

	return fmt.Sprintf("systemd unit file %s has been modified since it was generated (expected %s, got %s)",
		unitPath, expectedHash[:16], actualHash[:16])
}

// RecordUnitFileHash writes the SHA-256 hash of the unit file at
// unitPath to hashPath.
func RecordUnitFileHash(unitPath, hashPath string) error {
	data, err := os.ReadFile(unitPath)
	if err != nil {
		return fmt.Errorf("read unit file: %w", err)
	}
	return os.WriteFile(hashPath, []byte(hashBytes(data)+"\n"), 0o600)
}

func hashBytes(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
