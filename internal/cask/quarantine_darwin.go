//go:build darwin

package cask

import "golang.org/x/sys/unix"

// clearQuarantine removes the com.apple.quarantine xattr Gatekeeper sets on
// anything extracted from a downloaded archive, the way a user manually
// right-click-Opening the app would (§4.9 step 3).
func clearQuarantine(path string) error {
	err := unix.Removexattr(path, "com.apple.quarantine")
	if err == unix.ENOATTR {
		return nil
	}
	return err
}
