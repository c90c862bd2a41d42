//go:build darwin

package pipeline

import "golang.org/x/sys/unix"

// setQuarantine tags a downloaded cask archive with the macOS quarantine
// xattr (§4.4), the way Safari/curl-with-metalink would; failure is warned,
// not fatal, by the caller.
func setQuarantine(path string) error {
	value := "0081;" + quarantineSentinel() + ";;"
	return unix.Setxattr(path, "com.apple.quarantine", []byte(value), 0)
}
