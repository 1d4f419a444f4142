//go:build !linux

package watcher

// Without statfs magic numbers there is no cheap classification; unknown
// keeps fsnotify as the first choice.
func detectFilesystemType(path string) FilesystemType {
	return FSTypeUnknown
}
