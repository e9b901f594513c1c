package backend

import "strings"

// Available returns a comma-separated list of available backends.
func Available() string {
	entries := []string{CPU}
	if Has(CUDA) {
		entries = append(entries, CUDA)
	}
	return strings.Join(entries, ",")
}

// Has reports whether name can be opened in this build.
func Has(name string) bool {
	return name == CPU
}
