package backend

import "strings"

// Available returns a comma-separated list of available backends.
func Available() string {
	entries := []string{Sim}
	if Has(OpenCL) {
		entries = append(entries, OpenCL)
	}
	return strings.Join(entries, ",")
}

func Has(name string) bool {
	switch name {
	case OpenCL:
		return openclEnabled
	default:
		return name == Sim
	}
}
