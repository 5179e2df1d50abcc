// Command polyserve is a thin demonstration wrapper around the harness
// packages: it boots a supervisor, binds a sidecar health port, and drains
// on signal via terminus.
//
// Usage:
//
//	# Start with default config
//	polyserve run
//
//	# Start on a specific base port
//	polyserve run --port 8080
package main

func main() {
	Execute()
}
