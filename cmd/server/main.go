// Command server runs the payment provider proxy.
//
// Usage:
//
//	# Start the proxy
//	server serve --config configs/providers.yaml
//
//	# Validate configuration and list providers
//	server check-config --config configs/providers.yaml
package main

import (
	_ "github.com/joho/godotenv/autoload"
)

func main() {
	Execute()
}
