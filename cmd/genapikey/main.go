package main

import (
	"fmt"
	"log"

	"agentgateway/core"
)

func main() {
	log.Printf("🔑 Generating new agent API key...")

	// Generate a new secret key with "agk" prefix for agent use
	apiKey, err := core.NewSecretKey("agk")
	if err != nil {
		log.Fatalf("❌ Failed to generate API key: %v", err)
	}

	fmt.Printf("Generated API Key: %s\n", apiKey)
	log.Printf("✅ Successfully generated agent API key")
}
