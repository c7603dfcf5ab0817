package ir

// Version constants for the catalog format and the agent.
const (
	// CatalogFormatVersion is the catalog schema version.
	CatalogFormatVersion = "1"

	// AgentVersion is the keel agent version.
	AgentVersion = "0.1.0"
)
