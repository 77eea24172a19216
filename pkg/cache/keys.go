package cache

import "fmt"

// AgentsKey is the cache key for a tenant's resolved agent list.
func AgentsKey(tenantID string) string {
	return fmt.Sprintf("tenant:%s:agents", tenantID)
}

// AgentToolsKey is the cache key for one agent's resolved tool pipeline
// within a tenant.
func AgentToolsKey(tenantID, agentID string) string {
	return fmt.Sprintf("tenant:%s:agent:%s:tools", tenantID, agentID)
}
