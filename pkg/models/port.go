package models

import "strings"

// Well-known port names.
const (
	PortMain    = "main"
	PortSuccess = "success"
	PortError   = "error"
)

// ParsePortID parses a port ID in format "{node_id}:{port_name}" into components.
func ParsePortID(portID string) (string, string, bool) {
	nodeID, port, ok := strings.Cut(portID, ":")
	if !ok || nodeID == "" || port == "" {
		return "", "", false
	}

	return nodeID, port, true
}

// MakePortID creates a port ID from node ID and port name.
func MakePortID(nodeID, portName string) string {
	return nodeID + ":" + portName
}
