// ABOUTME: MCP resource definitions
// ABOUTME: Provides a read-only view of the tracking session for AI agents

package mcp

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const sessionURI = "offroute://session"

func (s *Server) registerResources() {
	s.mcp.AddResource(&mcp.Resource{
		Name:        sessionURI,
		Description: "Tracking session state, planned route, and event counters",
		URI:         sessionURI,
		MIMEType:    "application/json",
	}, s.handleSessionResource)
}

func (s *Server) handleSessionResource(_ context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	output := s.snapshot()
	jsonBytes, _ := json.MarshalIndent(output, "", "  ") //nolint:errchkjson // output is always serializable

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{
				URI:      sessionURI,
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		},
	}, nil
}
