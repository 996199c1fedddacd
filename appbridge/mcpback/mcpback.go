// Package mcpback adapts an MCP client session to the appbridge
// BackendClient seam: invoke-operation proxies to tools/call and
// read-resource to resources/read, with results translated into protocol
// shape unchanged.
package mcpback

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/appbridge/appbridge-go/bridge"
)

// Client proxies backend calls through an established MCP client session.
type Client struct {
	cs *mcp.ClientSession
}

// New wraps a connected MCP client session.
func New(cs *mcp.ClientSession) *Client {
	return &Client{cs: cs}
}

// CallOperation invokes a named tool on the backend.
func (c *Client) CallOperation(ctx context.Context, name string, args json.RawMessage) (*bridge.OperationResult, error) {
	params := &mcp.CallToolParams{Name: name}
	if len(args) > 0 {
		params.Arguments = args
	}
	res, err := c.cs.CallTool(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("call tool %q: %w", name, err)
	}

	out := &bridge.OperationResult{IsError: res.IsError}
	for _, content := range res.Content {
		out.Content = append(out.Content, convertContent(content))
	}
	if res.StructuredContent != nil {
		raw, err := json.Marshal(res.StructuredContent)
		if err != nil {
			return nil, fmt.Errorf("encode structured content: %w", err)
		}
		out.StructuredContent = raw
	}
	return out, nil
}

// ReadResource reads a resource from the backend by URI.
func (c *Client) ReadResource(ctx context.Context, uri string) (*bridge.ReadResourceResult, error) {
	res, err := c.cs.ReadResource(ctx, &mcp.ReadResourceParams{URI: uri})
	if err != nil {
		return nil, fmt.Errorf("read resource %q: %w", uri, err)
	}

	out := &bridge.ReadResourceResult{}
	for _, rc := range res.Contents {
		if rc == nil {
			continue
		}
		entry := bridge.ResourceContents{
			URI:      rc.URI,
			MimeType: rc.MIMEType,
			Text:     rc.Text,
		}
		if len(rc.Blob) > 0 {
			entry.Blob = base64.StdEncoding.EncodeToString(rc.Blob)
		}
		out.Contents = append(out.Contents, entry)
	}
	return out, nil
}

func convertContent(content mcp.Content) bridge.ContentBlock {
	switch c := content.(type) {
	case *mcp.TextContent:
		return bridge.ContentBlock{Type: "text", Text: c.Text}
	case *mcp.ImageContent:
		return bridge.ContentBlock{
			Type:     "image",
			Data:     base64.StdEncoding.EncodeToString(c.Data),
			MimeType: c.MIMEType,
		}
	case *mcp.AudioContent:
		return bridge.ContentBlock{
			Type:     "audio",
			Data:     base64.StdEncoding.EncodeToString(c.Data),
			MimeType: c.MIMEType,
		}
	case *mcp.ResourceLink:
		return bridge.ContentBlock{
			Type:     "resource_link",
			URI:      c.URI,
			Name:     c.Name,
			MimeType: c.MIMEType,
		}
	default:
		// Unknown content kinds degrade to their JSON rendering so nothing
		// is silently lost in transit.
		raw, err := json.Marshal(content)
		if err != nil {
			return bridge.ContentBlock{Type: "text"}
		}
		return bridge.ContentBlock{Type: "text", Text: string(raw)}
	}
}
