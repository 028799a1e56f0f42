package server

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/AgentToolkit/agent-mentor/internal/core/domain"
)

// pageCursor is the opaque pagination token carried between requests.
type pageCursor struct {
	Offset    int                  `json:"offset"`
	SortField string               `json:"sort_field"`
	Direction domain.SortDirection `json:"direction"`
}

// encodeCursor serializes the cursor as URL-safe base64 JSON.
func encodeCursor(c pageCursor) string {
	raw, _ := json.Marshal(c)
	return base64.URLEncoding.EncodeToString(raw)
}

// decodeCursor parses a cursor token. Empty tokens yield the zero cursor.
func decodeCursor(token string) (pageCursor, error) {
	if token == "" {
		return pageCursor{}, nil
	}
	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return pageCursor{}, fmt.Errorf("malformed cursor: %w", err)
	}
	var c pageCursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return pageCursor{}, fmt.Errorf("malformed cursor: %w", err)
	}
	if c.Offset < 0 {
		return pageCursor{}, fmt.Errorf("malformed cursor: negative offset")
	}
	return c, nil
}
