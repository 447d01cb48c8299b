package definition

import (
	"encoding/json"
	"fmt"
	"strconv"

	domprobe "github.com/kailas-cloud/cvgen/internal/domain/probe"
)

// definitionToHash converts a domain Definition to a map for HSET.
func definitionToHash(d domprobe.Definition) (map[string]string, error) {
	taxonomyJSON, err := json.Marshal(d.Taxonomy())
	if err != nil {
		return nil, fmt.Errorf("marshal taxonomy: %w", err)
	}
	active := "0"
	if d.Active() {
		active = "1"
	}
	return map[string]string{
		"id":            d.ID(),
		"name":          d.Name(),
		"description":   d.Description(),
		"category":      d.Category(),
		"severity":      string(d.Severity()),
		"active":        active,
		"taxonomy_json": string(taxonomyJSON),
		"created_at":    strconv.FormatInt(d.CreatedAt(), 10),
	}, nil
}

// definitionFromHash hydrates a domain Definition from an HGETALL result map.
func definitionFromHash(m map[string]string) (domprobe.Definition, error) {
	createdAt, err := strconv.ParseInt(m["created_at"], 10, 64)
	if err != nil {
		return domprobe.Definition{}, fmt.Errorf("invalid created_at: %w", err)
	}

	var taxonomy domprobe.Taxonomy
	if s := m["taxonomy_json"]; s != "" && s != "null" {
		if err := json.Unmarshal([]byte(s), &taxonomy); err != nil {
			return domprobe.Definition{}, fmt.Errorf("unmarshal taxonomy: %w", err)
		}
	}

	return domprobe.Reconstruct(
		m["id"], m["name"], m["description"], m["category"],
		domprobe.Severity(m["severity"]), m["active"] == "1", taxonomy, createdAt,
	), nil
}
