package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/newsroom-engine/internal/models"
)

// stripMarkdownCodeBlock removes markdown code block delimiters from AI responses
func stripMarkdownCodeBlock(response string) string {
	response = strings.TrimSpace(response)

	// Find the first { which starts valid JSON
	startIdx := strings.Index(response, "{")
	if startIdx == -1 {
		return response
	}

	// Find the last } which ends valid JSON
	endIdx := strings.LastIndex(response, "}")
	if endIdx == -1 || endIdx < startIdx {
		return response
	}

	return response[startIdx : endIdx+1]
}

type clusterResponse struct {
	Topics []struct {
		Master   string `json:"master"`
		Children []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Kind        string `json:"kind"`
			ContentType string `json:"content_type"`
		} `json:"children"`
	} `json:"topics"`
}

// Cluster groups trend items under master titles. An empty result is valid and
// means nothing was worth keeping.
func (c *Client) Cluster(ctx context.Context, items []models.TrendItem) ([]models.Cluster, error) {
	if len(items) == 0 {
		return nil, nil
	}

	var b strings.Builder
	for _, item := range items {
		fmt.Fprintf(&b, "- [%s] %s | %s\n", item.Kind, item.Title, item.URL)
	}

	response, err := c.CompleteWithJSON(ctx, ClusterSystemPrompt, fmt.Sprintf(ClusterUserPrompt, b.String()))
	if err != nil {
		return nil, err
	}

	clusters, err := parseClusters(response)
	if err != nil {
		c.log.Error().
			Err(err).
			Str("response", response).
			Msg("Failed to parse clustering response")
		return nil, err
	}

	c.log.Debug().Int("items", len(items)).Int("clusters", len(clusters)).Msg("Clustered trend items")
	return clusters, nil
}

func parseClusters(response string) ([]models.Cluster, error) {
	var parsed clusterResponse
	if err := json.Unmarshal([]byte(stripMarkdownCodeBlock(response)), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse clustering response: %w", err)
	}

	clusters := make([]models.Cluster, 0, len(parsed.Topics))
	for _, t := range parsed.Topics {
		cluster := models.Cluster{MasterTitle: strings.TrimSpace(t.Master)}
		for _, child := range t.Children {
			cluster.Children = append(cluster.Children, models.ClusterChild{
				Title:       strings.TrimSpace(child.Title),
				URL:         strings.TrimSpace(child.URL),
				Kind:        models.ParseSourceKind(child.Kind),
				ContentType: models.ParseContentType(child.ContentType),
			})
		}
		clusters = append(clusters, cluster)
	}
	return clusters, nil
}
