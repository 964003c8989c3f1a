package tei

import "context"

type rerankRequest struct {
	Query    string   `json:"query"`
	Texts    []string `json:"texts"`
	Truncate bool     `json:"truncate"`
}

// Score is one reranked candidate: its position in the input slice and the
// cross-encoder relevance score. Higher scores are more relevant.
type Score struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// Rerank scores each candidate text jointly with the query. Candidates
// past the model's token limit are truncated server-side, losing tail
// content. The result order follows the server (descending score).
func (c *Client) Rerank(ctx context.Context, query string, texts []string) ([]Score, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	var scores []Score
	err := c.post(ctx, "/rerank", rerankRequest{Query: query, Texts: texts, Truncate: true}, &scores)
	if err != nil {
		return nil, err
	}
	return scores, nil
}
