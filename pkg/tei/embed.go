package tei

import (
	"context"
	"fmt"

	"github.com/rti/askwikidata/pkg/fn"
)

type embedRequest struct {
	Inputs    []string `json:"inputs"`
	Normalize bool     `json:"normalize"`
	Truncate  bool     `json:"truncate"`
}

// embed issues one /embed call for a slice of texts.
func (c *Client) embed(ctx context.Context, texts []string) ([][]float32, error) {
	var vectors [][]float32
	err := c.post(ctx, "/embed", embedRequest{Inputs: texts, Normalize: true, Truncate: true}, &vectors)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("tei: embed returned %d vectors for %d texts", len(vectors), len(texts))
	}
	for i := range vectors {
		vectors[i] = normalize(vectors[i])
	}
	return vectors, nil
}

// EmbedDocuments embeds texts in server calls of at most batchSize inputs
// and returns unit-normalized vectors in input order.
func (c *Client) EmbedDocuments(ctx context.Context, texts []string, batchSize int) ([][]float32, error) {
	if batchSize <= 0 {
		batchSize = len(texts)
	}
	out := make([][]float32, 0, len(texts))
	for _, batch := range fn.Chunk(texts, batchSize) {
		vectors, err := c.embed(ctx, batch)
		if err != nil {
			return nil, err
		}
		out = append(out, vectors...)
	}
	return out, nil
}

// EmbedQuery embeds a single query, applying the configured query prefix.
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.embed(ctx, []string{c.opts.QueryPrefix + text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}
