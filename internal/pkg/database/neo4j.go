package database

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mwork/socialgraph-api/internal/pkg/graph"
)

// NewNeo4j connects the graph client used by the graph relationship store.
func NewNeo4j(opts graph.Options) (graph.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return graph.NewNeo4jClient(ctx, opts)
}

// CloseNeo4j closes the graph driver
func CloseNeo4j(client graph.Client) {
	if client == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Close(ctx); err != nil {
		log.Error().Err(err).Msg("Error closing Neo4j driver")
		return
	}
	log.Info().Msg("Neo4j driver closed")
}
