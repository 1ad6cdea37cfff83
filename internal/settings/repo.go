package settings

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Get(ctx context.Context) (*Settings, error) {
	s := &Settings{}
	query := `SELECT id, openai_api_key, openai_endpoint, openai_deployment, gemini_api_key, temperature, max_output_tokens, top_p, stop_sequences, pages_per_chunk, chunk_size, chunk_overlap FROM settings WHERE id = 1`
	err := r.db.QueryRowContext(ctx, query).Scan(
		&s.ID, &s.OpenAIAPIKey, &s.OpenAIEndpoint, &s.OpenAIDeployment, &s.GeminiAPIKey,
		&s.Temperature, &s.MaxOutputTokens, &s.TopP, pq.Array(&s.StopSequences),
		&s.PagesPerChunk, &s.ChunkSize, &s.ChunkOverlap,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *PostgresRepo) Update(ctx context.Context, s *Settings) error {
	query := `UPDATE settings SET openai_api_key = $1, openai_endpoint = $2, openai_deployment = $3, gemini_api_key = $4, temperature = $5, max_output_tokens = $6, top_p = $7, stop_sequences = $8, pages_per_chunk = $9, chunk_size = $10, chunk_overlap = $11, updated_at = NOW() WHERE id = 1`
	stops := s.StopSequences
	if stops == nil {
		stops = []string{}
	}
	_, err := r.db.ExecContext(ctx, query,
		s.OpenAIAPIKey, s.OpenAIEndpoint, s.OpenAIDeployment, s.GeminiAPIKey,
		s.Temperature, s.MaxOutputTokens, s.TopP, pq.Array(stops),
		s.PagesPerChunk, s.ChunkSize, s.ChunkOverlap,
	)
	return err
}
