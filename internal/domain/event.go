package domain

import "time"

// IngestionCompleted is published by the ingestion side once a batch of
// market data has been stored and can be backtested.
type IngestionCompleted struct {
	ID                string    `json:"id"`
	MarketCount       int       `json:"market_count"`
	CompletedAt       time.Time `json:"completed_at"`
	IngestedTimestamp time.Time `json:"ingested_timestamp"`
	Symbols           []string  `json:"symbols,omitempty"` // empty means all known symbols
}
