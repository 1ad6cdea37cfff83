package config

const (
	// TopicExtractionJob carries terminal job events for the failed-job ledger.
	TopicExtractionJob = "extraction.job"
)
