package types

// StrategyDescriptor is the registry's public record for one strategy type.
// Created at registry load; only the enabled flag changes at runtime.
type StrategyDescriptor struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Enabled     bool   `json:"enabled" yaml:"enabled"`
}
