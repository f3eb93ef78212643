package types

// JSONMap is a free-form jsonb column payload.
type JSONMap map[string]any
