package repository

// PostgresOption applies a configuration option to the PostgresStore.
type PostgresOption func(*PostgresStore)

// WithMaxRetries bounds how often a mutation is retried after losing a
// uniqueness race on (user_id, contest_id).
func WithMaxRetries(n int) PostgresOption {
	return func(s *PostgresStore) {
		if n >= 0 {
			s.maxRetries = n
		}
	}
}

// WithSchemaSetup controls whether NewPostgresStore creates missing tables.
func WithSchemaSetup(enabled bool) PostgresOption {
	return func(s *PostgresStore) {
		s.setupSchema = enabled
	}
}
