package pgdb

import (
	"context"
	"embed"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

//go:embed schema.sql
var schemaFS embed.FS

// EnsureSchema applies the embedded schema. All statements are
// idempotent; duplicate-object races from concurrent bootstraps are
// tolerated.
func EnsureSchema(ctx context.Context, exec *Executor, log zerolog.Logger) error {
	log.Info().Msg("Initializing database schema")

	schema, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read embedded schema: %w", err)
	}

	for i, stmt := range splitStatements(string(schema)) {
		if _, err := exec.Exec(ctx, Statement{SQL: stmt}, nil); err != nil {
			return fmt.Errorf("failed to execute schema statement %d: %w", i, err)
		}
	}

	log.Info().Msg("Database schema initialized")
	return nil
}

// splitStatements splits SQL text on semicolons outside string
// literals and comments. Comment text travels with its statement.
func splitStatements(sql string) []string {
	var statements []string
	var current strings.Builder

	flush := func() {
		if stmt := strings.TrimSpace(current.String()); stmt != "" {
			statements = append(statements, stmt)
		}
		current.Reset()
	}

	runes := []rune(sql)
	inString := false
	inLineComment := false
	inBlockComment := false

	for i := 0; i < len(runes); i++ {
		ch := runes[i]
		switch {
		case inLineComment:
			if ch == '\n' {
				inLineComment = false
			}
		case inBlockComment:
			if ch == '*' && i+1 < len(runes) && runes[i+1] == '/' {
				inBlockComment = false
				current.WriteRune(ch)
				i++
				ch = runes[i]
			}
		case inString:
			if ch == '\'' {
				inString = false
			}
		default:
			switch {
			case ch == '\'':
				inString = true
			case ch == '-' && i+1 < len(runes) && runes[i+1] == '-':
				inLineComment = true
			case ch == '/' && i+1 < len(runes) && runes[i+1] == '*':
				inBlockComment = true
			case ch == ';':
				flush()
				continue
			}
		}
		current.WriteRune(ch)
	}
	flush()
	return statements
}
