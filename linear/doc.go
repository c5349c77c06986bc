// Package linear is a minimal client for the Linear GraphQL API covering the
// operations the tool surface needs, plus the tool definitions themselves.
package linear
