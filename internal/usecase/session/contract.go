package session

import (
	"context"

	domprobe "github.com/kailas-cloud/cvgen/internal/domain/probe"
	domresult "github.com/kailas-cloud/cvgen/internal/domain/result"
	domsession "github.com/kailas-cloud/cvgen/internal/domain/session"
)

// ResultRepository defines the read side of the result store and ledger.
type ResultRepository interface {
	BySession(ctx context.Context, sessionID string) ([]domresult.Result, error)
	LatestSessionID(ctx context.Context) (string, error)
	GetSession(ctx context.Context, id string) (domsession.Session, error)
}

// DefinitionRepository defines catalog queries and the activation switch.
type DefinitionRepository interface {
	List(ctx context.Context) ([]domprobe.Definition, error)
	ListActive(ctx context.Context) ([]domprobe.Definition, error)
	SetActive(ctx context.Context, id string, active bool) error
}
