package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/household-ledger/internal/domain/ledger"
	"github.com/household-ledger/internal/platform/aiparse"
)

// ParseServiceImpl implements the ParseService interface
type ParseServiceImpl struct {
	ledgers LedgerReader
	parser  aiparse.Parser
	logger  *slog.Logger
}

// NewParseService creates a new parse service. parser may be nil when no
// model is configured, in which case every text is unparseable.
func NewParseService(logger *slog.Logger, ledgers LedgerReader, parser aiparse.Parser) ParseService {
	return &ParseServiceImpl{
		ledgers: ledgers,
		parser:  parser,
		logger:  logger,
	}
}

// ParseText restricts the draft's category to the ledger's current categories.
func (s *ParseServiceImpl) ParseText(ctx context.Context, actor ledger.Member, ledgerID, text string) (*aiparse.ParsedTransaction, error) {
	l, err := s.ledgers.GetLedger(ctx, actor, ledgerID)
	if err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if s.parser == nil || text == "" {
		return nil, nil
	}

	parsed, err := s.parser.Parse(ctx, text, l.Categories)
	if err != nil {
		return nil, err
	}
	if parsed == nil {
		s.logger.Info("Text could not be parsed", "ledger_id", ledgerID)
	}
	return parsed, nil
}
