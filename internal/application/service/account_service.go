package service

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/garyjia/receipt-ledger/internal/accounts"
	"github.com/garyjia/receipt-ledger/internal/domain/entity"
)

// AccountService serves the chart of accounts parsed from the ledger file
type AccountService interface {
	Tree() []*entity.AccountNode
	Search(term string) []*entity.AccountNode
	Resolve(value string) (*entity.AccountNode, bool)
	Reload(ctx context.Context) error
}

type accountServiceImpl struct {
	load   func() (string, error)
	cache  *accounts.TreeCache
	logger Logger

	mu   sync.RWMutex
	tree []*entity.AccountNode
}

// NewAccountService reads and parses the ledger at path. The tree is kept
// until Reload is called.
func NewAccountService(path string, cache *accounts.TreeCache, logger Logger) (AccountService, error) {
	return newAccountService(func() (string, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read ledger %s: %w", path, err)
		}
		return string(data), nil
	}, cache, logger)
}

// NewAccountServiceFromText serves a fixed ledger text
func NewAccountServiceFromText(text string, cache *accounts.TreeCache, logger Logger) AccountService {
	s, _ := newAccountService(func() (string, error) { return text, nil }, cache, logger)
	return s
}

func newAccountService(load func() (string, error), cache *accounts.TreeCache, logger Logger) (*accountServiceImpl, error) {
	if cache == nil {
		cache = accounts.NewTreeCache(0)
	}
	s := &accountServiceImpl{load: load, cache: cache, logger: logger}
	if err := s.Reload(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

// Tree returns the parsed chart. Callers must not modify it.
func (s *accountServiceImpl) Tree() []*entity.AccountNode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree
}

func (s *accountServiceImpl) Search(term string) []*entity.AccountNode {
	return accounts.Search(s.Tree(), term)
}

func (s *accountServiceImpl) Resolve(value string) (*entity.AccountNode, bool) {
	return accounts.Resolve(s.Tree(), value)
}

// Reload re-reads the ledger. On failure the previous tree stays in place.
func (s *accountServiceImpl) Reload(ctx context.Context) error {
	text, err := s.load()
	if err != nil {
		s.logger.Error("Failed to load ledger", "error", err)
		return err
	}

	tree := s.cache.Parse(text)

	s.mu.Lock()
	s.tree = tree
	s.mu.Unlock()

	s.logger.Info("Chart of accounts loaded",
		"root_accounts", len(tree),
		"total_accounts", len(accounts.Flatten(tree)))
	return nil
}
