package service

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/shestoi/ordersaga/services/payment/internal/repository"
)

// DefaultSeed начальные балансы тестовых пользователей
var DefaultSeed = []repository.Balance{
	{UserID: 101, Amount: 5000},
	{UserID: 102, Amount: 3000},
	{UserID: 103, Amount: 4200},
	{UserID: 104, Amount: 20000},
	{UserID: 105, Amount: 999},
}

type seedFile struct {
	Balances []struct {
		UserID int64 `yaml:"user_id"`
		Amount int64 `yaml:"amount"`
	} `yaml:"balances"`
}

// LoadSeedFile читает балансы из YAML:
//
//	balances:
//	  - user_id: 101
//	    amount: 5000
func LoadSeedFile(path string) ([]repository.Balance, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}

	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", path, err)
	}

	out := make([]repository.Balance, 0, len(f.Balances))
	for i, b := range f.Balances {
		if b.UserID <= 0 {
			return nil, fmt.Errorf("seed entry %d: user_id must be positive", i)
		}
		if b.Amount < 0 {
			return nil, fmt.Errorf("seed entry %d: amount must not be negative", i)
		}
		out = append(out, repository.Balance{UserID: b.UserID, Amount: b.Amount})
	}
	return out, nil
}

// SeedBalances создаёт отсутствующие балансы. Существующие не сбрасываются,
// поэтому перезапуск координатора не возвращает списанные деньги.
func (s *Service) SeedBalances(ctx context.Context, balances []repository.Balance) error {
	created := 0
	for _, b := range balances {
		ok, err := s.repo.EnsureBalance(ctx, b)
		if err != nil {
			return fmt.Errorf("seed balance for user %d: %w", b.UserID, err)
		}
		if ok {
			created++
		}
	}

	s.logger.Info("balances seeded", zap.Int("created", created), zap.Int("total", len(balances)))
	return nil
}
