package library

import (
	"context"

	"library-lending/internal/models"
)

// BulkAction to akcja masowa z panelu personelu
type BulkAction string

const (
	BulkApprove BulkAction = "approve"
	BulkReject  BulkAction = "reject"
)

// BulkResult to wynik akcji dla jednej prośby
type BulkResult struct {
	ID     string                 `json:"id"`
	Status models.BorrowingStatus `json:"status,omitempty"`
	Err    error                  `json:"-"`
	Error  string                 `json:"error,omitempty"`
}

// OK mówi czy akcja się powiodła
func (r BulkResult) OK() bool {
	return r.Err == nil
}

// ApproveMany zatwierdza kolejno podane prośby. Błąd jednej nie przerywa pozostałych;
// prośby odrzucone kaskadą wcześniejszego zatwierdzenia kończą się ErrStaleRequest.
func (s *Service) ApproveMany(ctx context.Context, ids []string, actor *models.User) []BulkResult {
	return s.runBulk(ctx, ids, func(id string) (models.BorrowingStatus, error) {
		res, err := s.Approve(ctx, id, actor)
		if err != nil {
			return "", err
		}
		return res.Borrowing.Status, nil
	})
}

// RejectMany odrzuca kolejno podane prośby z izolacją błędów
func (s *Service) RejectMany(ctx context.Context, ids []string, actor *models.User) []BulkResult {
	return s.runBulk(ctx, ids, func(id string) (models.BorrowingStatus, error) {
		b, err := s.Reject(ctx, id, actor)
		if err != nil {
			return "", err
		}
		return b.Status, nil
	})
}

// Bulk wykonuje akcję masową wskazaną nazwą
func (s *Service) Bulk(ctx context.Context, action BulkAction, ids []string, actor *models.User) ([]BulkResult, error) {
	switch action {
	case BulkApprove:
		return s.ApproveMany(ctx, ids, actor), nil
	case BulkReject:
		return s.RejectMany(ctx, ids, actor), nil
	}
	return nil, models.InvalidInput("nieznana akcja: " + string(action))
}

func (s *Service) runBulk(ctx context.Context, ids []string, fn func(id string) (models.BorrowingStatus, error)) []BulkResult {
	results := make([]BulkResult, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))

	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		if err := ctx.Err(); err != nil {
			results = append(results, BulkResult{ID: id, Err: err, Error: err.Error()})
			continue
		}

		status, err := fn(id)
		result := BulkResult{ID: id, Status: status, Err: err}
		if err != nil {
			result.Error = err.Error()
			s.logger.Warn("Akcja masowa nie powiodła się dla prośby", "borrowing_id", id, "error", err)
		}
		results = append(results, result)
	}
	return results
}
