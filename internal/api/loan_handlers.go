package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/JoeAtEgypt/library-management/internal/service"
)

func (s *Server) registerLoanRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listLoans",
		Method:      http.MethodGet,
		Path:        "/api/v1/loans",
		Summary:     "List loans",
		Description: "Returns the caller's loans, newest first, with overdue state and accrued penalty",
		Tags:        []string{"Borrowing"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleListLoans)

	huma.Register(s.api, huma.Operation{
		OperationID: "getLoanSummary",
		Method:      http.MethodGet,
		Path:        "/api/v1/loans/summary",
		Summary:     "Loan summary",
		Description: "Returns how many books the caller holds and how many more they may borrow",
		Tags:        []string{"Borrowing"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleLoanSummary)
}

// === DTOs ===

// ListLoansInput contains parameters for listing loans.
type ListLoansInput struct {
	Active bool `query:"active" doc:"Only loans not yet returned"`
}

// LoanResponse contains loan data in API responses.
type LoanResponse struct {
	ID         string     `json:"id" doc:"Loan ID"`
	BookID     string     `json:"book_id" doc:"Book ID"`
	BorrowedAt time.Time  `json:"borrowed_at" doc:"When the book was borrowed"`
	ReturnDue  time.Time  `json:"return_due" doc:"When the book is due"`
	ReturnedAt *time.Time `json:"returned_at,omitempty" doc:"When the book was returned"`
	IsOverdue  bool       `json:"is_overdue" doc:"Active and past due"`
	Penalty    string     `json:"penalty" doc:"Late penalty so far (frozen once returned)"`
}

// ListLoansOutput wraps the loan list for Huma.
type ListLoansOutput struct {
	Body struct {
		Loans []LoanResponse `json:"loans" doc:"Loans"`
	}
}

// LoanSummaryResponse describes the caller's borrow transaction.
type LoanSummaryResponse struct {
	TransactionID  string `json:"transaction_id,omitempty" doc:"Borrow transaction ID; empty before the first borrow"`
	BorrowedCount  int    `json:"borrowed_count" doc:"Books currently held"`
	MaxActiveLoans int    `json:"max_active_loans" doc:"Cap on simultaneous loans"`
	Remaining      int    `json:"remaining" doc:"Books the caller may still borrow"`
}

// LoanSummaryOutput wraps the summary for Huma.
type LoanSummaryOutput struct {
	Body LoanSummaryResponse
}

// === Handlers ===

func (s *Server) handleListLoans(ctx context.Context, input *ListLoansInput) (*ListLoansOutput, error) {
	user, err := s.RequireUser(ctx)
	if err != nil {
		return nil, err
	}

	loans, err := s.services.Borrowing.ListLoans(ctx, user.ID, input.Active)
	if err != nil {
		return nil, err
	}

	out := &ListLoansOutput{}
	out.Body.Loans = make([]LoanResponse, len(loans))
	for i, l := range loans {
		out.Body.Loans[i] = toLoanResponse(l)
	}
	return out, nil
}

func (s *Server) handleLoanSummary(ctx context.Context, _ *struct{}) (*LoanSummaryOutput, error) {
	user, err := s.RequireUser(ctx)
	if err != nil {
		return nil, err
	}

	txn, err := s.services.Borrowing.Summary(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	limit := s.services.Borrowing.MaxActiveLoans()
	return &LoanSummaryOutput{
		Body: LoanSummaryResponse{
			TransactionID:  txn.ID,
			BorrowedCount:  txn.BorrowedCount,
			MaxActiveLoans: limit,
			Remaining:      max(limit-txn.BorrowedCount, 0),
		},
	}, nil
}

func toLoanResponse(l service.LoanView) LoanResponse {
	return LoanResponse{
		ID:         l.ID,
		BookID:     l.BookID,
		BorrowedAt: l.BorrowedAt,
		ReturnDue:  l.ReturnDue,
		ReturnedAt: l.ReturnedAt,
		IsOverdue:  l.IsOverdue,
		Penalty:    l.Penalty.StringFixed(2),
	}
}
