package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

func (s *Server) registerBorrowRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "borrowBook",
		Method:      http.MethodPost,
		Path:        "/api/v1/books/{id}/borrow",
		Summary:     "Borrow book",
		Description: "Borrows a book until the given due date. A user may hold a limited number of books at once.",
		Tags:        []string{"Borrowing"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleBorrowBook)

	huma.Register(s.api, huma.Operation{
		OperationID: "returnBook",
		Method:      http.MethodPost,
		Path:        "/api/v1/books/{id}/return",
		Summary:     "Return book",
		Description: "Returns a borrowed book and reports any late penalty",
		Tags:        []string{"Borrowing"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleReturnBook)
}

// === DTOs ===

// BorrowBookRequest is the request body for borrowing a book.
type BorrowBookRequest struct {
	ReturnDue string `json:"return_due" validate:"required,duedate" doc:"Due date as YYYY-MM-DD, read as midnight in the server time zone. An RFC 3339 timestamp is also accepted and used as the exact due instant." example:"2026-03-14"`
}

// BorrowBookInput wraps the borrow request for Huma.
type BorrowBookInput struct {
	ID   string `path:"id" doc:"Book ID"`
	Body BorrowBookRequest
}

// MessageResponse is a plain acknowledgement.
type MessageResponse struct {
	Message string `json:"message" doc:"Result message"`
}

// MessageOutput wraps a message response for Huma.
type MessageOutput struct {
	Body MessageResponse
}

// ReturnBookInput contains parameters for returning a book.
type ReturnBookInput struct {
	ID string `path:"id" doc:"Book ID"`
}

// ReturnBookResponse reports the result of a return.
type ReturnBookResponse struct {
	Message string `json:"message" doc:"Result message"`
	Penalty string `json:"penalty" doc:"Late penalty, two decimal places" example:"0.50"`
}

// ReturnBookOutput wraps the return response for Huma.
type ReturnBookOutput struct {
	Body ReturnBookResponse
}

// === Handlers ===

func (s *Server) handleBorrowBook(ctx context.Context, input *BorrowBookInput) (*MessageOutput, error) {
	user, err := s.RequireUser(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.validator.Validate(input.Body); err != nil {
		return nil, err
	}

	if err := s.allowLedgerWrite(user.ID); err != nil {
		return nil, err
	}

	if err := s.services.Borrowing.BorrowBook(ctx, user, input.ID, input.Body.ReturnDue); err != nil {
		return nil, err
	}

	return &MessageOutput{Body: MessageResponse{Message: "Book borrowed successfully"}}, nil
}

func (s *Server) handleReturnBook(ctx context.Context, input *ReturnBookInput) (*ReturnBookOutput, error) {
	user, err := s.RequireUser(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.allowLedgerWrite(user.ID); err != nil {
		return nil, err
	}

	penalty, err := s.services.Borrowing.ReturnBook(ctx, user, input.ID)
	if err != nil {
		return nil, err
	}

	return &ReturnBookOutput{
		Body: ReturnBookResponse{
			Message: "Book returned successfully",
			Penalty: penalty.StringFixed(2),
		},
	}, nil
}
