package postgres

import (
	"context"

	"library-lending-core/internal/domain"
	"library-lending-core/internal/repository"
)

type bookRepository struct {
	db DBTX
}

func NewBookRepository(db DBTX) repository.BookRepository {
	return &bookRepository{db: db}
}

func (r *bookRepository) GetByID(ctx context.Context, id int32) (*domain.Book, error) {
	b := &domain.Book{}
	query := `SELECT id, title, COALESCE(author, ''), COALESCE(isbn, '') FROM books WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).Scan(&b.ID, &b.Title, &b.Author, &b.ISBN)
	if err != nil {
		return nil, notFoundOr(err, "book", id)
	}
	return b, nil
}
