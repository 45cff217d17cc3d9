package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"bookstore/internal/logger"
	"bookstore/internal/models"
	"bookstore/internal/repositories"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const maxCommentLength = 2000

// ReviewView is a review as shown on a book page.
type ReviewView struct {
	ID                 string    `json:"id"`
	Rating             int       `json:"rating"`
	Comment            string    `json:"comment"`
	IsVerifiedPurchase bool      `json:"is_verified_purchase"`
	ReviewerName       string    `json:"reviewer_name"`
	CreatedAt          time.Time `json:"created_at"`
}

// ReviewPage is one page of a book's reviews.
type ReviewPage struct {
	Items []ReviewView `json:"items"`
	Total int64        `json:"total"`
	Page  int          `json:"page"`
	Size  int          `json:"size"`
}

// ReviewService manages book reviews and keeps each book's rating aggregate
// in step with them.
type ReviewService struct {
	store  *repositories.Store
	log    *zap.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// NewReviewService creates a new ReviewService.
func NewReviewService(store *repositories.Store, log *zap.Logger) *ReviewService {
	return &ReviewService{
		store:  store,
		log:    log,
		tracer: otel.Tracer("services/review"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func validateReview(rating int, comment string) error {
	if rating < 1 || rating > 5 {
		return BadRequest("Rating must be between 1 and 5")
	}
	if len(comment) > maxCommentLength {
		return BadRequest("Comment must be at most %d characters", maxCommentLength)
	}
	return nil
}

// CreateReview records the user's single review of a live book. The review is
// marked as a verified purchase when the user has a paid, shipped or completed
// order containing the book.
func (s *ReviewService) CreateReview(ctx context.Context, userID, bookID string, rating int, comment string) (*models.Review, error) {
	ctx, span := s.tracer.Start(ctx, "ReviewService.CreateReview", trace.WithAttributes(attribute.String("book.id", bookID)))
	defer span.End()

	comment = strings.TrimSpace(comment)
	if err := validateReview(rating, comment); err != nil {
		return nil, err
	}

	var review *models.Review
	err := s.store.Transaction(ctx, func(tx *repositories.Store) error {
		// the book row lock serialises rating recomputation
		if _, err := tx.Books.GetByIDForUpdate(ctx, bookID, false); err != nil {
			return notFoundOr(err, "Book")
		}

		_, err := tx.Reviews.GetByUserAndBook(ctx, userID, bookID)
		switch {
		case err == nil:
			return Conflict("You have already reviewed this book")
		case !errors.Is(err, repositories.ErrNotFound):
			return err
		}

		verified, err := tx.Orders.HasPurchased(ctx, userID, bookID)
		if err != nil {
			return err
		}

		review = &models.Review{
			UserID:             userID,
			BookID:             bookID,
			Rating:             rating,
			Comment:            comment,
			IsVerifiedPurchase: verified,
		}
		if err := tx.Reviews.Create(ctx, review); err != nil {
			if errors.Is(err, repositories.ErrDuplicate) {
				return Conflict("You have already reviewed this book")
			}
			return err
		}
		return s.refreshRating(ctx, tx, bookID)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	logger.Info(ctx, s.log, "review created",
		zap.String("review_id", review.ID),
		zap.String("book_id", bookID),
		zap.Bool("verified_purchase", review.IsVerifiedPurchase),
	)
	return review, nil
}

// ListReviews returns a page of a live book's reviews, newest first.
func (s *ReviewService) ListReviews(ctx context.Context, bookID string, page, size int) (*ReviewPage, error) {
	if _, err := s.store.Books.GetByID(ctx, bookID); err != nil {
		return nil, notFoundOr(err, "Book")
	}

	q := OrderQuery{Page: page, Size: size}.normalize()
	reviews, total, err := s.store.Reviews.ListByBook(ctx, bookID, (q.Page-1)*q.Size, q.Size)
	if err != nil {
		return nil, err
	}

	items := make([]ReviewView, 0, len(reviews))
	for _, r := range reviews {
		name := "Anonymous"
		if r.User != nil {
			name = r.User.Username
		}
		items = append(items, ReviewView{
			ID:                 r.ID,
			Rating:             r.Rating,
			Comment:            r.Comment,
			IsVerifiedPurchase: r.IsVerifiedPurchase,
			ReviewerName:       name,
			CreatedAt:          r.CreatedAt,
		})
	}
	return &ReviewPage{Items: items, Total: total, Page: q.Page, Size: q.Size}, nil
}

// UpdateReview changes the rating and/or comment of the user's own review.
// Nil fields are kept.
func (s *ReviewService) UpdateReview(ctx context.Context, userID, reviewID string, rating *int, comment *string) (*models.Review, error) {
	var review *models.Review
	err := s.withOwnReview(ctx, userID, reviewID, "You can only edit your own reviews", func(tx *repositories.Store, r *models.Review) error {
		if rating != nil {
			r.Rating = *rating
		}
		if comment != nil {
			r.Comment = strings.TrimSpace(*comment)
		}
		if err := validateReview(r.Rating, r.Comment); err != nil {
			return err
		}
		r.UpdatedAt = s.now()
		if err := tx.Reviews.Update(ctx, r); err != nil {
			return err
		}
		review = r
		return s.refreshRating(ctx, tx, r.BookID)
	})
	if err != nil {
		return nil, err
	}
	return review, nil
}

// DeleteReview removes the user's own review.
func (s *ReviewService) DeleteReview(ctx context.Context, userID, reviewID string) error {
	return s.withOwnReview(ctx, userID, reviewID, "You can only delete your own reviews", func(tx *repositories.Store, r *models.Review) error {
		if err := tx.Reviews.Delete(ctx, r.ID); err != nil {
			return err
		}
		return s.refreshRating(ctx, tx, r.BookID)
	})
}

// withOwnReview runs fn in a transaction holding the review's book row lock,
// after checking that userID wrote the review.
func (s *ReviewService) withOwnReview(ctx context.Context, userID, reviewID, forbidden string, fn func(tx *repositories.Store, r *models.Review) error) error {
	existing, err := s.store.Reviews.GetByID(ctx, reviewID)
	if err != nil {
		return notFoundOr(err, "Review")
	}
	if existing.UserID != userID {
		return Forbidden(forbidden)
	}

	return s.store.Transaction(ctx, func(tx *repositories.Store) error {
		if _, err := tx.Books.GetByIDForUpdate(ctx, existing.BookID, true); err != nil {
			return notFoundOr(err, "Book")
		}
		review, err := tx.Reviews.GetByID(ctx, reviewID)
		if err != nil {
			return notFoundOr(err, "Review")
		}
		return fn(tx, review)
	})
}

func (s *ReviewService) refreshRating(ctx context.Context, tx *repositories.Store, bookID string) error {
	average, count, err := tx.Reviews.RatingOf(ctx, bookID)
	if err != nil {
		return err
	}
	return tx.Books.SetRating(ctx, bookID, average, count)
}
