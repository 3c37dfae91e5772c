package backend

import (
	"fmt"

	"github.com/go-go-golems/docqa/pkg/transcript"
)

type AskRequest struct {
	Question       string `json:"question"`
	ClientID       string `json:"client_id"`
	ConversationID string `json:"conversation_id"`
}

type AskResponse struct {
	Answer     string                 `json:"answer"`
	References []transcript.Reference `json:"references"`
}

type FeedbackType string

const (
	FeedbackThumbsUp   FeedbackType = "thumbs_up"
	FeedbackThumbsDown FeedbackType = "thumbs_down"
)

func (f FeedbackType) IsValid() bool {
	return f == FeedbackThumbsUp || f == FeedbackThumbsDown
}

type FeedbackRequest struct {
	ConversationID string       `json:"conversation_id"`
	ClientID       string       `json:"client_id"`
	Question       string       `json:"question"`
	Answer         string       `json:"answer"`
	FeedbackType   FeedbackType `json:"feedback_type"`
	Comment        *string      `json:"comment"`
	UserID         *string      `json:"user_id"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Domain   string `json:"domain"`
	URL      string `json:"url"`
}

type LoginResponse struct {
	StatusCode int    `json:"statusCode"`
	Token      string `json:"token"`
}

type RegisterRequest struct {
	UserID   string `json:"userid"`
	Email    string `json:"email"`
	Password string `json:"password"`
	// Confirm must equal Password. It is never sent.
	Confirm string `json:"-"`
	Domain  string `json:"domain"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

type DashboardQuery struct {
	ClientID     string
	Page         int
	PageSize     int
	FeedbackType FeedbackType
}

type DashboardStats struct {
	TotalFeedback        int     `json:"total_feedback"`
	ThumbsUpCount        int     `json:"thumbs_up_count"`
	ThumbsDownCount      int     `json:"thumbs_down_count"`
	ThumbsUpPercentage   float64 `json:"thumbs_up_percentage"`
	ThumbsDownPercentage float64 `json:"thumbs_down_percentage"`
}

type FeedbackItem struct {
	ID             string       `json:"id,omitempty"`
	ConversationID string       `json:"conversation_id"`
	ClientID       string       `json:"client_id,omitempty"`
	Question       string       `json:"question"`
	Answer         string       `json:"answer"`
	FeedbackType   FeedbackType `json:"feedback_type"`
	Comment        *string      `json:"comment"`
	UserID         *string      `json:"user_id"`
	CreatedAt      string       `json:"created_at,omitempty"`
}

type Dashboard struct {
	Stats       DashboardStats `json:"stats"`
	Items       []FeedbackItem `json:"feedback_items"`
	TotalPages  int            `json:"total_pages"`
	CurrentPage int            `json:"current_page"`
}

// ErrorResponse is the body of a failed request.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// APIError is a non-success response from the backend.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend returned status %d: %s", e.StatusCode, e.Detail)
}
