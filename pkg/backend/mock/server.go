package mock

import (
	"encoding/json"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-go-golems/docqa/pkg/backend"
	"github.com/go-go-golems/docqa/pkg/transcript"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// FailMarker makes ask fail with a rate limit error when it appears in the
// question.
const FailMarker = "#fail"

type user struct {
	UserID   string
	Email    string
	Password string
	Domain   string
}

// Server is an in-memory implementation of the backend HTTP API. Answers echo
// the question and cite the configured documents whose title shares a word
// with it.
type Server struct {
	mu        sync.Mutex
	histories map[string][]transcript.Entry
	feedback  []backend.FeedbackItem
	users     map[string]*user
	documents []transcript.Reference
	now       func() time.Time
}

type Option func(*Server)

func WithDocuments(docs ...transcript.Reference) Option {
	return func(s *Server) {
		s.documents = append(s.documents, docs...)
	}
}

func WithUser(domain, userID, email, password string) Option {
	return func(s *Server) {
		s.users[userKey(domain, userID)] = &user{UserID: userID, Email: email, Password: password, Domain: domain}
	}
}

// WithHistory seeds the transcript of a conversation.
func WithHistory(clientID, conversationID string, entries ...transcript.Entry) Option {
	return func(s *Server) {
		k := historyKey(clientID, conversationID)
		s.histories[k] = append(s.histories[k], entries...)
	}
}

func NewServer(options ...Option) *Server {
	ret := &Server{
		histories: map[string][]transcript.Entry{},
		users:     map[string]*user{},
		now:       time.Now,
	}
	for _, o := range options {
		o(ret)
	}
	return ret
}

func DefaultDocuments() []transcript.Reference {
	return []transcript.Reference{
		{URL: "/docs/leave-policy.pdf", Title: "Leave policy"},
		{URL: "/docs/expense-policy.pdf", Title: "Expense policy"},
		{URL: "/docs/security-handbook.pdf", Title: "Security handbook"},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Route("/api", func(api chi.Router) {
		api.Get("/history", s.handleHistory)
		api.Post("/ask", s.handleAsk)
		api.Post("/feedback/submit", s.handleFeedbackSubmit)
		api.Get("/feedback/dashboard", s.handleDashboard)
		api.Post("/login", s.handleLogin)
		api.Post("/register", s.handleRegister)
		api.Post("/forgot-password", s.handleForgotPassword)
	})

	return r
}

// History returns a copy of a conversation's stored entries.
func (s *Server) History(clientID, conversationID string) []transcript.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]transcript.Entry{}, s.histories[historyKey(clientID, conversationID)]...)
}

func (s *Server) Feedback() []backend.FeedbackItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]backend.FeedbackItem{}, s.feedback...)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	entries := s.History(q.Get("client_id"), q.Get("conversation_id"))
	respondJSON(w, http.StatusOK, entries)
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	req := backend.AskRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	question := strings.TrimSpace(req.Question)
	if question == "" {
		respondError(w, http.StatusBadRequest, "question is required")
		return
	}
	if strings.Contains(question, FailMarker) {
		respondError(w, http.StatusTooManyRequests, "rate limited")
		return
	}

	refs := s.cite(question)
	answer := "**You asked:** " + question + "\n\n"
	if len(refs) == 0 {
		answer += "No document covers this question."
	} else {
		answer += "See " + strconv.Itoa(len(refs)) + " cited document(s)."
	}

	s.mu.Lock()
	k := historyKey(req.ClientID, req.ConversationID)
	s.histories[k] = append(s.histories[k],
		transcript.Entry{Role: transcript.RoleUser, Content: question},
		transcript.Entry{Role: transcript.RoleAssistant, Content: answer},
	)
	if len(refs) > 0 {
		s.histories[k] = append(s.histories[k], transcript.Entry{
			Role:    transcript.RoleAssistant,
			Content: transcript.EncodeCitations(refs),
		})
	}
	s.mu.Unlock()

	respondJSON(w, http.StatusOK, backend.AskResponse{Answer: answer, References: refs})
}

func (s *Server) cite(question string) []transcript.Reference {
	words := map[string]struct{}{}
	for _, w := range strings.Fields(strings.ToLower(question)) {
		words[strings.Trim(w, "?.!,;:")] = struct{}{}
	}

	ret := []transcript.Reference{}
	for _, doc := range s.documents {
		for _, w := range strings.Fields(strings.ToLower(doc.Title)) {
			if _, ok := words[w]; ok {
				ret = append(ret, doc)
				break
			}
		}
	}
	return ret
}

func (s *Server) handleFeedbackSubmit(w http.ResponseWriter, r *http.Request) {
	req := backend.FeedbackRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !req.FeedbackType.IsValid() {
		respondError(w, http.StatusUnprocessableEntity, "feedback_type must be thumbs_up or thumbs_down")
		return
	}

	s.mu.Lock()
	s.feedback = append(s.feedback, backend.FeedbackItem{
		ID:             uuid.NewString(),
		ConversationID: req.ConversationID,
		ClientID:       req.ClientID,
		Question:       req.Question,
		Answer:         req.Answer,
		FeedbackType:   req.FeedbackType,
		Comment:        req.Comment,
		UserID:         req.UserID,
		CreatedAt:      s.now().UTC().Format(time.RFC3339),
	})
	s.mu.Unlock()

	respondJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	clientID := q.Get("client_id")
	feedbackType := backend.FeedbackType(q.Get("feedback_type"))
	page := atoiDefault(q.Get("page"), 1)
	pageSize := atoiDefault(q.Get("page_size"), backend.DefaultDashboardPageSize)

	s.mu.Lock()
	all := []backend.FeedbackItem{}
	for _, item := range s.feedback {
		if item.ClientID == clientID {
			all = append(all, item)
		}
	}
	s.mu.Unlock()

	stats := backend.DashboardStats{TotalFeedback: len(all)}
	filtered := []backend.FeedbackItem{}
	for _, item := range all {
		switch item.FeedbackType {
		case backend.FeedbackThumbsUp:
			stats.ThumbsUpCount++
		case backend.FeedbackThumbsDown:
			stats.ThumbsDownCount++
		}
		if feedbackType == "" || item.FeedbackType == feedbackType {
			filtered = append(filtered, item)
		}
	}
	if stats.TotalFeedback > 0 {
		stats.ThumbsUpPercentage = percentage(stats.ThumbsUpCount, stats.TotalFeedback)
		stats.ThumbsDownPercentage = percentage(stats.ThumbsDownCount, stats.TotalFeedback)
	}

	// newest first
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].CreatedAt > filtered[j].CreatedAt
	})

	totalPages := (len(filtered) + pageSize - 1) / pageSize
	if totalPages == 0 {
		totalPages = 1
	}
	start := (page - 1) * pageSize
	items := []backend.FeedbackItem{}
	if start < len(filtered) {
		end := start + pageSize
		if end > len(filtered) {
			end = len(filtered)
		}
		items = filtered[start:end]
	}

	respondJSON(w, http.StatusOK, backend.Dashboard{
		Stats:       stats,
		Items:       items,
		TotalPages:  totalPages,
		CurrentPage: page,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	req := backend.LoginRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s.mu.Lock()
	u, ok := s.users[userKey(req.Domain, req.Username)]
	if !ok {
		for _, candidate := range s.users {
			if candidate.Domain == req.Domain && candidate.Email == req.Username {
				u, ok = candidate, true
				break
			}
		}
	}
	s.mu.Unlock()

	if !ok || u.Password != req.Password {
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	respondJSON(w, http.StatusOK, backend.LoginResponse{StatusCode: http.StatusOK, Token: uuid.NewString()})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	req := backend.RegisterRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" || req.Email == "" || req.Password == "" {
		respondError(w, http.StatusUnprocessableEntity, "userid, email and password are required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	k := userKey(req.Domain, req.UserID)
	if _, exists := s.users[k]; exists {
		respondError(w, http.StatusConflict, "user already exists")
		return
	}
	s.users[k] = &user{UserID: req.UserID, Email: req.Email, Password: req.Password, Domain: req.Domain}
	respondJSON(w, http.StatusOK, map[string]string{"message": "registered"})
}

func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	req := backend.ForgotPasswordRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		respondError(w, http.StatusBadRequest, "email is required")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "reset link sent if the account exists"})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("mock backend request")
	})
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Warn().Err(err).Msg("could not write response")
	}
}

func respondError(w http.ResponseWriter, status int, detail string) {
	respondJSON(w, status, backend.ErrorResponse{Detail: detail})
}

func historyKey(clientID, conversationID string) string {
	return clientID + "\x00" + conversationID
}

func userKey(domain, userID string) string {
	return domain + "\x00" + userID
}

func atoiDefault(s string, def int) int {
	v, err := strconv.Atoi(s)
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func percentage(n, total int) float64 {
	return math.Round(float64(n)/float64(total)*10000) / 100
}
