package app

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"intake/api/internal/auth"
	"intake/api/internal/authpw"
	"intake/api/internal/blob"
	"intake/api/internal/config"
	"intake/api/internal/export"
	"intake/api/internal/history"
	"intake/api/internal/notify"
	"intake/api/internal/rbac"
	"intake/api/internal/search"
	"intake/api/internal/session"
	"intake/api/internal/store"
	"intake/api/internal/workflow"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	Email        string
	FullName     string
	Role         rbac.Role
	ExpiresAt    time.Time
}

func (s Session) Actor() workflow.Actor {
	return workflow.Actor{ID: s.UserID, Role: s.Role, FullName: s.FullName}
}

type dataStore interface {
	workflow.Repository
	authpw.UserStore
	InsertRequest(context.Context, store.RequestRecord) error
	UpdateRequest(context.Context, store.RequestRecord) error
	GetRequestRecord(context.Context, string) (store.RequestRecord, error)
	ListRequests(context.Context, store.RequestFilter) ([]store.RequestRecord, error)
	InsertComment(context.Context, workflow.Comment) error
	ListCommentViews(context.Context, string) ([]store.CommentView, error)
	InsertAttachment(context.Context, store.Attachment) error
	ListAttachments(context.Context, string) ([]store.Attachment, error)
	GetAttachment(context.Context, string) (store.Attachment, error)
	Ping(ctx context.Context) error
}

type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (string, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

type searchService interface {
	Search(ctx context.Context, q search.Query) search.Response
	IndexRequest(record search.RequestRecord)
	IndexReview(record search.ReviewRecord)
}

type notifier interface {
	NotifyTransition(n notify.TransitionNotice) error
}

type exporter interface {
	Export(ctx context.Context, d export.Dossier, format export.Format) (*export.Result, error)
}

type historyService interface {
	Record(requestID string, snapshot any, author history.Author, message string) (history.Commit, error)
	History(requestID string, limit int) ([]history.Commit, error)
	Snapshot(requestID, hash string) (json.RawMessage, error)
}

// Components are the optional collaborators of Service. Nil fields fall back
// to in-process defaults or disable the feature.
type Components struct {
	Sessions sessionStore
	Search   searchService
	Blobs    blob.Store
	Notifier notifier
	Exporter exporter
	History  historyService
}

type Service struct {
	cfg      config.Config
	store    dataStore
	engine   *workflow.Engine
	issuer   *auth.Issuer
	accounts *authpw.Service
	sessions sessionStore
	search   searchService
	blobs    blob.Store
	notifier notifier
	exporter exporter
	history  historyService
	now      func() time.Time
	// async runs best-effort side effects; tests replace it to run inline.
	async   func(func())
	pending sync.WaitGroup
}

func New(cfg config.Config, data dataStore, components Components) *Service {
	svc := &Service{
		cfg:      cfg,
		store:    data,
		issuer:   auth.NewIssuer(cfg.JWTSecret, cfg.AccessTTL),
		accounts: authpw.NewService(data),
		sessions: components.Sessions,
		search:   components.Search,
		blobs:    components.Blobs,
		notifier: components.Notifier,
		exporter: components.Exporter,
		history:  components.History,
		now:      time.Now,
	}
	svc.async = svc.background
	svc.engine = workflow.NewEngine(data, workflow.WithClock(func() time.Time { return svc.now() }))
	if svc.sessions == nil {
		svc.sessions = session.NewMemoryStore()
	}
	if svc.exporter == nil {
		svc.exporter = export.NewService(cfg.ChromePath)
	}
	return svc
}

// background runs fn on its own goroutine and tracks it for Drain.
func (s *Service) background(fn func()) {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		fn()
	}()
}

// Drain waits for in-flight side effects such as notification mail. It
// returns ctx.Err() if they do not finish in time.
func (s *Service) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Auth

type RegisterInput struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	FullName   string `json:"full_name"`
	Role       string `json:"role"`
	Department string `json:"department"`
	Phone      string `json:"phone"`
}

type UserView struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	FullName   string    `json:"full_name"`
	Role       string    `json:"role"`
	Department string    `json:"department"`
	Phone      string    `json:"phone"`
	CreatedAt  time.Time `json:"created_at"`
}

func userView(user store.User) UserView {
	return UserView{
		ID:         user.ID,
		Email:      user.Email,
		FullName:   user.FullName,
		Role:       user.Role,
		Department: user.Department,
		Phone:      user.Phone,
		CreatedAt:  user.CreatedAt,
	}
}

func (s *Service) Register(ctx context.Context, input RegisterInput) (Session, UserView, error) {
	user, err := s.accounts.Register(ctx, authpw.RegisterRequest{
		Email:      input.Email,
		Password:   input.Password,
		FullName:   input.FullName,
		Role:       input.Role,
		Department: input.Department,
		Phone:      input.Phone,
	})
	if err != nil {
		return Session{}, UserView{}, err
	}
	sess, err := s.issueSession(ctx, user)
	if err != nil {
		return Session{}, UserView{}, err
	}
	slog.Info("user registered", "user_id", user.ID, "role", user.Role)
	return sess, userView(user), nil
}

func (s *Service) Login(ctx context.Context, email, password string) (Session, UserView, error) {
	user, err := s.accounts.Login(ctx, email, password)
	if err != nil {
		return Session{}, UserView{}, err
	}
	sess, err := s.issueSession(ctx, user)
	if err != nil {
		return Session{}, UserView{}, err
	}
	return sess, userView(user), nil
}

// Refresh rotates a refresh token: the presented one is revoked and a new
// pair is issued.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return Session{}, badRequest("refreshToken is required")
	}
	tokenHash := auth.HashToken(refreshToken)
	userID, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, workflow.ErrNotFound) {
			return Session{}, session.ErrSessionNotFound
		}
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil
	}
	return s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	token, expiresAt, err := s.issuer.Issue(user.ID, user.Email, user.Role, user.FullName)
	if err != nil {
		return Session{}, err
	}
	refreshToken, err := auth.RandomToken(32)
	if err != nil {
		return Session{}, err
	}
	refreshTTL := s.cfg.RefreshTTL
	if refreshTTL <= 0 {
		refreshTTL = 30 * 24 * time.Hour
	}
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refreshToken), user.ID, time.Now().Add(refreshTTL)); err != nil {
		return Session{}, err
	}
	return Session{
		Token:        token,
		RefreshToken: refreshToken,
		UserID:       user.ID,
		Email:        user.Email,
		FullName:     user.FullName,
		Role:         rbac.Normalize(user.Role),
		ExpiresAt:    expiresAt,
	}, nil
}

// SessionFromToken verifies an access token and confirms its user still
// exists. The role is taken from the stored user, not the token.
func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := s.issuer.Parse(token)
	if err != nil {
		return Session{}, err
	}
	user, err := s.store.GetUserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, workflow.ErrNotFound) {
			return Session{}, auth.ErrInvalidToken
		}
		return Session{}, err
	}
	var expiresAt time.Time
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	return Session{
		Token:     token,
		UserID:    user.ID,
		Email:     user.Email,
		FullName:  user.FullName,
		Role:      rbac.Normalize(user.Role),
		ExpiresAt: expiresAt,
	}, nil
}

func (s *Service) Me(ctx context.Context, sess Session) (UserView, error) {
	user, err := s.accounts.User(ctx, sess.UserID)
	if err != nil {
		return UserView{}, err
	}
	return userView(user), nil
}

// visibleRequest loads a request the caller may read. Requestors only see
// their own.
func (s *Service) visibleRequest(ctx context.Context, sess Session, requestID string) (store.RequestRecord, error) {
	record, err := s.store.GetRequestRecord(ctx, requestID)
	if err != nil {
		return store.RequestRecord{}, err
	}
	if record.RequestorID != sess.UserID && !rbac.Can(sess.Role, rbac.ActionViewAll) {
		return store.RequestRecord{}, forbiddenError()
	}
	return record, nil
}
