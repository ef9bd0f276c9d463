package auth

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"lunexops/internal/apperr"
	"lunexops/internal/session"
	"lunexops/pkg/rbac"
	"lunexops/pkg/util"
)

// Account is one entry of the staff allow-list.
type Account struct {
	Email        string `yaml:"email"`
	Name         string `yaml:"name"`
	Role         string `yaml:"role"`
	PasswordHash string `yaml:"password_hash"`
}

type Config struct {
	Secret string
	Issuer string
	TTL    time.Duration
}

type Service struct {
	accounts map[string]Account
	cfg      Config
	logger   *zap.Logger
	now      func() time.Time
}

// NewService indexes the allow-list by lower-cased email. Accounts with an
// unknown role are skipped.
func NewService(accounts []Account, cfg Config, logger *zap.Logger) *Service {
	if cfg.TTL <= 0 {
		cfg.TTL = 12 * time.Hour
	}
	idx := make(map[string]Account, len(accounts))
	for _, a := range accounts {
		if !rbac.ValidRole(a.Role) {
			logger.Warn("Skipping staff account with unknown role",
				zap.String("email", a.Email),
				zap.String("role", a.Role),
			)
			continue
		}
		idx[strings.ToLower(strings.TrimSpace(a.Email))] = a
	}
	return &Service{
		accounts: idx,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Login checks credentials against the allow-list and returns a signed token.
func (s *Service) Login(ctx context.Context, email, password string) (string, session.Session, error) {
	a, ok := s.accounts[strings.ToLower(strings.TrimSpace(email))]
	if !ok || !util.CheckPassword(password, a.PasswordHash) {
		s.logger.Info("Login rejected", zap.String("email", email))
		return "", session.Session{}, apperr.New(apperr.CodeUnauthenticated, "invalid email or password")
	}
	return s.issue(session.Session{Email: a.Email, Name: a.Name, Role: a.Role})
}

// Renew re-issues a token for a session that is still valid.
func (s *Service) Renew(ctx context.Context, sess session.Session) (string, session.Session, error) {
	if !sess.Valid(s.now()) {
		return "", session.Session{}, apperr.New(apperr.CodeSessionExpired, "session expired")
	}
	// 角色以当前 allow-list 为准，已移除的账号不能续期
	a, ok := s.accounts[strings.ToLower(sess.Email)]
	if !ok {
		return "", session.Session{}, apperr.New(apperr.CodeUnauthenticated, "account no longer allowed")
	}
	return s.issue(session.Session{Email: a.Email, Name: a.Name, Role: a.Role})
}

// Parse validates token and returns the session it carries.
func (s *Service) Parse(token string) (session.Session, error) {
	claims, err := util.ParseJWT(token, s.cfg.Secret)
	if err != nil {
		if util.IsExpired(err) {
			return session.Session{}, apperr.New(apperr.CodeSessionExpired, "session expired")
		}
		return session.Session{}, &apperr.Error{Code: apperr.CodeUnauthenticated, Message: "invalid token", Cause: err}
	}
	sess := session.Session{
		Email: claims.Email,
		Name:  claims.Name,
		Role:  claims.Role,
	}
	if claims.IssuedAt != nil {
		sess.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		sess.ExpiresAt = claims.ExpiresAt.Time
	}
	return sess, nil
}

func (s *Service) issue(sess session.Session) (string, session.Session, error) {
	now := s.now().Truncate(time.Second)
	sess.IssuedAt = now
	sess.ExpiresAt = now.Add(s.cfg.TTL)

	token, err := util.GenerateJWT(sess.Email, sess.Name, sess.Role, s.cfg.Issuer, s.cfg.Secret, now, s.cfg.TTL)
	if err != nil {
		return "", session.Session{}, err
	}
	return token, sess, nil
}
