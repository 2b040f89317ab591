package application

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"time"

	"admission-gateway/middleware/admission/domain"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const DefaultTokenTTL = 7 * 24 * time.Hour

// IdentityConfig é carregada uma vez no start do processo e não muda depois.
type IdentityConfig struct {
	Secret   string
	Issuer   string
	Audience string
	TokenTTL time.Duration
	APIKeys  []string
}

// IdentityResolver emite e verifica tokens HS256 e valida API keys.
//
// Qualquer falha de token (assinatura, expiração, claims faltando) vira o mesmo
// KindInvalidCredential com a mesma mensagem, para não servir de oráculo.
type IdentityResolver struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
	apiKeys  [][]byte
	now      func() time.Time
}

type tokenClaims struct {
	jwt.RegisteredClaims
	Email string      `json:"email"`
	Role  domain.Role `json:"role"`
}

func NewIdentityResolver(cfg IdentityConfig) (*IdentityResolver, error) {
	if cfg.Secret == "" {
		return nil, errors.New("token signing secret is required")
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = DefaultTokenTTL
	}

	keys := make([][]byte, 0, len(cfg.APIKeys))
	for _, k := range cfg.APIKeys {
		if k != "" {
			keys = append(keys, []byte(k))
		}
	}

	return &IdentityResolver{
		secret:   []byte(cfg.Secret),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		ttl:      cfg.TokenTTL,
		apiKeys:  keys,
		now:      time.Now,
	}, nil
}

// IssueToken assina um token para p. Se p.ExpiresAt for zero, expira em TokenTTL.
func (r *IdentityResolver) IssueToken(p domain.Principal) (string, error) {
	if p.ID == "" || p.Email == "" {
		return "", errors.New("principal id and email are required")
	}
	if !p.Role.Valid() {
		return "", errors.New("principal role is invalid")
	}

	now := r.now()
	exp := p.ExpiresAt
	if exp.IsZero() {
		exp = now.Add(r.ttl)
	}

	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   p.ID,
			Issuer:    r.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Email: p.Email,
		Role:  p.Role,
	}
	if r.audience != "" {
		claims.Audience = jwt.ClaimStrings{r.audience}
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(r.secret)
}

func invalidCredential(err error) error {
	return domain.WrapError(domain.KindInvalidCredential, "invalid credential", err)
}

func (r *IdentityResolver) ResolveToken(raw string) (domain.Principal, error) {
	if raw == "" {
		return domain.Principal{}, invalidCredential(errors.New("empty token"))
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(r.now),
	}
	if r.issuer != "" {
		opts = append(opts, jwt.WithIssuer(r.issuer))
	}
	if r.audience != "" {
		opts = append(opts, jwt.WithAudience(r.audience))
	}

	var claims tokenClaims
	tok, err := jwt.NewParser(opts...).ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return r.secret, nil
	})
	if err != nil {
		return domain.Principal{}, invalidCredential(err)
	}
	if !tok.Valid || claims.Subject == "" || claims.Email == "" || !claims.Role.Valid() {
		return domain.Principal{}, invalidCredential(errors.New("incomplete claims"))
	}

	p := domain.Principal{
		ID:    claims.Subject,
		Email: claims.Email,
		Role:  claims.Role,
	}
	if claims.IssuedAt != nil {
		p.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		p.ExpiresAt = claims.ExpiresAt.Time
	}
	return p, nil
}

// ResolveAPIKey compara raw com todas as chaves configuradas (exato, case-sensitive),
// sem sair no primeiro acerto.
func (r *IdentityResolver) ResolveAPIKey(raw string) (domain.Principal, error) {
	if raw == "" || len(r.apiKeys) == 0 {
		return domain.Principal{}, invalidCredential(errors.New("no api key match"))
	}

	candidate := []byte(raw)
	match := 0
	for _, k := range r.apiKeys {
		match |= subtle.ConstantTimeCompare(k, candidate)
	}
	if match != 1 {
		return domain.Principal{}, invalidCredential(errors.New("no api key match"))
	}

	sum := sha256.Sum256(candidate)
	return domain.Principal{
		ID:      "svc-" + hex.EncodeToString(sum[:])[:12],
		Service: true,
	}, nil
}
