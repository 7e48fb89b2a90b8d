package plex

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AuthURL is the plex.tv page where users claim a PIN.
const AuthURL = "https://app.plex.tv/auth"

// Auth implements the plex.tv PIN login flow and issues signed session
// tokens that carry the resulting Plex token.
type Auth struct {
	ClientID  string
	Product   string
	Secret    []byte
	TokenTTL  time.Duration
	PlexTVURL string
	HTTP      *http.Client

	now func() time.Time
}

// NewAuth builds an Auth with the given signing secret. tokenTTL bounds the
// lifetime of issued session tokens.
func NewAuth(clientID, product string, secret []byte, tokenTTL time.Duration) *Auth {
	return &Auth{
		ClientID:  clientID,
		Product:   product,
		Secret:    secret,
		TokenTTL:  tokenTTL,
		PlexTVURL: DefaultPlexTVURL,
		HTTP:      &http.Client{Timeout: defaultTimeout},
		now:       time.Now,
	}
}

func (a *Auth) headers(req *http.Request, token string) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Plex-Client-Identifier", a.ClientID)
	req.Header.Set("X-Plex-Product", a.Product)
	if token != "" {
		req.Header.Set("X-Plex-Token", token)
	}
}

func (a *Auth) do(req *http.Request, v any) error {
	c := &Client{HTTP: a.HTTP}
	return c.do(req, v)
}

// CreatePin requests a new login PIN and returns it with the URL the user
// must visit to claim it.
func (a *Auth) CreatePin(ctx context.Context) (*Pin, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.PlexTVURL+"/pins", strings.NewReader("strong=true"))
	if err != nil {
		return nil, err
	}
	a.headers(req, "")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var wp wirePin
	if err := a.do(req, &wp); err != nil {
		return nil, fmt.Errorf("create pin: %w", err)
	}
	q := url.Values{}
	q.Set("clientID", a.ClientID)
	q.Set("code", wp.Code)
	q.Set("context[device][product]", a.Product)
	return &Pin{
		ID:        wp.ID,
		Code:      wp.Code,
		ExpiresAt: wp.ExpiresAt,
		AuthURL:   AuthURL + "#?" + q.Encode(),
	}, nil
}

// CheckPin polls a PIN. It returns the PIN with AuthToken set once claimed,
// or (nil, nil) while still pending.
func (a *Auth) CheckPin(ctx context.Context, pinID int64, code string) (*Pin, error) {
	rawURL := fmt.Sprintf("%s/pins/%d?code=%s", a.PlexTVURL, pinID, url.QueryEscape(code))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	a.headers(req, "")

	var wp wirePin
	if err := a.do(req, &wp); err != nil {
		return nil, fmt.Errorf("check pin %d: %w", pinID, err)
	}
	if wp.AuthToken == "" {
		return nil, nil
	}
	return &Pin{ID: wp.ID, Code: wp.Code, AuthToken: wp.AuthToken}, nil
}

// UserInfo looks up the account behind a Plex token.
func (a *Auth) UserInfo(ctx context.Context, plexToken string) (*User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.PlexTVURL+"/user", nil)
	if err != nil {
		return nil, err
	}
	a.headers(req, plexToken)

	var wu wireUser
	if err := a.do(req, &wu); err != nil {
		return nil, fmt.Errorf("fetch user info: %w", err)
	}
	return &User{ID: wu.ID, Username: wu.Username, Email: wu.Email, Thumb: wu.Thumb}, nil
}

// OwnedServerIdentifier returns the client identifier of the account's first
// owned media server, or "" when the account owns none.
func (a *Auth) OwnedServerIdentifier(ctx context.Context, plexToken string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.PlexTVURL+"/resources", nil)
	if err != nil {
		return "", err
	}
	a.headers(req, plexToken)

	var resources resourcesResponse
	if err := a.do(req, &resources); err != nil {
		return "", fmt.Errorf("list resources: %w", err)
	}
	for _, r := range resources {
		if r.Product == "Plex Media Server" && r.Owned {
			return r.ClientIdentifier, nil
		}
	}
	return "", nil
}

// SessionClaims is the payload of an issued session token.
type SessionClaims struct {
	PlexToken string `json:"plex_token"`
	UserID    int64  `json:"user_id"`
	Username  string `json:"username"`
	jwt.RegisteredClaims
}

// CreateSessionToken signs a session token embedding the Plex token, so
// later requests never need to store it server side.
func (a *Auth) CreateSessionToken(plexToken string, userID int64, username string) (string, error) {
	claims := SessionClaims{
		PlexToken: plexToken,
		UserID:    userID,
		Username:  username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(a.now().Add(a.TokenTTL)),
			IssuedAt:  jwt.NewNumericDate(a.now()),
			Subject:   strconv.FormatInt(userID, 10),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.Secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// VerifySessionToken parses and validates a session token.
func (a *Auth) VerifySessionToken(tokenString string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.Secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithTimeFunc(a.now))
	if err != nil {
		return nil, fmt.Errorf("invalid session token: %w", err)
	}
	if claims.PlexToken == "" {
		return nil, fmt.Errorf("invalid session token: missing plex token")
	}
	return claims, nil
}
