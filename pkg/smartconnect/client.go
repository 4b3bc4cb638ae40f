// Package smartconnect is a small client for the Angel One SmartAPI REST
// endpoints needed to read a portfolio: login, profile, holdings and
// positions.
//
// Usage example:
//
//	sc := smartconnect.New(smartconnect.Config{APIKey: "your_api_key"})
//	if _, err := sc.GenerateSession(ctx, "CLIENTID", "PIN", totpCode); err != nil {
//		log.Fatal(err)
//	}
//	holdings, err := sc.Holdings(ctx)
package smartconnect

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

const defaultRoot = "https://apiconnect.angelone.in"

var routes = map[string]string{
	"api.login":        "/rest/auth/angelbroking/user/v1/loginByPassword",
	"api.logout":       "/rest/secure/angelbroking/user/v1/logout",
	"api.token":        "/rest/auth/angelbroking/jwt/v1/generateTokens",
	"api.user.profile": "/rest/secure/angelbroking/user/v1/getProfile",
	"api.holding":      "/rest/secure/angelbroking/portfolio/v1/getHolding",
	"api.position":     "/rest/secure/angelbroking/order/v1/getPosition",
}

var (
	// ErrLogin is returned when the broker rejects the credentials.
	ErrLogin = errors.New("smartapi login failed")
	// ErrTokenExpired is returned when the session JWT is no longer valid.
	ErrTokenExpired = errors.New("smartapi session expired")
	// ErrNoSession is returned by secure calls made before GenerateSession.
	ErrNoSession = errors.New("smartapi session not established")
)

// APIError is a failed SmartAPI call with status=false.
type APIError struct {
	Route     string
	Code      string
	Message   string
	ErrorType string
	HTTP      int
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("smartapi %s: %s (%s)", e.Route, e.Message, e.Code)
	}
	return fmt.Sprintf("smartapi %s: %s", e.Route, e.Message)
}

// Config configures a Client. Only APIKey is required.
type Config struct {
	APIKey  string
	RootURL string        // default: https://apiconnect.angelone.in
	Timeout time.Duration // default: 7s

	UserType       string // default: USER
	SourceID       string // default: WEB
	ClientPublicIP string // default: ClientLocalIP
	ClientLocalIP  string // default: first non-loopback IPv4, else 127.0.0.1
	ClientMAC      string // default: first interface MAC

	HTTPClient *http.Client // optional, overrides Timeout
}

// Client talks to SmartAPI. It is safe for concurrent use; the session
// tokens are replaced atomically by GenerateSession and RenewToken.
type Client struct {
	apiKey  string
	rootURL string
	http    *http.Client

	userType       string
	sourceID       string
	clientPublicIP string
	clientLocalIP  string
	clientMAC      string

	mu      sync.RWMutex
	session Session
}

// Session holds the tokens returned by a successful login.
type Session struct {
	ClientCode   string `json:"clientcode"`
	JWTToken     string `json:"jwtToken"`
	RefreshToken string `json:"refreshToken"`
	FeedToken    string `json:"feedToken"`
}

// Profile is the subset of getProfile the portfolio needs.
type Profile struct {
	ClientCode string   `json:"clientcode"`
	Name       string   `json:"name"`
	Email      string   `json:"email"`
	Exchanges  []string `json:"exchanges"`
	Products   []string `json:"products"`
}

// New creates a Client from cfg.
func New(cfg Config) *Client {
	if cfg.RootURL == "" {
		cfg.RootURL = defaultRoot
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 7 * time.Second
	}
	if cfg.UserType == "" {
		cfg.UserType = "USER"
	}
	if cfg.SourceID == "" {
		cfg.SourceID = "WEB"
	}
	if cfg.ClientLocalIP == "" {
		ip, err := LocalIP()
		if err != nil {
			log.Printf("[smartconnect] local IP: %v", err)
		}
		cfg.ClientLocalIP = firstNonEmpty(ip, "127.0.0.1")
	}
	if cfg.ClientPublicIP == "" {
		cfg.ClientPublicIP = cfg.ClientLocalIP
	}
	if cfg.ClientMAC == "" {
		cfg.ClientMAC = macAddress()
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		apiKey:         cfg.APIKey,
		rootURL:        strings.TrimRight(cfg.RootURL, "/"),
		http:           hc,
		userType:       cfg.UserType,
		sourceID:       cfg.SourceID,
		clientPublicIP: cfg.ClientPublicIP,
		clientLocalIP:  cfg.ClientLocalIP,
		clientMAC:      cfg.ClientMAC,
	}
}

// LocalIP returns the first non-loopback IPv4 address.
func LocalIP() (string, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "", err
	}
	for _, address := range addrs {
		if ipNet, ok := address.(*net.IPNet); ok && !ipNet.IP.IsLoopback() && ipNet.IP.To4() != nil {
			return ipNet.IP.String(), nil
		}
	}
	return "", errors.New("no local IP found")
}

func macAddress() string {
	ifs, _ := net.Interfaces()
	for _, ifc := range ifs {
		if len(ifc.HardwareAddr) > 0 {
			return ifc.HardwareAddr.String()
		}
	}
	return "00:11:22:33:44:55"
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// Session returns the current session tokens.
func (c *Client) Session() Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// SetSession installs previously obtained tokens.
func (c *Client) SetSession(s Session) {
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()
}

func (c *Client) headers() http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("Accept", "application/json")
	h.Set("X-ClientLocalIP", c.clientLocalIP)
	h.Set("X-ClientPublicIP", c.clientPublicIP)
	h.Set("X-MACAddress", c.clientMAC)
	h.Set("X-PrivateKey", c.apiKey)
	h.Set("X-UserType", c.userType)
	h.Set("X-SourceID", c.sourceID)
	if jwt := c.Session().JWTToken; jwt != "" {
		h.Set("Authorization", "Bearer "+jwt)
	}
	return h
}

// envelope is the common SmartAPI response wrapper.
type envelope struct {
	Status    bool            `json:"status"`
	Message   string          `json:"message"`
	ErrorCode string          `json:"errorcode"`
	ErrorType string          `json:"error_type"`
	Data      json.RawMessage `json:"data"`
}

// call performs route and decodes its data into out (which may be nil).
func (c *Client) call(ctx context.Context, method, route string, body any, out any) error {
	uri, ok := routes[route]
	if !ok {
		return fmt.Errorf("unknown route: %s", route)
	}

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", route, err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.rootURL+uri, rd)
	if err != nil {
		return err
	}
	req.Header = c.headers()

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("smartapi %s: %w", route, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("smartapi %s: read body: %w", route, err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("smartapi %s: HTTP %d: couldn't parse JSON response: %w", route, resp.StatusCode, err)
	}
	if env.ErrorType == "TokenException" || resp.StatusCode == http.StatusUnauthorized ||
		(resp.StatusCode == http.StatusForbidden && env.ErrorType != "") || env.ErrorCode == "AG8001" {
		return fmt.Errorf("%w: %s", ErrTokenExpired, firstNonEmpty(env.Message, resp.Status))
	}
	if !env.Status {
		return &APIError{Route: route, Code: env.ErrorCode, Message: env.Message, ErrorType: env.ErrorType, HTTP: resp.StatusCode}
	}
	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("smartapi %s: decode data: %w", route, err)
	}
	return nil
}

// GenerateSession logs in with the client code, PIN and a current TOTP and
// stores the returned tokens.
func (c *Client) GenerateSession(ctx context.Context, clientCode, password, totp string) (Session, error) {
	var s Session
	err := c.call(ctx, http.MethodPost, "api.login", map[string]string{
		"clientcode": clientCode,
		"password":   password,
		"totp":       totp,
	}, &s)
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return Session{}, fmt.Errorf("%w: %s", ErrLogin, apiErr.Message)
	}
	if err != nil {
		return Session{}, err
	}
	if s.JWTToken == "" {
		return Session{}, fmt.Errorf("%w: empty jwt in response", ErrLogin)
	}
	s.JWTToken = strings.TrimPrefix(s.JWTToken, "Bearer ")
	s.ClientCode = clientCode
	c.SetSession(s)
	return s, nil
}

// RenewToken exchanges the refresh token for a new JWT.
func (c *Client) RenewToken(ctx context.Context) (Session, error) {
	cur := c.Session()
	if cur.RefreshToken == "" {
		return Session{}, ErrNoSession
	}
	var s Session
	if err := c.call(ctx, http.MethodPost, "api.token", map[string]string{"refreshToken": cur.RefreshToken}, &s); err != nil {
		return Session{}, err
	}
	s.ClientCode = cur.ClientCode
	s.JWTToken = strings.TrimPrefix(s.JWTToken, "Bearer ")
	if s.RefreshToken == "" {
		s.RefreshToken = cur.RefreshToken
	}
	c.SetSession(s)
	return s, nil
}

// Logout terminates the session and clears the stored tokens.
func (c *Client) Logout(ctx context.Context) error {
	cur := c.Session()
	if cur.JWTToken == "" {
		return nil
	}
	err := c.call(ctx, http.MethodPost, "api.logout", map[string]string{"clientcode": cur.ClientCode}, nil)
	c.SetSession(Session{})
	return err
}

// Profile returns the logged-in user's profile.
func (c *Client) Profile(ctx context.Context) (Profile, error) {
	if c.Session().JWTToken == "" {
		return Profile{}, ErrNoSession
	}
	var p Profile
	err := c.call(ctx, http.MethodGet, "api.user.profile", nil, &p)
	return p, err
}

// Holdings returns the demat holdings.
func (c *Client) Holdings(ctx context.Context) ([]Holding, error) {
	if c.Session().JWTToken == "" {
		return nil, ErrNoSession
	}
	var out []Holding
	if err := c.call(ctx, http.MethodGet, "api.holding", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Positions returns today's net positions.
func (c *Client) Positions(ctx context.Context) ([]Position, error) {
	if c.Session().JWTToken == "" {
		return nil, ErrNoSession
	}
	var out []Position
	if err := c.call(ctx, http.MethodGet, "api.position", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
