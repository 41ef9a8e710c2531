// Package smartconnect is a minimal Angel One SmartAPI client: session login
// with TOTP, token refresh and historical candle data.
//
// Usage example:
//
//	sc := smartconnect.NewSmartConnect(smartconnect.Config{APIKey: "your_api_key"})
//	if err := sc.Login(ctx, "CLIENTID", "PASSWORD", "TOTP_SECRET"); err != nil { ... }
//	bars, err := sc.GetCandleData(ctx, smartconnect.CandleRequest{
//	    Exchange: "NSE", SymbolToken: "99926000", Interval: smartconnect.OneMinute,
//	    From: from, To: to,
//	})
package smartconnect

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/rs/zerolog"
)

// ---- Config & client ----

type Config struct {
	APIKey       string
	AccessToken  string
	RefreshToken string
	FeedToken    string
	UserID       string

	RootURL        string        // default: https://apiconnect.angelone.in
	Timeout        time.Duration // default: 7s
	ProxyURL       string        // optional HTTP proxy URL
	DisableSSL     bool          // if true, InsecureSkipVerify
	Accept         string        // default: application/json
	UserType       string        // default: USER
	SourceID       string        // default: WEB
	ClientPublicIP string        // default 106.193.147.98
	ClientLocalIP  string        // default resolved, else 127.0.0.1
	ClientMAC      string        // default from interface MAC
	Logger         zerolog.Logger
}

type SmartConnect struct {
	mu           sync.RWMutex
	apiKey       string
	accessToken  string
	refreshToken string
	feedToken    string
	userID       string

	rootURL    string
	httpClient *http.Client
	log        zerolog.Logger

	// header fields
	accept   string
	userType string
	sourceID string

	clientPublicIP string
	clientLocalIP  string
	clientMAC      string

	// Optional callback for 403 TokenException
	SessionExpiryHook func()
}

const defaultRoot = "https://apiconnect.angelone.in"

var routes = map[string]string{
	"api.login":        "/rest/auth/angelbroking/user/v1/loginByPassword",
	"api.logout":       "/rest/secure/angelbroking/user/v1/logout",
	"api.token":        "/rest/auth/angelbroking/jwt/v1/generateTokens",
	"api.user.profile": "/rest/secure/angelbroking/user/v1/getProfile",
	"api.candle.data":  "/rest/secure/angelbroking/historical/v1/getCandleData",
}

// ErrNoSession is returned by data calls made before a successful login.
var ErrNoSession = errors.New("smartconnect: no active session")

// APIError is an error payload returned by SmartAPI.
type APIError struct {
	Status    int
	ErrorType string
	Code      string
	Message   string
}

func (e *APIError) Error() string {
	if e.ErrorType != "" {
		return fmt.Sprintf("smartapi %d %s: %s", e.Status, e.ErrorType, e.Message)
	}
	return fmt.Sprintf("smartapi %d %s: %s", e.Status, e.Code, e.Message)
}

// GetLocalIP finds your local IP address
func GetLocalIP() (string, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "", err
	}
	for _, address := range addrs {
		if ipNet, ok := address.(*net.IPNet); ok && !ipNet.IP.IsLoopback() {
			if ipNet.IP.To4() != nil {
				return ipNet.IP.String(), nil
			}
		}
	}
	return "", fmt.Errorf("no local IP found")
}

// NewSmartConnect initializes the client.
func NewSmartConnect(cfg Config) *SmartConnect {
	if cfg.RootURL == "" {
		cfg.RootURL = defaultRoot
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 7 * time.Second
	}
	if cfg.Accept == "" {
		cfg.Accept = "application/json"
	}
	if cfg.UserType == "" {
		cfg.UserType = "USER"
	}
	if cfg.SourceID == "" {
		cfg.SourceID = "WEB"
	}
	if cfg.ClientLocalIP == "" {
		localIP, _ := GetLocalIP()
		cfg.ClientLocalIP = firstNonEmpty(localIP, "127.0.0.1")
	}
	cfg.ClientPublicIP = firstNonEmpty(cfg.ClientPublicIP, "106.193.147.98")
	if cfg.ClientMAC == "" {
		cfg.ClientMAC = getMACFallback()
	}

	tr := &http.Transport{
		TLSClientConfig: &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: cfg.DisableSSL,
		},
	}
	if cfg.ProxyURL != "" {
		if purl, err := url.Parse(cfg.ProxyURL); err == nil {
			tr.Proxy = http.ProxyURL(purl)
		}
	}

	return &SmartConnect{
		apiKey:         cfg.APIKey,
		accessToken:    cfg.AccessToken,
		refreshToken:   cfg.RefreshToken,
		feedToken:      cfg.FeedToken,
		userID:         cfg.UserID,
		rootURL:        strings.TrimRight(cfg.RootURL, "/"),
		httpClient:     &http.Client{Transport: tr, Timeout: cfg.Timeout},
		log:            cfg.Logger.With().Str("component", "smartconnect").Logger(),
		accept:         cfg.Accept,
		userType:       cfg.UserType,
		sourceID:       cfg.SourceID,
		clientPublicIP: cfg.ClientPublicIP,
		clientLocalIP:  cfg.ClientLocalIP,
		clientMAC:      cfg.ClientMAC,
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func getMACFallback() string {
	ifs, _ := net.Interfaces()
	for _, ifc := range ifs {
		if len(ifc.HardwareAddr) > 0 {
			return ifc.HardwareAddr.String()
		}
	}
	return "00:11:22:33:44:55"
}

// ---- Helpers ----

func (sc *SmartConnect) requestHeaders() http.Header {
	h := http.Header{}
	h.Set("Content-Type", sc.accept)
	h.Set("Accept", sc.accept)
	h.Set("X-ClientLocalIP", sc.clientLocalIP)
	h.Set("X-ClientPublicIP", sc.clientPublicIP)
	h.Set("X-MACAddress", sc.clientMAC)
	h.Set("X-PrivateKey", sc.apiKey)
	h.Set("X-UserType", sc.userType)
	h.Set("X-SourceID", sc.sourceID)
	if tok := sc.AccessToken(); tok != "" {
		h.Set("Authorization", "Bearer "+tok)
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

func (sc *SmartConnect) doRequest(ctx context.Context, method, route string, params map[string]any) (json.RawMessage, error) {
	uri, ok := routes[route]
	if !ok {
		return nil, fmt.Errorf("unknown route: %s", route)
	}
	reqURL := sc.rootURL + uri

	var body io.Reader
	if method == http.MethodGet {
		if len(params) > 0 {
			q := url.Values{}
			for k, v := range params {
				q.Set(k, fmt.Sprint(v))
			}
			reqURL += "?" + q.Encode()
		}
	} else {
		if params == nil {
			params = map[string]any{}
		}
		b, err := json.Marshal(params)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, err
	}
	req.Header = sc.requestHeaders()

	resp, err := sc.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, route, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	sc.log.Debug().Str("route", route).Int("status", resp.StatusCode).Int("bytes", len(raw)).Msg("response")

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("couldn't parse JSON response (status %d): %w", resp.StatusCode, err)
	}
	if env.ErrorType != "" {
		if sc.SessionExpiryHook != nil && resp.StatusCode == http.StatusForbidden && env.ErrorType == "TokenException" {
			sc.SessionExpiryHook()
		}
		return nil, &APIError{Status: resp.StatusCode, ErrorType: env.ErrorType, Message: env.Message}
	}
	if !env.Status || resp.StatusCode >= 400 {
		return nil, &APIError{Status: resp.StatusCode, Code: env.ErrorCode, Message: env.Message}
	}
	return env.Data, nil
}

// ---- Setters/Getters ----

func (sc *SmartConnect) GetUserID() string {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.userID
}

func (sc *SmartConnect) AccessToken() string {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.accessToken
}

func (sc *SmartConnect) GetFeedToken() string {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.feedToken
}

func (sc *SmartConnect) setTokens(jwt, refresh, feed string) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if jwt != "" {
		sc.accessToken = jwt
	}
	if refresh != "" {
		sc.refreshToken = refresh
	}
	if feed != "" {
		sc.feedToken = feed
	}
}

// HasSession reports whether an access token is held.
func (sc *SmartConnect) HasSession() bool { return sc.AccessToken() != "" }

// ---- Session ----

type tokenSet struct {
	JWTToken     string `json:"jwtToken"`
	RefreshToken string `json:"refreshToken"`
	FeedToken    string `json:"feedToken"`
}

// Profile is the logged-in user.
type Profile struct {
	ClientCode string   `json:"clientcode"`
	Name       string   `json:"name"`
	Exchanges  []string `json:"exchanges"`
}

// GenerateSession logs in with a one-time TOTP code, stores the tokens and
// returns the user profile.
func (sc *SmartConnect) GenerateSession(ctx context.Context, clientCode, password, totpCode string) (Profile, error) {
	var p Profile
	data, err := sc.doRequest(ctx, http.MethodPost, "api.login",
		map[string]any{"clientcode": clientCode, "password": password, "totp": totpCode})
	if err != nil {
		return p, fmt.Errorf("login: %w", err)
	}
	var ts tokenSet
	if err := json.Unmarshal(data, &ts); err != nil || ts.JWTToken == "" {
		return p, errors.New("login: unexpected response format")
	}
	sc.setTokens(ts.JWTToken, ts.RefreshToken, ts.FeedToken)

	data, err = sc.doRequest(ctx, http.MethodGet, "api.user.profile", map[string]any{"refreshToken": ts.RefreshToken})
	if err != nil {
		return p, fmt.Errorf("profile: %w", err)
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("profile: %w", err)
	}
	sc.mu.Lock()
	sc.userID = firstNonEmpty(p.ClientCode, clientCode)
	sc.mu.Unlock()
	return p, nil
}

// Login generates the current TOTP code from the shared secret and opens a session.
func (sc *SmartConnect) Login(ctx context.Context, clientCode, password, totpSecret string) error {
	code, err := totp.GenerateCode(totpSecret, time.Now())
	if err != nil {
		return fmt.Errorf("totp: %w", err)
	}
	p, err := sc.GenerateSession(ctx, clientCode, password, code)
	if err != nil {
		return err
	}
	sc.log.Info().Str("client", p.ClientCode).Msg("session ready")
	return nil
}

// RenewAccessToken exchanges the refresh token for a new access token.
func (sc *SmartConnect) RenewAccessToken(ctx context.Context) error {
	sc.mu.RLock()
	refresh := sc.refreshToken
	sc.mu.RUnlock()
	if refresh == "" {
		return ErrNoSession
	}
	data, err := sc.doRequest(ctx, http.MethodPost, "api.token", map[string]any{"refreshToken": refresh})
	if err != nil {
		return fmt.Errorf("renew token: %w", err)
	}
	var ts tokenSet
	if err := json.Unmarshal(data, &ts); err != nil {
		return fmt.Errorf("renew token: %w", err)
	}
	sc.setTokens(ts.JWTToken, ts.RefreshToken, ts.FeedToken)
	return nil
}

// TerminateSession logs out and clears the tokens.
func (sc *SmartConnect) TerminateSession(ctx context.Context) error {
	_, err := sc.doRequest(ctx, http.MethodPost, "api.logout", map[string]any{"clientcode": sc.GetUserID()})
	sc.mu.Lock()
	sc.accessToken, sc.refreshToken, sc.feedToken = "", "", ""
	sc.mu.Unlock()
	return err
}
