package cosy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/joshp123/geocosy/internal/logger"
	"github.com/joshp123/geocosy/internal/rate"
)

const (
	endpointLogin        = "account/login"
	endpointSystems      = "user/detail-systems?peripherals=true"
	endpointLiveData     = "system/cosy-live-data/%s"
	endpointSettings     = "system/all-cosy-settings/%s"
	endpointSetPoints    = "system/cosy-temperature-set-points/%s"
	endpointAdhocMode    = "system/cosy-adhocmode/%s"
	endpointCancelEvents = "system/cosy-cancelallevents/%s?zone=0"
	endpointStandby      = "system/cosy-instandby/%s"

	uniqueIDPrefix = "cosy_thermostat_"
	maxErrorBody   = 4096
)

// Client talks to the Geo Cosy REST API for one account and one system.
type Client struct {
	baseURL          string
	username         string
	password         string
	overrideDuration time.Duration
	timeout          time.Duration
	limits           rate.Declaration
	log              *logger.Logger

	// injected is the caller's HTTP client from NewClientWithHTTP, reused
	// across Close.
	injected *http.Client

	mu         sync.Mutex
	httpClient *http.Client
	token      *oauth2.Token
	systemID   string
}

// NewClient stores credentials and settings. It performs no network I/O; the
// HTTP session is created on the first request.
func NewClient(cfg Config, log *logger.Logger) (*Client, error) {
	return NewClientWithHTTP(cfg, nil, log)
}

// NewClientWithHTTP is NewClient with a caller-supplied HTTP client.
func NewClientWithHTTP(cfg Config, httpClient *http.Client, log *logger.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.Username) == "" {
		return nil, fmt.Errorf("cosy username is required")
	}
	if cfg.Password == "" {
		return nil, fmt.Errorf("cosy password is required")
	}
	if log == nil {
		log = logger.Nop()
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	overrideDuration := cfg.OverrideDuration
	if overrideDuration <= 0 {
		overrideDuration = defaultOverrideDuration
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		baseURL:          baseURL,
		username:         cfg.Username,
		password:         cfg.Password,
		overrideDuration: overrideDuration,
		timeout:          timeout,
		limits:           RateLimits(cfg.MaxRequestsPerMinute),
		log:              log,
		injected:         httpClient,
		httpClient:       httpClient,
	}, nil
}

// Close releases the HTTP session's idle connections. A later request opens a
// new session on the injected client when one was given, otherwise on a fresh
// default client whose rate budget starts over.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.httpClient != nil {
		c.httpClient.CloseIdleConnections()
		c.httpClient = nil
	}
}

// Login authenticates and stores the bearer token. Each call re-authenticates.
func (c *Client) Login(ctx context.Context) (string, error) {
	payload := map[string]string{
		"name":         c.username,
		"emailAddress": c.username,
		"password":     c.password,
	}

	resp, err := c.send(ctx, http.MethodPost, endpointLogin, payload, nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return "", AuthenticationError{Endpoint: endpointLogin, Status: resp.StatusCode, Body: readBody(resp)}
	default:
		return "", statusError(http.MethodPost, endpointLogin, resp)
	}

	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", ConnectionError{Method: http.MethodPost, Endpoint: endpointLogin, Status: resp.StatusCode, Err: fmt.Errorf("decode login: %w", err)}
	}
	if body.Token == "" {
		return "", AuthenticationError{Endpoint: endpointLogin, Status: resp.StatusCode, Body: "response carried no token"}
	}

	c.mu.Lock()
	c.token = &oauth2.Token{AccessToken: body.Token, TokenType: "Bearer"}
	c.mu.Unlock()

	c.log.Debugw("cosy login succeeded", "username", c.username)
	return body.Token, nil
}

// ResolveSystemID looks up the account's first system and caches its id.
// It logs in first when no token is held.
func (c *Client) ResolveSystemID(ctx context.Context) (string, error) {
	token := c.currentToken()
	if token == nil {
		if _, err := c.Login(ctx); err != nil {
			return "", err
		}
		token = c.currentToken()
	}

	var resp struct {
		SystemRoles []struct {
			SystemID string `json:"systemId"`
		} `json:"systemRoles"`
	}
	if err := c.getJSON(ctx, endpointSystems, token, &resp); err != nil {
		return "", err
	}
	if len(resp.SystemRoles) == 0 || resp.SystemRoles[0].SystemID == "" {
		return "", NotFoundError{Endpoint: endpointSystems, What: "system"}
	}

	systemID := resp.SystemRoles[0].SystemID
	c.mu.Lock()
	c.systemID = systemID
	c.mu.Unlock()

	c.log.Debugw("cosy system resolved", "system_id", systemID, "systems", len(resp.SystemRoles))
	return systemID, nil
}

// Connect logs in and resolves the system id.
func (c *Client) Connect(ctx context.Context) error {
	if _, err := c.Login(ctx); err != nil {
		return err
	}
	_, err := c.ResolveSystemID(ctx)
	return err
}

// Ready reports whether a token and system id are held.
func (c *Client) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token != nil && c.systemID != ""
}

// SystemID returns the cached system id without any I/O.
func (c *Client) SystemID() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.systemID, c.systemID != ""
}

// UniqueID derives a stable identifier from the system id.
func (c *Client) UniqueID() (string, error) {
	systemID, ok := c.SystemID()
	if !ok {
		return "", NotReadyError{What: "system id"}
	}
	return uniqueIDPrefix + systemID, nil
}

// OverrideDuration is the default length of a comfy/cosy activation.
func (c *Client) OverrideDuration() time.Duration {
	return c.overrideDuration
}

// CurrentTemperature returns the first reading of the live temperature list.
func (c *Client) CurrentTemperature(ctx context.Context) (float64, error) {
	live, err := c.liveData(ctx)
	if err != nil {
		return 0, err
	}
	if len(live.TemperatureList) == 0 || live.TemperatureList[0].Value == nil {
		return 0, DataUnavailableError{Endpoint: live.endpoint, Field: "temperatureList"}
	}
	return *live.TemperatureList[0].Value, nil
}

// CurrentPreset returns the controller's current mode with its raw code.
func (c *Client) CurrentPreset(ctx context.Context) (Mode, error) {
	live, err := c.liveData(ctx)
	if err != nil {
		return Mode{}, err
	}
	return live.mode()
}

// LiveState reads temperature and mode from a single live-data request. A
// missing temperature is logged and left nil; a missing mode is an error.
func (c *Client) LiveState(ctx context.Context) (LiveState, error) {
	live, err := c.liveData(ctx)
	if err != nil {
		return LiveState{}, err
	}
	mode, err := live.mode()
	if err != nil {
		return LiveState{}, err
	}

	state := LiveState{Mode: mode}
	if len(live.TemperatureList) > 0 && live.TemperatureList[0].Value != nil {
		value := *live.TemperatureList[0].Value
		state.TemperatureCelsius = &value
	} else {
		c.log.Debugw("cosy live data has no temperature", "endpoint", live.endpoint)
	}
	return state, nil
}

// Setpoints returns the full setpoint object from the settings snapshot.
func (c *Client) Setpoints(ctx context.Context) (Setpoints, error) {
	token, systemID, err := c.requireSystem()
	if err != nil {
		return Setpoints{}, err
	}

	endpoint := fmt.Sprintf(endpointSettings, url.PathEscape(systemID))
	var resp struct {
		TemperatureSetPoints json.RawMessage `json:"temperatureSetPoints"`
	}
	if err := c.getJSON(ctx, endpoint, token, &resp); err != nil {
		return Setpoints{}, err
	}
	if len(resp.TemperatureSetPoints) == 0 || string(resp.TemperatureSetPoints) == "null" {
		return Setpoints{}, DataUnavailableError{Endpoint: endpoint, Field: "temperatureSetPoints"}
	}

	setpoints, err := newSetpoints(resp.TemperatureSetPoints)
	if err != nil {
		return Setpoints{}, ConnectionError{Method: http.MethodGet, Endpoint: endpoint, Status: http.StatusOK, Err: err}
	}
	return setpoints, nil
}

// TargetTemperature returns the setpoint configured for the preset.
func (c *Client) TargetTemperature(ctx context.Context, preset Preset) (float64, error) {
	if !preset.Known() {
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedPreset, preset)
	}
	setpoints, err := c.Setpoints(ctx)
	if err != nil {
		return 0, err
	}
	value, ok := setpoints.Get(preset)
	if !ok {
		systemID, _ := c.SystemID()
		return 0, DataUnavailableError{
			Endpoint: fmt.Sprintf(endpointSettings, url.PathEscape(systemID)),
			Field:    "temperatureSetPoints." + preset.setpointKey(),
		}
	}
	return value, nil
}

// SetTargetTemperature reads the whole setpoint object, replaces the preset's
// value, and writes the whole object back. The vendor has no partial update,
// so a concurrent writer between the read and the write is overwritten.
func (c *Client) SetTargetTemperature(ctx context.Context, preset Preset, celsius float64) error {
	if !preset.Known() {
		return fmt.Errorf("%w: %q", ErrUnsupportedPreset, preset)
	}
	if math.IsNaN(celsius) || math.IsInf(celsius, 0) {
		return fmt.Errorf("cosy %s temperature must be a finite number, got %v", preset, celsius)
	}
	setpoints, err := c.Setpoints(ctx)
	if err != nil {
		return err
	}
	updated, err := setpoints.With(preset, celsius)
	if err != nil {
		return err
	}

	token, systemID, err := c.requireSystem()
	if err != nil {
		return err
	}
	endpoint := fmt.Sprintf(endpointSetPoints, url.PathEscape(systemID))
	return c.postJSON(ctx, endpoint, token, updated)
}

// SetPresetMode switches between slumber, comfy and cosy. Slumber cancels any
// active override; comfy and cosy start an override of OverrideDuration.
// Hibernate is only reachable through SetHibernate.
func (c *Client) SetPresetMode(ctx context.Context, preset Preset) error {
	return c.SetAdhocMode(ctx, preset, c.overrideDuration)
}

// SetAdhocMode is SetPresetMode with an explicit override duration. The
// duration is ignored for slumber.
func (c *Client) SetAdhocMode(ctx context.Context, preset Preset, duration time.Duration) error {
	switch preset {
	case PresetSlumber:
		token, systemID, err := c.requireSystem()
		if err != nil {
			return err
		}
		endpoint := fmt.Sprintf(endpointCancelEvents, url.PathEscape(systemID))
		return c.deleteRequest(ctx, endpoint, token)
	case PresetComfy, PresetCosy:
		if duration <= 0 {
			return fmt.Errorf("cosy override duration must be positive, got %s", duration)
		}
		token, systemID, err := c.requireSystem()
		if err != nil {
			return err
		}
		modeID, _ := preset.Code()
		payload := adhocModeRequest{
			ModeID:            modeID,
			StartOffset:       0,
			Duration:          int(duration / time.Minute),
			WelcomeHomeActive: false,
			Zone:              "0",
		}
		endpoint := fmt.Sprintf(endpointAdhocMode, url.PathEscape(systemID))
		return c.postJSON(ctx, endpoint, token, payload)
	default:
		return fmt.Errorf("%w: %q cannot be set as a preset mode", ErrUnsupportedPreset, preset)
	}
}

// SetHibernate enters or leaves standby. It does not select a heating preset.
func (c *Client) SetHibernate(ctx context.Context, enabled bool) error {
	token, systemID, err := c.requireSystem()
	if err != nil {
		return err
	}
	endpoint := fmt.Sprintf(endpointStandby, url.PathEscape(systemID))
	return c.postJSON(ctx, endpoint, token, map[string]bool{"value": enabled})
}

// ActivatePreset moves the controller into any named preset. Hibernate maps to
// SetHibernate(true). For the other presets standby is cleared first when the
// controller is currently hibernating. The sequence is not atomic.
func (c *Client) ActivatePreset(ctx context.Context, preset Preset) error {
	return c.ActivatePresetFor(ctx, preset, c.overrideDuration)
}

// ActivatePresetFor is ActivatePreset with an explicit override duration for
// comfy and cosy.
func (c *Client) ActivatePresetFor(ctx context.Context, preset Preset, duration time.Duration) error {
	if preset == PresetHibernate {
		return c.SetHibernate(ctx, true)
	}
	if !preset.Known() {
		return fmt.Errorf("%w: %q", ErrUnsupportedPreset, preset)
	}

	current, err := c.CurrentPreset(ctx)
	if err != nil {
		return fmt.Errorf("read current mode: %w", err)
	}
	if current.Preset() == PresetHibernate {
		if err := c.SetHibernate(ctx, false); err != nil {
			return fmt.Errorf("leave hibernate: %w", err)
		}
	}
	return c.SetAdhocMode(ctx, preset, duration)
}

type adhocModeRequest struct {
	ModeID            int    `json:"modeId"`
	StartOffset       int    `json:"startOffset"`
	Duration          int    `json:"duration"`
	WelcomeHomeActive bool   `json:"welcomeHomeActive"`
	Zone              string `json:"zone"`
}

type liveDataResponse struct {
	endpoint string

	TemperatureList []struct {
		Value *float64 `json:"value"`
	} `json:"temperatureList"`
	ControllerStatusList []struct {
		CurrentMode *int `json:"currentMode"`
	} `json:"controllerStatusList"`
}

func (l liveDataResponse) mode() (Mode, error) {
	if len(l.ControllerStatusList) == 0 || l.ControllerStatusList[0].CurrentMode == nil {
		return Mode{}, DataUnavailableError{Endpoint: l.endpoint, Field: "controllerStatusList"}
	}
	return Mode{Code: *l.ControllerStatusList[0].CurrentMode}, nil
}

func (c *Client) liveData(ctx context.Context) (liveDataResponse, error) {
	token, systemID, err := c.requireSystem()
	if err != nil {
		return liveDataResponse{}, err
	}
	endpoint := fmt.Sprintf(endpointLiveData, url.PathEscape(systemID))
	resp := liveDataResponse{endpoint: endpoint}
	if err := c.getJSON(ctx, endpoint, token, &resp); err != nil {
		return liveDataResponse{}, err
	}
	return resp, nil
}

func (c *Client) currentToken() *oauth2.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

func (c *Client) requireSystem() (*oauth2.Token, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == nil {
		return nil, "", NotReadyError{What: "auth token"}
	}
	if c.systemID == "" {
		return nil, "", NotReadyError{What: "system id"}
	}
	return c.token, c.systemID, nil
}

func (c *Client) session() *http.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.httpClient == nil && c.injected != nil {
		c.httpClient = c.injected
	}
	if c.httpClient == nil {
		base := &http.Client{Timeout: c.timeout}
		if c.limits.HasLimits() {
			base = rate.WrapHTTP(c.limits, base)
		}
		c.httpClient = base
	}
	return c.httpClient
}

func (c *Client) getJSON(ctx context.Context, endpoint string, token *oauth2.Token, out any) error {
	resp, err := c.send(ctx, http.MethodGet, endpoint, nil, token)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkStatus(http.MethodGet, endpoint, resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return ConnectionError{Method: http.MethodGet, Endpoint: endpoint, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, endpoint string, token *oauth2.Token, payload any) error {
	resp, err := c.send(ctx, http.MethodPost, endpoint, payload, token)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkStatus(http.MethodPost, endpoint, resp)
}

func (c *Client) deleteRequest(ctx context.Context, endpoint string, token *oauth2.Token) error {
	resp, err := c.send(ctx, http.MethodDelete, endpoint, nil, token)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkStatus(http.MethodDelete, endpoint, resp)
}

// send performs one request. The caller owns the response body.
func (c *Client) send(ctx context.Context, method, endpoint string, payload any, token *oauth2.Token) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", endpoint, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != nil {
		token.SetAuthHeader(req)
	}

	resp, err := c.session().Do(req)
	if err != nil {
		c.log.Debugw("cosy request failed", "method", method, "endpoint", endpoint, "err", err)
		return nil, ConnectionError{Method: method, Endpoint: endpoint, Err: err}
	}
	c.log.Debugw("cosy request", "method", method, "endpoint", endpoint, "status", resp.StatusCode)
	return resp, nil
}

func checkStatus(method, endpoint string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return AuthenticationError{Endpoint: endpoint, Status: resp.StatusCode, Body: readBody(resp)}
	}
	return statusError(method, endpoint, resp)
}

func statusError(method, endpoint string, resp *http.Response) error {
	return ConnectionError{Method: method, Endpoint: endpoint, Status: resp.StatusCode, Body: readBody(resp)}
}

func readBody(resp *http.Response) string {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return strings.TrimSpace(string(data))
}

// IsTransient reports whether err may clear on a later poll.
func IsTransient(err error) bool {
	return errors.Is(err, ErrConnection)
}
