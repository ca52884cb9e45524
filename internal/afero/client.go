package afero

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Recorder receives a record of every state-changing call issued to the
// cloud. Used for the command audit ledger; a nil Recorder disables it.
type Recorder interface {
	Record(deviceID, functionClass string, payload any, callErr error)
}

// Client provides access to the Afero cloud API for one account.
type Client struct {
	host       string
	accountID  string
	token      string
	httpClient *http.Client
	recorder   Recorder

	mu sync.RWMutex
	// Last known resource snapshots keyed by device id
	snapshots map[string]*Light
}

// NewClient creates a new Afero cloud client
func NewClient(host, accountID, token string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		host:      host,
		accountID: accountID,
		token:     token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		snapshots: make(map[string]*Light),
	}
}

// SetRecorder attaches a command recorder. Must be called before Connect.
func (c *Client) SetRecorder(r Recorder) {
	c.recorder = r
}

// Connect verifies credentials and preloads device snapshots.
func (c *Client) Connect(ctx context.Context) error {
	lights, err := c.Devices(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to Afero cloud: %w", err)
	}

	c.mu.Lock()
	for _, l := range lights {
		c.snapshots[l.ID] = l
	}
	c.mu.Unlock()

	log.Info().Str("host", c.host).Int("devices", len(lights)).Msg("Connected to Afero cloud")
	return nil
}

// Close closes the client
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func (c *Client) url(path string) string {
	base := c.host
	if !strings.Contains(base, "://") {
		base = "https://" + base
	}
	return fmt.Sprintf("%s/v1/accounts/%s/%s", base, c.accountID, path)
}

func (c *Client) request(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.url(path), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.httpClient.Do(req)
}

// Devices fetches all light resources with expanded state.
func (c *Client) Devices(ctx context.Context) ([]*Light, error) {
	resp, err := c.request(ctx, "GET", "devices?expansions=state", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var raw []wireDevice
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, err
	}

	lights := make([]*Light, 0, len(raw))
	for _, d := range raw {
		if d.DeviceClass != "" && d.DeviceClass != "light" {
			continue
		}
		lights = append(lights, buildLight(d))
	}

	return lights, nil
}

// Resource returns the last known snapshot for a device id.
func (c *Client) Resource(deviceID string) (*Light, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	l, ok := c.snapshots[deviceID]
	return l, ok
}

// storeSnapshot replaces the cached snapshot for a device.
func (c *Client) storeSnapshot(l *Light) {
	c.mu.Lock()
	c.snapshots[l.ID] = l
	c.mu.Unlock()
}

// dropSnapshot removes the cached snapshot for a device id.
func (c *Client) dropSnapshot(deviceID string) {
	c.mu.Lock()
	delete(c.snapshots, deviceID)
	c.mu.Unlock()
}

// SetStateRequest is a parameterized state change for one device. Nil fields
// are omitted from the update. ColorBrightness/WhiteBrightness address the
// two channels of dual-mode devices independently.
type SetStateRequest struct {
	On              *bool
	Brightness      *int // 1-100
	Color           *RGB
	TemperatureK    *int
	ColorMode       string // "", "color", "white", "sequence", "mixed", "individual"
	Effect          string
	ColorBrightness *int // 0-100
	WhiteBrightness *int // 0-100
}

// records converts the request into wire state records.
func (r SetStateRequest) records(now int64) []StateRecord {
	var recs []StateRecord

	add := func(class, instance string, value any) {
		recs = append(recs, StateRecord{
			FunctionClass:    class,
			FunctionInstance: instance,
			Value:            value,
			LastUpdateTime:   now,
		})
	}

	if r.On != nil {
		v := "off"
		if *r.On {
			v = "on"
		}
		add(ClassPower, "", v)
	}
	if r.Brightness != nil {
		add(ClassBrightness, "", *r.Brightness)
	}
	if r.Color != nil {
		add(ClassColorRGB, "", map[string]any{
			ClassColorRGB: map[string]any{
				"r": r.Color.Red,
				"g": r.Color.Green,
				"b": r.Color.Blue,
			},
		})
	}
	if r.TemperatureK != nil {
		add(ClassColorTemperature, "", *r.TemperatureK)
	}
	if r.ColorBrightness != nil {
		add(ClassColorBrightness, "", *r.ColorBrightness)
	}
	if r.WhiteBrightness != nil {
		add(ClassWhiteBrightness, "", *r.WhiteBrightness)
	}
	if r.Effect != "" {
		add(ClassColorSequence, "custom", r.Effect)
	}
	if r.ColorMode != "" {
		add(ClassColorMode, "", r.ColorMode)
	}

	return recs
}

// SetState issues a parameterized state change addressed by device id.
func (c *Client) SetState(ctx context.Context, deviceID string, req SetStateRequest) error {
	records := req.records(time.Now().Unix())
	if len(records) == 0 {
		return nil
	}
	err := c.UpdateStates(ctx, deviceID, records)
	if err != nil {
		return err
	}

	// Fold the accepted values back into the local snapshot so reads between
	// polls reflect the issued command.
	c.applyToSnapshot(deviceID, req)
	return nil
}

// UpdateStates sends a raw list of state records to a device.
func (c *Client) UpdateStates(ctx context.Context, deviceID string, records []StateRecord) error {
	err := c.updateStates(ctx, deviceID, records)

	if c.recorder != nil {
		class := ""
		if len(records) > 0 {
			class = records[0].FunctionClass
		}
		c.recorder.Record(deviceID, class, records, err)
	}

	return err
}

func (c *Client) updateStates(ctx context.Context, deviceID string, records []StateRecord) error {
	body, err := json.Marshal(map[string]any{"values": records})
	if err != nil {
		return err
	}

	resp, err := c.request(ctx, "PUT", fmt.Sprintf("devices/%s/state", deviceID), bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("failed to update device state: %s", string(respBody))
	}

	log.Debug().
		Str("device", deviceID).
		Int("records", len(records)).
		Msg("Device state updated")

	return nil
}

// applyToSnapshot optimistically folds a successful SetState into the cached
// snapshot. The next poll replaces it with the authoritative cloud view.
func (c *Client) applyToSnapshot(deviceID string, req SetStateRequest) {
	c.mu.Lock()
	defer c.mu.Unlock()

	l, ok := c.snapshots[deviceID]
	if !ok {
		return
	}

	if req.On != nil {
		l.Power = &PowerState{On: *req.On}
	}
	if req.Brightness != nil {
		l.Dimming = &Dimming{Brightness: *req.Brightness}
	}
	if req.Color != nil {
		cp := *req.Color
		l.Color = &cp
	}
	if req.TemperatureK != nil {
		if l.ColorTemperature == nil {
			l.ColorTemperature = &ColorTemperature{}
		}
		l.ColorTemperature.Kelvin = *req.TemperatureK
	}
	if req.ColorMode != "" {
		l.ColorMode = &ColorMode{Mode: req.ColorMode}
	}
}
