package cosy

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/joshp123/geocosy/internal/journal"
	"github.com/joshp123/geocosy/internal/logger"
)

// ErrJournalDisabled is returned by History when no journal is configured.
var ErrJournalDisabled = errors.New("command journal is disabled")

// Journal records issued commands.
type Journal interface {
	Append(ctx context.Context, e journal.Entry) (journal.Entry, error)
	List(ctx context.Context, limit int) ([]journal.Entry, error)
}

// Controller is the host-side wrapper around Client. It connects lazily,
// reconnects once when the token is rejected, serializes commands, and
// journals them.
type Controller struct {
	client  *Client
	journal Journal
	log     *logger.Logger

	// commandMu serializes writes; the vendor has no optimistic concurrency.
	commandMu sync.Mutex
	connectMu sync.Mutex
}

// NewController wraps client. j may be nil.
func NewController(client *Client, j Journal, log *logger.Logger) *Controller {
	if log == nil {
		log = logger.Nop()
	}
	return &Controller{client: client, journal: j, log: log}
}

func (c *Controller) Client() *Client {
	return c.client
}

// Connect logs in and resolves the system unless the client is already ready.
func (c *Controller) Connect(ctx context.Context) error {
	c.connectMu.Lock()
	defer c.connectMu.Unlock()
	if c.client.Ready() {
		return nil
	}
	return c.reconnectLocked(ctx)
}

func (c *Controller) reconnect(ctx context.Context) error {
	c.connectMu.Lock()
	defer c.connectMu.Unlock()
	return c.reconnectLocked(ctx)
}

func (c *Controller) reconnectLocked(ctx context.Context) error {
	if err := c.client.Connect(ctx); err != nil {
		c.log.Warnw("cosy connect failed", "err", err)
		return err
	}
	systemID, _ := c.client.SystemID()
	c.log.Infow("cosy connected", "system_id", systemID)
	return nil
}

// do runs fn with a connected client, retrying once after a re-login when the
// vendor rejects the token.
func (c *Controller) do(ctx context.Context, fn func() error) error {
	if err := c.Connect(ctx); err != nil {
		return err
	}
	err := fn()
	if !errors.Is(err, ErrAuthentication) {
		return err
	}
	c.log.Infow("cosy token rejected, logging in again", "err", err)
	if err := c.reconnect(ctx); err != nil {
		return err
	}
	return fn()
}

// State reads the live thermostat state.
func (c *Controller) State(ctx context.Context) (State, error) {
	var live LiveState
	err := c.do(ctx, func() error {
		var err error
		live, err = c.client.LiveState(ctx)
		return err
	})
	if err != nil {
		return State{}, err
	}
	uniqueID, err := c.client.UniqueID()
	if err != nil {
		return State{}, err
	}
	return newState(uniqueID, live), nil
}

// Setpoints reads the setpoint object.
func (c *Controller) Setpoints(ctx context.Context) (Setpoints, error) {
	var setpoints Setpoints
	err := c.do(ctx, func() error {
		var err error
		setpoints, err = c.client.Setpoints(ctx)
		return err
	})
	return setpoints, err
}

// TargetTemperature reads one preset's setpoint.
func (c *Controller) TargetTemperature(ctx context.Context, preset Preset) (float64, error) {
	var value float64
	err := c.do(ctx, func() error {
		var err error
		value, err = c.client.TargetTemperature(ctx, preset)
		return err
	})
	return value, err
}

// SetTargetTemperature changes one preset's setpoint.
func (c *Controller) SetTargetTemperature(ctx context.Context, preset Preset, celsius float64) error {
	if !preset.Known() {
		return fmt.Errorf("%w: %q", ErrUnsupportedPreset, preset)
	}
	return c.command(ctx, journal.Entry{
		Kind:   journal.KindSetTemperature,
		Preset: string(preset),
		Value:  strconv.FormatFloat(celsius, 'f', -1, 64),
	}, func() error {
		return c.client.SetTargetTemperature(ctx, preset, celsius)
	})
}

// ActivatePreset moves the controller into any named preset.
func (c *Controller) ActivatePreset(ctx context.Context, preset Preset) error {
	if !preset.Known() {
		return fmt.Errorf("%w: %q", ErrUnsupportedPreset, preset)
	}
	return c.command(ctx, journal.Entry{
		Kind:   journal.KindSetPreset,
		Preset: string(preset),
	}, func() error {
		return c.client.ActivatePreset(ctx, preset)
	})
}

// SetHibernate enters or leaves standby.
func (c *Controller) SetHibernate(ctx context.Context, enabled bool) error {
	return c.command(ctx, journal.Entry{
		Kind:  journal.KindSetHibernate,
		Value: strconv.FormatBool(enabled),
	}, func() error {
		return c.client.SetHibernate(ctx, enabled)
	})
}

// History lists journaled commands, newest first.
func (c *Controller) History(ctx context.Context, limit int) ([]journal.Entry, error) {
	if c.journal == nil {
		return nil, ErrJournalDisabled
	}
	return c.journal.List(ctx, limit)
}

func (c *Controller) command(ctx context.Context, entry journal.Entry, fn func() error) error {
	c.commandMu.Lock()
	defer c.commandMu.Unlock()

	err := c.do(ctx, fn)
	if err != nil {
		entry.Error = err.Error()
		c.log.Warnw("cosy command failed", "kind", entry.Kind, "preset", entry.Preset, "value", entry.Value, "err", err)
	} else {
		c.log.Infow("cosy command applied", "kind", entry.Kind, "preset", entry.Preset, "value", entry.Value)
	}

	if c.journal != nil {
		if _, jerr := c.journal.Append(ctx, entry); jerr != nil {
			c.log.Errorw("cosy journal append failed", "kind", entry.Kind, "err", jerr)
		}
	}
	return err
}

// Close releases the client session.
func (c *Controller) Close() {
	c.client.Close()
}
