// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

// Package speaker handles the connection with an ExaBGP process. JSON
// events received from ExaBGP are forwarded to the controller and
// commands from peers are sent back to ExaBGP.
package speaker

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"gopkg.in/tomb.v2"

	"bgpsdn/common/actor"
	"bgpsdn/common/daemon"
	"bgpsdn/common/reporter"
	"bgpsdn/exabgp"
	"bgpsdn/message"
)

// maxLineSize is the maximum size of a JSON event. A full table dump
// may be sent in a few large updates.
const maxLineSize = 64 << 20

// ErrInputClosed is returned when ExaBGP closes our standard input.
var ErrInputClosed = errors.New("speaker input closed")

// Component is a connection to an ExaBGP speaker.
type Component struct {
	r       *reporter.Reporter
	d       *Dependencies
	t       tomb.Tomb
	config  Configuration
	name    string
	log     zerolog.Logger
	errLog  zerolog.Logger
	metrics metrics

	commands *actor.Mailbox[string]

	stateLock sync.Mutex
	connected bool
	up        bool
	lastSeen  time.Time
}

// Dependencies define the dependencies of a speaker.
type Dependencies struct {
	Daemon daemon.Component
	Clock  clock.Clock
	// Controller receives the events and the status of the speaker.
	Controller *message.Mailbox
	// Stdin and Stdout are used when no TCP address is configured.
	// They default to the standard input and output of the process.
	Stdin  io.Reader
	Stdout io.Writer
}

// New creates a new speaker.
func New(r *reporter.Reporter, name string, config Configuration, dependencies Dependencies) (*Component, error) {
	if dependencies.Clock == nil {
		dependencies.Clock = clock.New()
	}
	if dependencies.Stdin == nil {
		dependencies.Stdin = os.Stdin
	}
	if dependencies.Stdout == nil {
		dependencies.Stdout = os.Stdout
	}
	c := Component{
		r:        r,
		d:        &dependencies,
		config:   config,
		name:     name,
		log:      r.With().Str("speaker", name).Logger(),
		commands: actor.NewMailbox[string](),
	}
	c.errLog = c.log.Sample(reporter.BurstSampler(10*time.Second, 3))
	c.initMetrics()
	c.d.Daemon.Track(&c.t, "speaker/"+name)
	return &c, nil
}

// Name returns the name of the speaker.
func (c *Component) Name() string {
	return c.name
}

// Command queues a command for ExaBGP.
func (c *Component) Command(cmd string) {
	c.commands.Put(cmd)
}

// Up tells if the speaker is alive.
func (c *Component) Up() bool {
	c.stateLock.Lock()
	defer c.stateLock.Unlock()
	return c.up
}

// Start starts the speaker.
func (c *Component) Start() error {
	c.log.Info().Msg("starting speaker")
	c.r.RegisterHealthcheck("speaker-"+c.name, c.healthcheck)
	c.t.Go(c.watchKeepalives)
	if c.config.Connect == "" {
		c.t.Go(func() error {
			c.setConnected(true)
			err := c.serve(c.d.Stdin, c.d.Stdout)
			c.setConnected(false)
			if !c.t.Alive() {
				return nil
			}
			c.log.Err(err).Msg("ExaBGP closed the connection")
			return fmt.Errorf("%s: %w", c.name, ErrInputClosed)
		})
		return nil
	}
	c.t.Go(c.connect)
	return nil
}

// Stop stops the speaker.
func (c *Component) Stop() error {
	defer c.log.Info().Msg("speaker stopped")
	c.log.Info().Msg("stopping speaker")
	c.t.Kill(nil)
	return c.t.Wait()
}

// connect connects to ExaBGP, reconnecting on failure.
func (c *Component) connect() error {
	retryBackoff := backoff.NewExponentialBackOff()
	retryBackoff.MaxElapsedTime = 0
	retryBackoff.InitialInterval = min(time.Second, c.config.MaxBackoff)
	retryBackoff.MaxInterval = c.config.MaxBackoff
	ctx := c.t.Context(context.Background())
	for {
		dialer := net.Dialer{Timeout: c.config.ConnectTimeout}
		conn, err := dialer.DialContext(ctx, "tcp", c.config.Connect)
		if err == nil {
			retryBackoff.Reset()
			c.log.Info().Str("connect", c.config.Connect).Msg("connected to ExaBGP")
			c.metrics.connections.Inc()
			c.setConnected(true)
			err = c.serve(conn, conn)
			conn.Close()
			c.setConnected(false)
		}
		if !c.t.Alive() {
			return nil
		}
		c.errLog.Err(err).Str("connect", c.config.Connect).Msg("connection to ExaBGP failed")
		c.metrics.errors.WithLabelValues("connection").Inc()
		next := time.NewTimer(retryBackoff.NextBackOff())
		select {
		case <-c.t.Dying():
			next.Stop()
			return nil
		case <-next.C:
		}
	}
}

// serve reads events and writes commands until the input is closed or
// the speaker is stopped.
func (c *Component) serve(in io.Reader, out io.Writer) error {
	// Commands queued while disconnected are outdated: peers will
	// announce their routes again once their sessions are up.
	dropped := 0
	for {
		if _, ok := c.commands.TryGet(); !ok {
			break
		}
		dropped++
	}
	if dropped > 0 {
		c.log.Warn().Int("commands", dropped).Msg("dropping commands queued while disconnected")
		c.metrics.commandsDropped.Add(float64(dropped))
	}

	done := make(chan struct{})
	defer close(done)
	c.t.Go(func() error {
		select {
		case <-c.t.Dying():
			if closer, ok := in.(io.Closer); ok {
				closer.Close()
			}
		case <-done:
		}
		return nil
	})
	c.t.Go(func() error {
		c.write(out, done)
		return nil
	})

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		c.process(scanner.Bytes())
	}
	c.markDown()
	if err := scanner.Err(); err != nil {
		return err
	}
	return io.EOF
}

// write sends queued commands to ExaBGP.
func (c *Component) write(out io.Writer, done <-chan struct{}) {
	w := bufio.NewWriter(out)
	for {
		select {
		case <-c.t.Dying():
			return
		case <-done:
			return
		case <-c.commands.Notify():
		}
		sent := 0
		for {
			cmd, ok := c.commands.TryGet()
			if !ok {
				break
			}
			w.WriteString(cmd)
			w.WriteByte('\n')
			sent++
		}
		if err := w.Flush(); err != nil {
			c.errLog.Err(err).Msg("unable to send commands to ExaBGP")
			c.metrics.errors.WithLabelValues("write").Inc()
			return
		}
		c.metrics.commandsSent.Add(float64(sent))
	}
}

// process decodes one line from ExaBGP and forwards it to the
// controller.
func (c *Component) process(line []byte) {
	if len(line) == 0 {
		c.seen()
		return
	}
	event, err := exabgp.Decode(line)
	if err != nil {
		c.errLog.Warn().Err(err).Msg("ignoring invalid event")
		c.metrics.errors.WithLabelValues("decode").Inc()
	} else {
		c.metrics.events.WithLabelValues(event.Type).Inc()
	}
	// Any line proves the speaker is alive.
	c.seen()
	if err != nil || event.Type == exabgp.EventKeepalive {
		return
	}
	c.d.Controller.Put(message.BGP{Speaker: c.name, Event: event})
}

// seen records the speaker is alive.
func (c *Component) seen() {
	c.stateLock.Lock()
	defer c.stateLock.Unlock()
	c.lastSeen = c.d.Clock.Now()
	c.setUp(true)
}

// markDown records the speaker is not reachable anymore.
func (c *Component) markDown() {
	c.stateLock.Lock()
	defer c.stateLock.Unlock()
	c.setUp(false)
}

func (c *Component) watchKeepalives() error {
	ticker := c.d.Clock.Ticker(c.config.KeepaliveTimeout / 4)
	defer ticker.Stop()
	for {
		select {
		case <-c.t.Dying():
			return nil
		case <-ticker.C:
			c.checkKeepalive()
		}
	}
}

// checkKeepalive marks the speaker as down when it stayed silent for
// too long.
func (c *Component) checkKeepalive() {
	c.stateLock.Lock()
	defer c.stateLock.Unlock()
	if c.up && c.d.Clock.Since(c.lastSeen) >= c.config.KeepaliveTimeout {
		c.log.Warn().Dur("timeout", c.config.KeepaliveTimeout).Msg("no message from speaker")
		c.setUp(false)
	}
}

// setUp changes the state of the speaker. It should be called with the
// lock held.
func (c *Component) setUp(up bool) {
	if c.up == up {
		return
	}
	c.up = up
	if up {
		c.metrics.up.Set(1)
	} else {
		c.metrics.up.Set(0)
	}
	c.log.Info().Bool("up", up).Msg("speaker state changed")
	c.d.Controller.Put(message.SpeakerStatus{Speaker: c.name, Up: up})
}

func (c *Component) setConnected(connected bool) {
	c.stateLock.Lock()
	c.connected = connected
	c.stateLock.Unlock()
}

func (c *Component) healthcheck(_ context.Context) reporter.HealthcheckResult {
	c.stateLock.Lock()
	defer c.stateLock.Unlock()
	switch {
	case c.up:
		return reporter.HealthcheckResult{Status: reporter.HealthcheckOK, Reason: "speaker is up"}
	case c.connected:
		return reporter.HealthcheckResult{Status: reporter.HealthcheckWarning, Reason: "no message from speaker"}
	default:
		return reporter.HealthcheckResult{Status: reporter.HealthcheckError, Reason: "not connected to speaker"}
	}
}
