// Package stratum speaks the pool side of Stratum V1: line-delimited
// JSON-RPC over TCP, subscribe/authorize/configure/submit outbound,
// mining.notify/set_difficulty/set_version_mask/client.reconnect inbound.
package stratum

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/404-Panda/ESP-Miner-Matrix/internal/errkind"
)

// Endpoint is a pool address the client can dial.
type Endpoint struct {
	Host string
	Port uint16
}

func (e Endpoint) String() string {
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}

// fallbackFailThreshold is the consecutive-failure count on the fallback
// pool that reverts the sticky choice back to the primary (spec §4.3).
const fallbackFailThreshold = 3

// ClientParams configures a Client.
type ClientParams struct {
	Primary   Endpoint
	Fallback  Endpoint
	User      string
	Pass      string
	UserAgent string

	// SuggestedDifficulty, if non-zero, is sent as mining.suggest_difficulty
	// right after authorize (spec §4.3 startup sequence).
	SuggestedDifficulty float64
}

// Client is a Stratum V1 connection to one pool (primary or its sticky
// fallback), generalizing the teacher's single-pool Client with reconnect
// and failover (spec §4.3, §9 "global send-id counter" folded into
// StratumSession).
type Client struct {
	params ClientParams
	log    *logrus.Entry

	session *StratumSession

	mu         sync.Mutex
	conn       net.Conn
	requests   map[uint]request
	usingFallback bool
	fallbackFails int

	notifications chan MiningNotification
	reconnects    chan struct{}
	submitResults chan SubmitResult
}

// SubmitResult reports a mining.submit response correlated to the request
// that produced it.
type SubmitResult struct {
	JobID   string
	Ok      bool
	ErrCode int
	Reason  string
}

// NewClient constructs a Client ready to Dial.
func NewClient(p ClientParams, log *logrus.Entry) *Client {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Client{
		params:        p,
		log:           log,
		session:       NewStratumSession(),
		requests:      map[uint]request{},
		notifications: make(chan MiningNotification, 4),
		reconnects:    make(chan struct{}, 1),
		submitResults: make(chan SubmitResult, 16),
	}
}

// Session exposes the negotiated session params for the Job Builder.
func (c *Client) Session() *StratumSession { return c.session }

// Notifications yields parsed mining.notify calls in arrival order. This is
// the notify_queue's upstream feed (spec §4.5); the Orchestrator applies
// the bounded, latest-wins semantics on top of it.
func (c *Client) Notifications() <-chan MiningNotification { return c.notifications }

// Reconnects fires each time Serve has written a session's startup
// requests (including the first connection) and when the pool sends
// client.reconnect, so the Orchestrator can bump its abandonment epoch.
func (c *Client) Reconnects() <-chan struct{} { return c.reconnects }

// SubmitResults yields mining.submit outcomes for share accounting.
func (c *Client) SubmitResults() <-chan SubmitResult { return c.submitResults }

// currentEndpoint returns the sticky-fallback-aware target to dial.
func (c *Client) currentEndpoint() Endpoint {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.usingFallback {
		return c.params.Fallback
	}
	return c.params.Primary
}

// CurrentEndpoint reports the endpoint the active (or most recently
// established) session is running against, and whether that's the sticky
// fallback rather than the primary pool (spec §4.3, §6 pool connection
// state).
func (c *Client) CurrentEndpoint() (Endpoint, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.usingFallback {
		return c.params.Fallback, true
	}
	return c.params.Primary, false
}

// Serve dials, runs the startup sequence, and processes inbound lines until
// ctx is cancelled or the connection fails. Callers loop Serve to reconnect;
// each call resets the session (spec §4.3: ids reset on reconnect).
func (c *Client) Serve(ctx context.Context) error {
	endpoint := c.currentEndpoint()

	d := net.Dialer{Timeout: dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", endpoint.String())
	if err != nil {
		c.noteDialFailure()
		return fmt.Errorf("stratum: dial %s: %w", endpoint, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.requests = map[uint]request{}
	c.mu.Unlock()
	c.session.Reset()

	defer conn.Close()

	if err := c.call(methodConfigure,
		[]string{"version-rolling"},
		map[string]interface{}{"version-rolling.mask": "ffffffff"}); err != nil {
		return err
	}
	if err := c.call(methodSubscribe, c.params.UserAgent); err != nil {
		return err
	}
	if err := c.call(methodAuthorize, c.params.User, c.params.Pass); err != nil {
		return err
	}
	if c.params.SuggestedDifficulty > 0 {
		if err := c.call(methodSuggestDiff, c.params.SuggestedDifficulty); err != nil {
			return err
		}
	}

	c.resetFallbackFailures()

	// Signal a new session once the startup requests have been written,
	// not merely on TCP connect. The pool's responses are not awaited
	// here: an authorize rejection arrives later through readLoop and ends
	// Serve with StratumAuthFailed (spec §4.5, §6).
	select {
	case c.reconnects <- struct{}{}:
	default:
	}

	done := make(chan error, 1)
	go func() { done <- c.readLoop(conn) }()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		c.noteDialFailure()
		return err
	}
}

func (c *Client) noteDialFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.usingFallback {
		c.usingFallback = true
		c.fallbackFails = 0
		return
	}
	c.fallbackFails++
	if c.fallbackFails >= fallbackFailThreshold {
		c.usingFallback = false
		c.fallbackFails = 0
	}
}

func (c *Client) resetFallbackFailures() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fallbackFails = 0
}

func (c *Client) readLoop(conn net.Conn) error {
	r := bufio.NewReader(conn)
	for {
		var (
			isPrefix = true
			line     []byte
		)
		for isPrefix {
			var part []byte
			var err error
			part, isPrefix, err = r.ReadLine()
			if err != nil {
				return err
			}
			line = append(line, part...)
		}

		req, res, err := c.unmarshalLine(line)
		if err != nil {
			c.log.WithError(err).Warn("discarding malformed stratum line")
			continue
		}

		if err := c.dispatch(req, res); err != nil {
			if kerr, ok := err.(*errkind.Error); ok && (kerr.Kind == errkind.StratumProtocol || kerr.Kind == errkind.StratumAuthFailed) {
				return err
			}
			c.log.WithError(err).Error("error handling stratum message")
		}
	}
}

func (c *Client) unmarshalLine(line []byte) (request, response, error) {
	var req request
	if err := fastJSONUnmarshal(line, &req); err == nil && req.Method != "" {
		return req, response{}, nil
	}

	var res response
	if err := fastJSONUnmarshal(line, &res); err != nil {
		return request{}, response{}, errkind.New(errkind.StratumParse, err)
	}

	c.mu.Lock()
	matched, exists := c.requests[res.ID]
	if exists {
		delete(c.requests, res.ID)
	}
	c.mu.Unlock()

	if !exists {
		return request{}, response{}, errkind.New(errkind.StratumParse,
			fmt.Errorf("no matching request for response id %d", res.ID))
	}
	return matched, res, nil
}

// call sends a JSON-RPC request and registers it for response correlation.
func (c *Client) call(method string, params ...interface{}) error {
	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return fmt.Errorf("stratum: not connected")
	}
	id := c.session.NextID()
	req := request{ID: id, Method: method, Params: params}
	c.requests[id] = req
	c.mu.Unlock()

	payload, err := fastJSONMarshal(req)
	if err != nil {
		return fmt.Errorf("stratum: marshal %s: %w", method, err)
	}
	payload = append(payload, '\n')

	written := 0
	for written < len(payload) {
		n, err := conn.Write(payload[written:])
		if err != nil {
			return err
		}
		written += n
	}
	return nil
}

// Submit sends mining.submit for a share found by the ASIC driver (spec
// §4.3, §4.4).
func (c *Client) Submit(jobID, extraNonce2Hex, ntimeHex, nonceHex, versionHex string) error {
	return c.call(methodSubmit, c.params.User, jobID, extraNonce2Hex, ntimeHex, nonceHex, versionHex)
}

func (c *Client) dispatch(req request, res response) error {
	switch req.Method {
	case methodAuthorize:
		if res.Error != nil {
			return errkind.New(errkind.StratumAuthFailed, fmt.Errorf("%s", res.Error.Message))
		}
		if ok, _ := res.Result.(bool); !ok {
			return errkind.New(errkind.StratumAuthFailed, fmt.Errorf("authorize rejected"))
		}

	case methodConfigure:
		if res.Error != nil {
			return errkind.New(errkind.StratumProtocol, fmt.Errorf("configure: %s", res.Error.Message))
		}
		if result, ok := res.Result.(map[string]interface{}); ok {
			if rolling, ok := result["version-rolling"].(bool); ok && rolling {
				if maskHex, ok := result["version-rolling.mask"].(string); ok {
					mask, err := parseHexUint32(maskHex)
					if err == nil {
						c.session.SetVersionMask(mask)
					}
				}
			}
		}

	case methodSubscribe:
		if res.Error != nil {
			return errkind.New(errkind.StratumProtocol, fmt.Errorf("subscribe: %s", res.Error.Message))
		}
		result, ok := res.Result.([]interface{})
		if !ok || len(result) != 3 {
			return errkind.New(errkind.StratumProtocol, fmt.Errorf("subscribe: unexpected result shape"))
		}
		extraNonce1Hex, ok := result[1].(string)
		if !ok {
			return errkind.New(errkind.StratumProtocol, fmt.Errorf("subscribe: bad extranonce1"))
		}
		extraNonce2Size, ok := result[2].(float64)
		if !ok {
			return errkind.New(errkind.StratumProtocol, fmt.Errorf("subscribe: bad extranonce2_size"))
		}
		extraNonce1, err := hexDecode(extraNonce1Hex)
		if err != nil {
			return errkind.New(errkind.StratumProtocol, fmt.Errorf("subscribe: %w", err))
		}
		c.session.SetSubscription(extraNonce1, uint(extraNonce2Size))

	case methodSetDifficulty:
		if len(req.Params) != 1 {
			return errkind.New(errkind.StratumProtocol, fmt.Errorf("set_difficulty: expected 1 param"))
		}
		d, ok := req.Params[0].(float64)
		if !ok {
			return errkind.New(errkind.StratumProtocol, fmt.Errorf("set_difficulty: bad value"))
		}
		c.session.SetDifficulty(d)

	case methodSetVersionMask:
		if len(req.Params) != 1 {
			return errkind.New(errkind.StratumProtocol, fmt.Errorf("set_version_mask: expected 1 param"))
		}
		maskHex, ok := req.Params[0].(string)
		if !ok {
			return errkind.New(errkind.StratumProtocol, fmt.Errorf("set_version_mask: bad value"))
		}
		mask, err := parseHexUint32(maskHex)
		if err != nil {
			return errkind.New(errkind.StratumProtocol, fmt.Errorf("set_version_mask: %w", err))
		}
		c.session.SetVersionMask(mask)

	case methodNotify:
		n, err := parseNotify(req.Params)
		if err != nil {
			return err
		}
		select {
		case c.notifications <- n:
		default:
			// Queue full: drop the oldest by draining one slot, keeping
			// the latest notification per the notify_queue's latest-wins
			// policy (spec §5).
			select {
			case <-c.notifications:
			default:
			}
			c.notifications <- n
		}

	case methodReconnect:
		select {
		case c.reconnects <- struct{}{}:
		default:
		}
		return errkind.New(errkind.StratumProtocol, fmt.Errorf("client.reconnect requested"))

	case methodSubmit:
		result := SubmitResult{}
		if len(req.Params) > 1 {
			if jobID, ok := req.Params[1].(string); ok {
				result.JobID = jobID
			}
		}
		if res.Error != nil {
			result.ErrCode = res.Error.Code
			result.Reason = res.Error.Message
		} else if ok, _ := res.Result.(bool); ok {
			result.Ok = true
		}
		select {
		case c.submitResults <- result:
		default:
			c.log.Warn("submit result dropped: channel full")
		}

	default:
		if req.Method != "" {
			c.log.WithField("method", req.Method).Debug("unsupported stratum method")
		}
	}
	return nil
}

// dialTimeout bounds the initial TCP connect attempt.
const dialTimeout = 15 * time.Second
