package mqtt

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sweeney/stove-controller/internal/logic"
)

// Transport sends raw messages and registers handlers.
type Transport interface {
	Subscriber
	Send(topic string, payload []byte) error
}

// ShellyConfig maps the stove onto a Shelly Gen2 device.
type ShellyConfig struct {
	Device   string // device topic prefix, e.g. "shellypro4pm-stove"
	ClientID string // our RPC source; responses arrive on <ClientID>/rpc
	Timeout  time.Duration
	Switches map[logic.Output]int
	Inputs   map[logic.Input]int
}

// ShellyPort drives relays and reads inputs of a Shelly Gen2 device using
// JSON-RPC over MQTT. It implements logic.Actuator and logic.InputReader.
// Every completion is posted to the loop exactly once.
type ShellyPort struct {
	t    Transport
	post Poster
	cfg  ShellyConfig
	log  zerolog.Logger

	mu      sync.Mutex
	nextID  int64
	pending map[int64]*rpcCall
	inputID map[int]logic.Input
	onEdge  func(logic.Input, bool)
}

type rpcCall struct {
	method string
	done   func(json.RawMessage, error)
	timer  *time.Timer
}

type rpcRequest struct {
	ID     int64  `json:"id"`
	Src    string `json:"src"`
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

type rpcResponse struct {
	ID     int64           `json:"id"`
	Src    string          `json:"src"`
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("shelly rpc error %d: %s", e.Code, e.Message)
}

type rpcNotification struct {
	Method string                     `json:"method"`
	Params map[string]json.RawMessage `json:"params"`
}

type inputStatus struct {
	ID    int   `json:"id"`
	State *bool `json:"state"`
}

// NewShellyPort subscribes to RPC responses and status notifications.
// onEdge, if set, receives input changes on the loop.
func NewShellyPort(t Transport, post Poster, cfg ShellyConfig, onEdge func(logic.Input, bool), logger zerolog.Logger) (*ShellyPort, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	p := &ShellyPort{
		t:       t,
		post:    post,
		cfg:     cfg,
		log:     logger,
		pending: make(map[int64]*rpcCall),
		inputID: make(map[int]logic.Input),
		onEdge:  onEdge,
	}
	for in, id := range cfg.Inputs {
		p.inputID[id] = in
	}
	if err := t.Subscribe(cfg.ClientID+"/rpc", p.handleResponse); err != nil {
		return nil, fmt.Errorf("subscribe rpc responses: %w", err)
	}
	if err := t.Subscribe(cfg.Device+"/events/rpc", p.handleNotification); err != nil {
		return nil, fmt.Errorf("subscribe shelly events: %w", err)
	}
	return p, nil
}

// SetOutput calls Switch.Set.
func (p *ShellyPort) SetOutput(out logic.Output, on bool, done func(error)) {
	id, ok := p.cfg.Switches[out]
	if !ok {
		err := fmt.Errorf("no shelly switch for %s", out)
		p.post.Post(func() { done(err) })
		return
	}
	params := map[string]any{"id": id, "on": on}
	p.call("Switch.Set", params, func(_ json.RawMessage, err error) {
		if err != nil {
			err = fmt.Errorf("set %s: %w", out, err)
		}
		done(err)
	})
}

// ReadInput calls Input.GetStatus. A null state is reported as unknown.
func (p *ShellyPort) ReadInput(in logic.Input, done func(bool, error)) {
	id, ok := p.cfg.Inputs[in]
	if !ok {
		err := fmt.Errorf("no shelly input for %s: %w", in, logic.ErrUnknownValue)
		p.post.Post(func() { done(false, err) })
		return
	}
	p.call("Input.GetStatus", map[string]any{"id": id}, func(res json.RawMessage, err error) {
		if err != nil {
			done(false, fmt.Errorf("read %s: %w", in, err))
			return
		}
		var st inputStatus
		if err := json.Unmarshal(res, &st); err != nil || st.State == nil {
			done(false, fmt.Errorf("read %s: %w", in, logic.ErrUnknownValue))
			return
		}
		done(*st.State, nil)
	})
}

// call sends one request. done runs on the loop with the result, an RPC
// error, ErrNotConnected or ErrRPCTimeout.
func (p *ShellyPort) call(method string, params any, done func(json.RawMessage, error)) {
	p.mu.Lock()
	p.nextID++
	id := p.nextID
	c := &rpcCall{method: method, done: done}
	p.pending[id] = c
	c.timer = time.AfterFunc(p.cfg.Timeout, func() { p.complete(id, nil, ErrRPCTimeout) })
	p.mu.Unlock()

	payload, err := json.Marshal(rpcRequest{ID: id, Src: p.cfg.ClientID, Method: method, Params: params})
	if err == nil {
		err = p.t.Send(p.cfg.Device+"/rpc", payload)
	}
	if err != nil {
		p.complete(id, nil, err)
	}
}

// complete resolves call id once; later completions for the same id are
// ignored.
func (p *ShellyPort) complete(id int64, res json.RawMessage, err error) {
	p.mu.Lock()
	c, ok := p.pending[id]
	if ok {
		delete(p.pending, id)
	}
	p.mu.Unlock()
	if !ok {
		return
	}
	c.timer.Stop()
	if err != nil {
		p.log.Warn().Err(err).Str("method", c.method).Int64("id", id).Msg("shelly rpc failed")
	}
	p.post.Post(func() { c.done(res, err) })
}

func (p *ShellyPort) handleResponse(_ string, payload []byte) {
	var resp rpcResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		p.log.Warn().Err(err).Msg("malformed shelly response")
		return
	}
	if resp.Error != nil {
		p.complete(resp.ID, nil, resp.Error)
		return
	}
	p.complete(resp.ID, resp.Result, nil)
}

// handleNotification turns NotifyStatus input changes into edges.
func (p *ShellyPort) handleNotification(_ string, payload []byte) {
	if p.onEdge == nil {
		return
	}
	var n rpcNotification
	if err := json.Unmarshal(payload, &n); err != nil || n.Method != "NotifyStatus" {
		return
	}
	for key, raw := range n.Params {
		idStr, ok := strings.CutPrefix(key, "input:")
		if !ok {
			continue
		}
		id, err := strconv.Atoi(idStr)
		if err != nil {
			continue
		}
		in, ok := p.inputID[id]
		if !ok {
			continue
		}
		var st inputStatus
		if err := json.Unmarshal(raw, &st); err != nil || st.State == nil {
			continue
		}
		value := *st.State
		p.log.Debug().Str("input", string(in)).Bool("value", value).Msg("shelly input changed")
		p.post.Post(func() { p.onEdge(in, value) })
	}
}

// Pending returns the number of calls awaiting a response.
func (p *ShellyPort) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// ReadAll reads every input once, blocking until all replies arrive. It is
// meant for one-shot use outside the loop.
func (p *ShellyPort) ReadAll() (map[logic.Input]bool, error) {
	type result struct {
		in  logic.Input
		v   bool
		err error
	}
	ch := make(chan result, len(logic.Inputs))
	for _, in := range logic.Inputs {
		p.ReadInput(in, func(v bool, err error) { ch <- result{in, v, err} })
	}
	values := make(map[logic.Input]bool, len(logic.Inputs))
	for range logic.Inputs {
		r := <-ch
		if r.err != nil {
			return nil, r.err
		}
		values[r.in] = r.v
	}
	return values, nil
}
