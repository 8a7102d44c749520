package opcua

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/ua"

	"github.com/teschmitt/kickir/internal/domain"
	"github.com/teschmitt/kickir/internal/ports"
)

// Config captures the runtime details required to open an OPC UA session
// against a PLC that exposes the light-gate intensities as nodes.
type Config struct {
	Endpoint        string        `yaml:"endpoint"`
	Username        string        `yaml:"username"`
	Password        string        `yaml:"password"`
	SecurityMode    string        `yaml:"security_mode"`
	SecurityPolicy  string        `yaml:"security_policy"`
	ApplicationName string        `yaml:"application_name"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	Nodes           []NodeConfig  `yaml:"nodes"`
}

// NodeConfig binds a sensor channel to the node holding its sample.
type NodeConfig struct {
	Channel domain.Channel `yaml:"channel"`
	NodeID  string         `yaml:"node_id"`
}

func (c *Config) ApplyDefaults() {
	if c.SecurityMode == "" {
		c.SecurityMode = "None"
	}
	if c.SecurityPolicy == "" {
		c.SecurityPolicy = "None"
	}
	if c.ApplicationName == "" {
		c.ApplicationName = "kickir"
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 50 * time.Millisecond
	}
}

func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return errors.New("endpoint is required")
	}
	if len(c.Nodes) == 0 {
		return errors.New("at least one node must be configured")
	}
	seen := make(map[domain.Channel]bool, len(c.Nodes))
	for _, n := range c.Nodes {
		if seen[n.Channel] {
			return fmt.Errorf("channel %d mapped twice", n.Channel)
		}
		seen[n.Channel] = true
		if _, err := ua.ParseNodeID(n.NodeID); err != nil {
			return fmt.Errorf("parse node id %q: %w", n.NodeID, err)
		}
	}
	return nil
}

type nodeReader interface {
	Read(ctx context.Context, req *ua.ReadRequest) (*ua.ReadResponse, error)
	Close(ctx context.Context) error
}

// Sensor reads one OPC UA node per channel on demand.
type Sensor struct {
	cfg    Config
	client nodeReader
	nodes  map[domain.Channel]*ua.NodeID
	mu     sync.Mutex
	closed bool
}

// NewSensor connects to the configured endpoint. The session is kept open
// until Close; gopcua reconnects on its own after a dropped link.
func NewSensor(ctx context.Context, cfg Config) (*Sensor, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client, err := opcua.NewClient(cfg.Endpoint, buildClientOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("opcua new client: %w", err)
	}
	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("opcua connect: %w", err)
	}

	s, err := newSensor(cfg, client)
	if err != nil {
		_ = client.Close(ctx)
		return nil, err
	}
	return s, nil
}

func newSensor(cfg Config, client nodeReader) (*Sensor, error) {
	nodes := make(map[domain.Channel]*ua.NodeID, len(cfg.Nodes))
	for _, n := range cfg.Nodes {
		id, err := ua.ParseNodeID(n.NodeID)
		if err != nil {
			return nil, fmt.Errorf("parse node id %q: %w", n.NodeID, err)
		}
		nodes[n.Channel] = id
	}
	return &Sensor{cfg: cfg, client: client, nodes: nodes}, nil
}

func (s *Sensor) Read(ch domain.Channel) (domain.Intensity, error) {
	id, ok := s.nodes[ch]
	if !ok {
		return 0, fmt.Errorf("opcua: channel %d has no node", ch)
	}

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return 0, errors.New("opcua: sensor closed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ReadTimeout)
	defer cancel()

	resp, err := s.client.Read(ctx, &ua.ReadRequest{
		NodesToRead:        []*ua.ReadValueID{{NodeID: id, AttributeID: ua.AttributeIDValue}},
		TimestampsToReturn: ua.TimestampsToReturnNeither,
	})
	if err != nil {
		return 0, fmt.Errorf("opcua read %s: %w", id, err)
	}
	if resp == nil || len(resp.Results) == 0 {
		return 0, fmt.Errorf("opcua read %s: empty result", id)
	}
	res := resp.Results[0]
	if res.Status != ua.StatusOK {
		return 0, fmt.Errorf("opcua read %s: %w", id, res.Status)
	}

	fv, ok := variantToFloat(res.Value)
	if !ok {
		var raw any
		if res.Value != nil {
			raw = res.Value.Value()
		}
		return 0, fmt.Errorf("opcua read %s: unsupported type %T", id, raw)
	}
	return toIntensity(fv), nil
}

func (s *Sensor) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.client.Close(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func buildClientOptions(cfg Config) []opcua.Option {
	opts := []opcua.Option{
		opcua.SecurityModeString(normalizeSecurityMode(cfg.SecurityMode)),
		opcua.SecurityPolicy(normalizeSecurityPolicy(cfg.SecurityPolicy)),
		opcua.ApplicationName(cfg.ApplicationName),
		opcua.AutoReconnect(true),
		opcua.RequestTimeout(cfg.ReadTimeout),
	}

	if cfg.Username != "" {
		opts = append(opts, opcua.AuthUsername(cfg.Username, cfg.Password))
	} else {
		opts = append(opts, opcua.AuthAnonymous())
	}
	return opts
}

func toIntensity(v float64) domain.Intensity {
	switch {
	case math.IsNaN(v) || v <= 0:
		return 0
	case v >= math.MaxUint16:
		return math.MaxUint16
	default:
		return domain.Intensity(v)
	}
}

func variantToFloat(v *ua.Variant) (float64, bool) {
	if v == nil {
		return 0, false
	}

	switch val := v.Value().(type) {
	case float32:
		return float64(val), true
	case float64:
		return val, true
	case int8:
		return float64(val), true
	case uint8:
		return float64(val), true
	case int16:
		return float64(val), true
	case uint16:
		return float64(val), true
	case int32:
		return float64(val), true
	case uint32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint64:
		return float64(val), true
	default:
		return 0, false
	}
}

func normalizeSecurityMode(mode string) string {
	switch strings.ToLower(mode) {
	case "sign":
		return "Sign"
	case "signandencrypt", "signencrypt", "sign_and_encrypt", "sign+encrypt":
		return "SignAndEncrypt"
	default:
		return "None"
	}
}

func normalizeSecurityPolicy(policy string) string {
	if policy == "" {
		return "None"
	}
	return policy
}

var _ ports.Sensor = (*Sensor)(nil)
