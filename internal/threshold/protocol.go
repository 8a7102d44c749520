package threshold

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/teschmitt/kickir/internal/domain"
	"github.com/teschmitt/kickir/internal/ports"
)

// ErrMalformedChange is returned for any control message that is not
// "<HOME|AWAY>:<value>".
var ErrMalformedChange = errors.New("malformed threshold change")

// ParseChange decodes "<SIDE>:<VALUE>". SIDE is HOME or AWAY in any case and
// VALUE must fit a ThreshValue. Whitespace around either part is ignored.
func ParseChange(s string) (domain.ThresholdChange, error) {
	rawSide, rawValue, ok := strings.Cut(s, ":")
	if !ok {
		return domain.ThresholdChange{}, fmt.Errorf("%w: missing ':' in %q", ErrMalformedChange, s)
	}

	var side domain.Side
	switch strings.ToUpper(strings.TrimSpace(rawSide)) {
	case "HOME":
		side = domain.SideHome
	case "AWAY":
		side = domain.SideAway
	default:
		return domain.ThresholdChange{}, fmt.Errorf("%w: unknown side %q", ErrMalformedChange, strings.TrimSpace(rawSide))
	}

	v, err := strconv.ParseUint(strings.TrimSpace(rawValue), 10, 16)
	if err != nil {
		return domain.ThresholdChange{}, fmt.Errorf("%w: value %q: %v", ErrMalformedChange, strings.TrimSpace(rawValue), err)
	}

	return domain.ThresholdChange{Side: side, NewValue: domain.ThreshValue(v)}, nil
}

// Protocol applies control writes to a Store.
type Protocol struct {
	store *Store
	obs   ports.Observability
}

func NewProtocol(store *Store, obs ports.Observability) *Protocol {
	return &Protocol{store: store, obs: obs}
}

// HandleWrite decodes one inbound write and applies it. A rejected write is
// logged and leaves the store untouched. Callers on the fire-and-forget
// paths ignore the returned error.
func (p *Protocol) HandleWrite(raw []byte) error {
	if !utf8.Valid(raw) {
		err := fmt.Errorf("%w: payload is not valid UTF-8", ErrMalformedChange)
		p.reject(raw, err)
		return err
	}

	change, err := ParseChange(string(raw))
	if err != nil {
		p.reject(raw, err)
		return err
	}

	p.store.Apply(change)
	p.obs.IncCounter(ports.MetricThresholdUpdates, 1)
	p.obs.SetGauge(GaugeName(change.Side), float64(change.NewValue))
	p.obs.LogInfo("threshold_updated",
		ports.Field{Key: "side", Value: change.Side.String()},
		ports.Field{Key: "value", Value: change.NewValue})
	return nil
}

func (p *Protocol) reject(raw []byte, err error) {
	p.obs.IncCounter(ports.MetricThresholdRejected, 1)
	p.obs.LogError("threshold_rejected", err, ports.Field{Key: "payload", Value: fmt.Sprintf("%q", raw)})
}

// GaugeName returns the gauge that mirrors a side's threshold.
func GaugeName(side domain.Side) string {
	if side == domain.SideAway {
		return ports.GaugeThresholdAway
	}
	return ports.GaugeThresholdHome
}

var _ ports.ControlHandler = (*Protocol)(nil)
