package progress

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

const slotSeparator = "_order_"

// Label addresses one stage: a lifecycle step within a bundle slot. It is
// serialised as "{base}_order_{slot}" for existing clients.
type Label struct {
	Base BaseState
	Slot int
}

func (l Label) IsZero() bool { return l.Base == "" && l.Slot == 0 }

func (l Label) String() string {
	if l.IsZero() {
		return ""
	}
	return string(l.Base) + slotSeparator + strconv.Itoa(l.Slot)
}

func ParseLabel(s string) (Label, error) {
	if s == "" {
		return Label{}, nil
	}
	i := strings.LastIndex(s, slotSeparator)
	if i <= 0 {
		return Label{}, fmt.Errorf("invalid stage label %q", s)
	}
	base := BaseState(s[:i])
	if !base.Valid() {
		return Label{}, fmt.Errorf("invalid stage label %q: unknown state %q", s, base)
	}
	slot, err := strconv.Atoi(s[i+len(slotSeparator):])
	if err != nil || slot < 1 {
		return Label{}, fmt.Errorf("invalid stage label %q: bad slot", s)
	}
	return Label{Base: base, Slot: slot}, nil
}

func (l Label) MarshalJSON() ([]byte, error) {
	if l.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(l.String())
}

func (l *Label) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*l = Label{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseLabel(s)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
