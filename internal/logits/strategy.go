package logits

import (
	"fmt"
	"strings"
)

// MirostatStrategy selects the sampling pipeline used when temperature > 0.
type MirostatStrategy int

const (
	MirostatDisabled MirostatStrategy = iota
	MirostatV1
	MirostatV2
)

var strategyCodes = [...]string{
	MirostatDisabled: "DISABLED",
	MirostatV1:       "MIRO_STAT_V1",
	MirostatV2:       "MIRO_STAT_V2",
}

func (s MirostatStrategy) String() string {
	if s.Valid() {
		return strategyCodes[s]
	}
	return fmt.Sprintf("MirostatStrategy(%d)", int(s))
}

func (s MirostatStrategy) Valid() bool {
	return s >= MirostatDisabled && s <= MirostatV2
}

// ParseMirostatStrategy maps an external code to a strategy. Besides the
// canonical codes it accepts the llama.cpp numeric form ("0", "1", "2") and
// "v1"/"v2". An empty string means disabled; anything else is an error.
func ParseMirostatStrategy(code string) (MirostatStrategy, error) {
	switch strings.ToUpper(strings.TrimSpace(code)) {
	case "", "DISABLED", "0", "OFF":
		return MirostatDisabled, nil
	case "MIRO_STAT_V1", "MIROSTAT_V1", "V1", "1":
		return MirostatV1, nil
	case "MIRO_STAT_V2", "MIROSTAT_V2", "V2", "2":
		return MirostatV2, nil
	}
	return MirostatDisabled, fmt.Errorf("%w: %q", ErrUnknownStrategy, code)
}

func (s MirostatStrategy) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownStrategy, int(s))
	}
	return []byte(strategyCodes[s]), nil
}

func (s *MirostatStrategy) UnmarshalText(b []byte) error {
	v, err := ParseMirostatStrategy(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
