package account

import (
	"encoding/json"
)

// Settings is the per-account automation configuration. Keys this version does not
// know are kept in Extra and written back untouched.
type Settings struct {
	AutoReply         bool   `json:"autoReply"`
	ReplyDelaySeconds int    `json:"replyDelaySeconds"`
	DailyMessageLimit int    `json:"dailyMessageLimit"`
	WorkingHoursStart string `json:"workingHoursStart,omitempty"`
	WorkingHoursEnd   string `json:"workingHoursEnd,omitempty"`
	Timezone          string `json:"timezone,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

func DefaultSettings() Settings {
	return Settings{
		AutoReply:         true,
		ReplyDelaySeconds: 30,
		DailyMessageLimit: 50,
	}
}

var knownSettingKeys = map[string]struct{}{
	"autoReply":         {},
	"replyDelaySeconds": {},
	"dailyMessageLimit": {},
	"workingHoursStart": {},
	"workingHoursEnd":   {},
	"timezone":          {},
}

// settingsFields has the same fields as Settings without the methods, so it can be
// marshalled without recursing.
type settingsFields Settings

func (s Settings) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal(settingsFields(s))
	if err != nil {
		return nil, err
	}
	if len(s.Extra) == 0 {
		return known, nil
	}
	merged := map[string]json.RawMessage{}
	for k, v := range s.Extra {
		if _, ok := knownSettingKeys[k]; ok {
			continue
		}
		merged[k] = v
	}
	if err := json.Unmarshal(known, &merged); err != nil {
		return nil, err
	}
	return json.Marshal(merged)
}

func (s *Settings) UnmarshalJSON(b []byte) error {
	var f settingsFields
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(b, &all); err != nil {
		return err
	}
	for k := range knownSettingKeys {
		delete(all, k)
	}
	*s = Settings(f)
	s.Extra = nil
	if len(all) > 0 {
		s.Extra = all
	}
	return nil
}
