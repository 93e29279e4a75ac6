package learning

import (
	"bytes"
	"encoding/json"
)

// SkillSet marshals skills as a JSON object keyed by name, keeping insertion order.
type SkillSet []Skill

func (s SkillSet) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, skill := range s {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(skill.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(skill)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
