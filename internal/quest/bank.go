package quest

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type Question struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
	Answer   string   `json:"answer"`
}

// Acknowledge reports whether the question has no choices and is answered by
// simply continuing.
func (q Question) Acknowledge() bool {
	return len(q.Options) == 0
}

// Entry is one question with its bank key, e.g. "Quest 3".
type Entry struct {
	Key string
	Question
}

// Bank is the ordered question bank. It encodes as a JSON object whose key
// order is the order the questions are asked in.
type Bank []Entry

func (b Bank) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range b {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(e.Key)
		if err != nil {
			return nil, err
		}
		q := e.Question
		if q.Options == nil {
			q.Options = []string{}
		}
		val, err := json.Marshal(q)
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

// UnmarshalJSON reads the object key by key so document order survives. A
// repeated key replaces the earlier value in its original position.
func (b *Bank) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*b = Bank{}
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("quest bank: expected object, got %v", tok)
	}

	out := Bank{}
	pos := map[string]int{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key := tok.(string)
		var q Question
		if err := dec.Decode(&q); err != nil {
			return fmt.Errorf("quest bank %q: %w", key, err)
		}
		if i, ok := pos[key]; ok {
			out[i].Question = q
			continue
		}
		pos[key] = len(out)
		out = append(out, Entry{Key: key, Question: q})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*b = out
	return nil
}

// ParseBank decodes a question bank document.
func ParseBank(data []byte) (Bank, error) {
	var b Bank
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parsing quest bank: %w", err)
	}
	return b, nil
}
