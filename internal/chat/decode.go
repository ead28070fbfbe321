package chat

import (
	"encoding/json"
	"strconv"
	"strings"
)

// text accepts a JSON string or a list of strings, which it joins. Anything
// else decodes as empty.
type text string

func (t *text) UnmarshalJSON(b []byte) error {
	var s string
	if json.Unmarshal(b, &s) == nil {
		*t = text(strings.TrimSpace(s))
		return nil
	}
	var list []string
	if json.Unmarshal(b, &list) == nil {
		*t = text(strings.Join(nonEmpty(list), ", "))
		return nil
	}
	*t = ""
	return nil
}

// list accepts a JSON list of strings or a single comma-separated string.
type list []string

func (l *list) UnmarshalJSON(b []byte) error {
	var items []string
	if json.Unmarshal(b, &items) == nil {
		*l = nonEmpty(items)
		return nil
	}
	var s string
	if json.Unmarshal(b, &s) == nil {
		*l = nonEmpty(strings.Split(s, ","))
		return nil
	}
	*l = []string{}
	return nil
}

// number accepts a JSON number or a numeric string.
type number float64

func (n *number) UnmarshalJSON(b []byte) error {
	var f float64
	if json.Unmarshal(b, &f) == nil {
		*n = number(f)
		return nil
	}
	var s string
	if json.Unmarshal(b, &s) == nil {
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			*n = number(f)
			return nil
		}
	}
	*n = 0
	return nil
}

// flag accepts a JSON bool or the strings "true"/"false".
type flag bool

func (f *flag) UnmarshalJSON(b []byte) error {
	var v bool
	if json.Unmarshal(b, &v) == nil {
		*f = flag(v)
		return nil
	}
	var s string
	if json.Unmarshal(b, &s) == nil {
		*f = flag(strings.EqualFold(strings.TrimSpace(s), "true"))
		return nil
	}
	*f = false
	return nil
}

func nonEmpty(items []string) []string {
	out := []string{}
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" && !strings.EqualFold(s, "none") {
			out = append(out, s)
		}
	}
	return out
}

// object accepts a JSON object; anything else decodes as empty.
type object map[string]interface{}

func (o *object) UnmarshalJSON(b []byte) error {
	var m map[string]interface{}
	if json.Unmarshal(b, &m) != nil || m == nil {
		*o = object{}
		return nil
	}
	*o = object(m)
	return nil
}
