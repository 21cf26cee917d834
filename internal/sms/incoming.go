package sms

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/tuitora/tuitora-gateway/internal/model"
)

// Aliases per logical field, checked in order. Providers disagree on names.
var (
	aliasID     = []string{"id", "messageId", "MessageSid", "SmsSid"}
	aliasFrom   = []string{"from", "From", "msisdn", "sender", "phoneNumber"}
	aliasTo     = []string{"to", "To", "shortCode", "recipient"}
	aliasText   = []string{"text", "Text", "message", "body", "Body"}
	aliasLinkID = []string{"linkId", "LinkId"}
	aliasDate   = []string{"date", "Date", "timestamp"}
)

// ParseIncoming reads a mobile-originated SMS callback of unknown shape. It
// never fails outright: the returned message holds whatever could be mapped,
// and err only describes a body that could not be decoded.
func ParseIncoming(contentType string, body []byte, query url.Values) (model.IncomingSMS, error) {
	fields := make(map[string]string)
	for k, v := range query {
		if len(v) > 0 {
			fields[k] = v[0]
		}
	}

	var err error
	trimmed := strings.TrimSpace(string(body))
	switch {
	case trimmed == "":
	case strings.HasPrefix(contentType, "application/json") || strings.HasPrefix(trimmed, "{"):
		var obj map[string]any
		if jerr := json.Unmarshal(body, &obj); jerr != nil {
			err = fmt.Errorf("decode json body: %w", jerr)
			break
		}
		for k, v := range obj {
			fields[k] = stringify(v)
		}
	default:
		vals, qerr := url.ParseQuery(trimmed)
		if qerr != nil {
			err = fmt.Errorf("decode form body: %w", qerr)
		}
		for k, v := range vals {
			if len(v) > 0 {
				fields[k] = v[0]
			}
		}
	}

	return FromFields(fields), err
}

// FromFields maps known aliases onto IncomingSMS; every other key lands in Raw.
func FromFields(fields map[string]string) model.IncomingSMS {
	used := make(map[string]bool)
	pick := func(aliases []string) string {
		out := ""
		for _, a := range aliases {
			v, ok := fields[a]
			if !ok {
				continue
			}
			used[a] = true
			if v = strings.TrimSpace(v); v != "" && out == "" {
				out = v
			}
		}
		return out
	}

	m := model.IncomingSMS{
		ID:     pick(aliasID),
		From:   pick(aliasFrom),
		To:     pick(aliasTo),
		Text:   pick(aliasText),
		LinkID: pick(aliasLinkID),
		Date:   pick(aliasDate),
	}

	for k, v := range fields {
		if used[k] {
			continue
		}
		if m.Raw == nil {
			m.Raw = make(map[string]string)
		}
		m.Raw[k] = v
	}
	return m
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}
