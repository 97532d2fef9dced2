package main

// urlutils module builds ML endpoint URLs and query strings
//
// Copyright (c) 2023 - Valentin Kuznetsov <vkuznet@gmail.com>
//

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
)

// predictSuffix is appended to POST endpoints
const predictSuffix = "/predict"

// Param represents single key-value pair of request payload
type Param struct {
	Key   string
	Value any
}

// Params represents ordered key-value payload
type Params []Param

// Get returns value of given key
func (p Params) Get(key string) (any, bool) {
	for _, kv := range p {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return nil, false
}

// Set replaces value of existing key or appends new pair
func (p *Params) Set(key string, val any) {
	for i, kv := range *p {
		if kv.Key == key {
			(*p)[i].Value = val
			return
		}
	}
	*p = append(*p, Param{Key: key, Value: val})
}

// MarshalJSON encodes params as JSON object keeping key order
func (p Params) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, kv := range p {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(kv.Key)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(kv.Value)
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

// UnmarshalJSON decodes JSON object into params keeping key order,
// nested values are decoded as regular JSON values
func (p *Params) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*p = nil
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("params should be JSON object, got %v", tok)
	}
	var out Params
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("invalid params key %v", tok)
		}
		var val any
		if err := dec.Decode(&val); err != nil {
			return err
		}
		out = append(out, Param{Key: key, Value: val})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*p = out
	return nil
}

// helper function to trim user input and strip trailing slashes
func normalizeURL(rawURL string) string {
	return strings.TrimRight(strings.TrimSpace(rawURL), "/")
}

// helper function to parse absolute URL, i.e. URL with scheme and host
func parseAbsoluteURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("URL %q is not absolute", rawURL)
	}
	return u, nil
}

// BuildRequestURL normalizes user provided base URL for given HTTP method.
// POST requests get /predict path suffix unless it is already present.
func BuildRequestURL(baseURL, method string) (string, error) {
	rurl := normalizeURL(baseURL)
	if rurl == "" {
		return "", &InvalidURLError{}
	}
	u, err := parseAbsoluteURL(rurl)
	if err != nil {
		return "", &InvalidURLError{URL: rurl, Err: err}
	}
	if strings.ToUpper(strings.TrimSpace(method)) != http.MethodPost {
		return rurl, nil
	}
	if strings.HasSuffix(u.Path, predictSuffix) {
		return rurl, nil
	}
	if u.RawQuery == "" && u.Fragment == "" {
		return rurl + predictSuffix, nil
	}
	// keep query and fragment after the path suffix
	u.Path += predictSuffix
	if u.RawPath != "" {
		u.RawPath += predictSuffix
	}
	return u.String(), nil
}

// helper function to convert param value to its string representation
func paramString(val any) string {
	switch v := val.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(v)
	case json.Number:
		return v.String()
	case fmt.Stringer:
		return v.String()
	case []any, map[string]any:
		data, err := json.Marshal(v)
		if err == nil {
			return string(data)
		}
	}
	return fmt.Sprintf("%v", val)
}

// BuildQueryString builds URL encoded query string from given params,
// nil and empty string values are skipped
func BuildQueryString(params Params) string {
	var parts []string
	for _, kv := range params {
		if kv.Value == nil {
			continue
		}
		if s, ok := kv.Value.(string); ok && s == "" {
			continue
		}
		val := url.QueryEscape(paramString(kv.Value))
		parts = append(parts, url.QueryEscape(kv.Key)+"="+val)
	}
	return strings.Join(parts, "&")
}

// BuildGetURL appends query string of given params to base URL
func BuildGetURL(baseURL string, params Params) string {
	query := BuildQueryString(params)
	if query == "" {
		return baseURL
	}
	sep := "?"
	if strings.Contains(baseURL, "?") {
		sep = "&"
	}
	return baseURL + sep + query
}

// IsValidURL checks if given URL is absolute URL
func IsValidURL(rawURL string) bool {
	_, err := parseAbsoluteURL(strings.TrimSpace(rawURL))
	return err == nil
}

// DefaultAPIURL returns default ML endpoint
func DefaultAPIURL() string {
	if v := os.Getenv("MLBOARD_DEFAULT_API_URL"); v != "" {
		return v
	}
	if Config.DefaultEndpoint != "" {
		return Config.DefaultEndpoint
	}
	return "http://localhost:5000"
}
