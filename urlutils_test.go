package main

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

// TestBuildRequestURLPost
func TestBuildRequestURLPost(t *testing.T) {
	cases := map[string]string{
		"http://localhost:5000":            "http://localhost:5000/predict",
		"http://localhost:5000/":           "http://localhost:5000/predict",
		"http://localhost:5000///":         "http://localhost:5000/predict",
		"  https://api.example.com/v1/  ":  "https://api.example.com/v1/predict",
		"https://api.example.com/predict":  "https://api.example.com/predict",
		"https://api.example.com/predict/": "https://api.example.com/predict",
		"https://api.example.com/v1?k=1":   "https://api.example.com/v1/predict?k=1",
	}
	for input, expect := range cases {
		rurl, err := BuildRequestURL(input, "POST")
		if err != nil {
			t.Errorf("unexpected error for %q: %v", input, err)
			continue
		}
		if rurl != expect {
			t.Errorf("wrong URL for %q: got %s expect %s", input, rurl, expect)
		}
		again, err := BuildRequestURL(rurl, "post")
		if err != nil || again != rurl {
			t.Errorf("URL %s is not stable: got %s error %v", rurl, again, err)
		}
		if strings.Count(rurl, "/predict") != 1 {
			t.Errorf("URL %s should contain exactly one /predict", rurl)
		}
	}
}

// TestBuildRequestURLGet
func TestBuildRequestURLGet(t *testing.T) {
	cases := map[string]string{
		"http://localhost:5000/":              "http://localhost:5000",
		" https://api.example.com/sales// ":   "https://api.example.com/sales",
		"https://api.example.com/sales?a=1":   "https://api.example.com/sales?a=1",
		"https://api.example.com/v1/predict/": "https://api.example.com/v1/predict",
	}
	for input, expect := range cases {
		rurl, err := BuildRequestURL(input, "GET")
		if err != nil {
			t.Errorf("unexpected error for %q: %v", input, err)
			continue
		}
		if rurl != expect {
			t.Errorf("wrong URL for %q: got %s expect %s", input, rurl, expect)
		}
	}
}

// TestBuildRequestURLInvalid
func TestBuildRequestURLInvalid(t *testing.T) {
	for _, input := range []string{"invalid-url", "", "   ", "/predict", "localhost"} {
		_, err := BuildRequestURL(input, "POST")
		var uerr *InvalidURLError
		if !errors.As(err, &uerr) {
			t.Errorf("expected InvalidURLError for %q, got %v", input, err)
		}
	}
	_, err := BuildRequestURL("", "POST")
	if err == nil || err.Error() != "API URL is required" {
		t.Errorf("unexpected error for empty URL: %v", err)
	}
}

// TestBuildQueryString
func TestBuildQueryString(t *testing.T) {
	params := Params{{Key: "a", Value: 1}, {Key: "b", Value: ""}, {Key: "c", Value: nil}}
	if query := BuildQueryString(params); query != "a=1" {
		t.Errorf("unexpected query %s", query)
	}
	params = Params{
		{Key: "text", Value: "hello world&more"},
		{Key: "temperature", Value: 25.5},
		{Key: "flag", Value: true},
	}
	expect := "text=hello+world%26more&temperature=25.5&flag=true"
	if query := BuildQueryString(params); query != expect {
		t.Errorf("unexpected query %s, expect %s", query, expect)
	}
	if query := BuildQueryString(nil); query != "" {
		t.Errorf("unexpected query for empty params %s", query)
	}
}

// TestBuildGetURL
func TestBuildGetURL(t *testing.T) {
	params := Params{{Key: "temperature", Value: 25}, {Key: "promotions", Value: 2}}
	rurl := BuildGetURL("https://api.example.com/sales", params)
	if rurl != "https://api.example.com/sales?temperature=25&promotions=2" {
		t.Errorf("unexpected URL %s", rurl)
	}
	rurl = BuildGetURL("https://api.example.com/sales?key=abc", params)
	if rurl != "https://api.example.com/sales?key=abc&temperature=25&promotions=2" {
		t.Errorf("unexpected URL %s", rurl)
	}
	rurl = BuildGetURL("https://api.example.com/sales", Params{{Key: "empty", Value: ""}})
	if rurl != "https://api.example.com/sales" {
		t.Errorf("unexpected URL %s", rurl)
	}
}

// TestIsValidURL
func TestIsValidURL(t *testing.T) {
	valid := []string{"https://example.com", "http://localhost:5000/api", " http://127.0.0.1 "}
	for _, v := range valid {
		if !IsValidURL(v) {
			t.Errorf("URL %q should be valid", v)
		}
	}
	invalid := []string{"", "invalid-url", "example.com", "http://"}
	for _, v := range invalid {
		if IsValidURL(v) {
			t.Errorf("URL %q should be invalid", v)
		}
	}
}

// TestParamsOrder
func TestParamsOrder(t *testing.T) {
	var params Params
	input := `{"temperature":25,"promotions":2,"text":"abc","nested":{"b":1,"a":2}}`
	if err := json.Unmarshal([]byte(input), &params); err != nil {
		t.Fatal(err)
	}
	if len(params) != 4 || params[0].Key != "temperature" || params[3].Key != "nested" {
		t.Errorf("unexpected params %+v", params)
	}
	data, err := json.Marshal(params)
	if err != nil {
		t.Fatal(err)
	}
	expect := `{"temperature":25,"promotions":2,"text":"abc","nested":{"a":2,"b":1}}`
	if string(data) != expect {
		t.Errorf("unexpected JSON %s, expect %s", string(data), expect)
	}
	params.Set("promotions", 3)
	params.Set("store", "north")
	if val, ok := params.Get("promotions"); !ok || val != 3 {
		t.Errorf("unexpected promotions value %v", val)
	}
	if params[4].Key != "store" {
		t.Errorf("new key should be appended, got %+v", params)
	}
	if err := json.Unmarshal([]byte(`[1,2]`), &params); err == nil {
		t.Error("JSON array should not be accepted as params")
	}
}

// TestDefaultAPIURL
func TestDefaultAPIURL(t *testing.T) {
	Config = Configuration{}
	t.Setenv("MLBOARD_DEFAULT_API_URL", "")
	if rurl := DefaultAPIURL(); rurl != "http://localhost:5000" {
		t.Errorf("unexpected default URL %s", rurl)
	}
	Config.DefaultEndpoint = "http://ml.example.com"
	if rurl := DefaultAPIURL(); rurl != "http://ml.example.com" {
		t.Errorf("unexpected default URL %s", rurl)
	}
	t.Setenv("MLBOARD_DEFAULT_API_URL", "http://ml:9000")
	if rurl := DefaultAPIURL(); rurl != "http://ml:9000" {
		t.Errorf("unexpected default URL %s", rurl)
	}
}
