package main

// mlboard - Go implementation of ML endpoints registry and test console
//
// Copyright (c) 2023 - Valentin Kuznetsov <vkuznet@gmail.com>
//

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"runtime"
	"strings"
	"time"

	_ "expvar"         // to be used for monitoring, see https://github.com/divan/expvarmon
	_ "net/http/pprof" // profiler, see https://golang.org/pkg/net/http/pprof/
)

// version of the code
var version string

// helper function to return version string of the server
func info() string {
	goVersion := runtime.Version()
	tstamp := time.Now().Format("2006-02-01")
	return fmt.Sprintf("mlboard git=%s go=%s date=%s", version, goVersion, tstamp)
}

func main() {
	var config string
	flag.StringVar(&config, "config", "", "configuration file (JSON or YAML)")
	var version bool
	flag.BoolVar(&version, "version", false, "print version information about the server")
	var rurl string
	flag.StringVar(&rurl, "url", "", "ML endpoint to call once instead of starting the server")
	var method string
	flag.StringVar(&method, "method", "POST", "HTTP method of ML endpoint call, GET or POST")
	var data string
	flag.StringVar(&data, "data", "{}", "JSON object with ML model inputs")
	var mtype string
	flag.StringVar(&mtype, "type", "", "ML model type: regression, classification or image_classification")
	var timeout time.Duration
	flag.DurationVar(&timeout, "timeout", 0, "ML endpoint call timeout, e.g. 30s")
	flag.Parse()
	if version {
		fmt.Println(info())
		os.Exit(0)
	}
	if config != "" {
		if err := parseConfig(config); err != nil {
			log.Fatalf("unable to parse config %s, error %v\n", config, err)
		}
	} else {
		setDefaults()
	}
	if err := setupLogger(); err != nil {
		log.Fatal("unable to setup logger: ", err)
	}
	if Config.Verbose > 0 {
		log.Println(Config.String())
	}

	// perform single ML endpoint call
	if rurl != "" {
		if err := callOnce(rurl, method, data, mtype, timeout); err != nil {
			log.Fatal(err)
		}
		return
	}

	// start MLBoard server
	Server()
}

// helper function to call ML endpoint once and print normalized prediction,
// the process exits with non-zero code when the call fails
func callOnce(rurl, method, data, mtype string, timeout time.Duration) error {
	pred, ok, err := predictOnce(context.Background(), rurl, method, data, mtype, timeout)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(pred, "", "   ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	if !ok {
		os.Exit(1)
	}
	return nil
}

// predictOnce calls ML endpoint with JSON encoded inputs and returns
// normalized prediction along with status of the call. Errors are returned
// only for invalid arguments, failed calls give error prediction.
func predictOnce(ctx context.Context, rurl, method, data, mtype string, timeout time.Duration) (Prediction, bool, error) {
	var params Params
	if err := json.Unmarshal([]byte(data), &params); err != nil {
		return nil, false, fmt.Errorf("unable to parse data %q: %w", data, err)
	}
	var modelType ModelType
	if mtype != "" {
		var err error
		if modelType, err = ParseModelType(mtype); err != nil {
			return nil, false, err
		}
	}
	if err := validateMethod(method); err != nil {
		return nil, false, err
	}
	opts := CallOptions{Method: method, Timeout: timeout}
	if strings.EqualFold(method, http.MethodGet) {
		rurl = BuildGetURL(normalizeURL(rurl), params)
	} else {
		opts.Data = params
	}
	client := NewAPIClient(Config.Timeout())
	res := client.Call(ctx, rurl, opts)
	pred := NewNormalizer(Config.DefaultConfidence).NormalizeResult(res, modelType, nil)
	return pred, res.OK(), nil
}
