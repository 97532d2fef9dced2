package main

// handlers module holds all HTTP handlers functions
//
// Copyright (c) 2023 - Valentin Kuznetsov <vkuznet@gmail.com>
//

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/uptrace/bunrouter"
)

// limits of multipart prediction requests
const (
	maxUploadSize = 32 << 20 // max size of uploaded image
	maxFormValue  = 1 << 20  // max size of single form value
)

// max size of whole prediction request body
var maxPredictBody int64 = 64 << 20

// HTTPError represents HTTP error record
type HTTPError struct {
	Method     string `json:"method"`      // HTTP method
	HTTPCode   int    `json:"http_code"`   // HTTP error code
	Code       int    `json:"code"`        // server status code
	Timestamp  string `json:"timestamp"`   // timestamp of the error
	Path       string `json:"path"`        // URL path
	UserAgent  string `json:"user_agent"`  // http user-agent field
	RemoteAddr string `json:"remote_addr"` // http.Request remote address
	Reason     string `json:"reason"`      // error code reason
	Error      string `json:"error"`       // error message
}

// PredictRequest represents prediction request of registered model
type PredictRequest struct {
	Data     Params            `json:"data"`               // model inputs
	Endpoint string            `json:"endpoint,omitempty"` // endpoint which overrides model one
	Method   string            `json:"method,omitempty"`   // method which overrides model one
	Headers  map[string]string `json:"headers,omitempty"`  // extra request headers
	Timeout  int               `json:"timeout,omitempty"`  // call timeout in milliseconds
}

// helper function to get route parameter from http request
func routeParam(r *http.Request, name string) string {
	params := bunrouter.ParamsFromContext(r.Context())
	return params.Map()[name]
}

// helper function to write JSON response
func writeJSON(w http.ResponseWriter, httpCode int, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Println("ERROR: unable to marshal response", err)
		httpError(w, nil, JsonMarshal, err, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpCode)
	w.Write(data)
}

// helper function to provide standard HTTP error reply
func httpError(w http.ResponseWriter, r *http.Request, code int, err error, httpCode int) {
	hrec := HTTPError{
		HTTPCode:  httpCode,
		Code:      code,
		Reason:    errorMessage(code),
		Timestamp: time.Now().String(),
	}
	if err != nil {
		hrec.Error = err.Error()
	}
	if r != nil {
		hrec.Method = r.Method
		hrec.Path = r.RequestURI
		hrec.UserAgent = r.Header.Get("User-Agent")
		hrec.RemoteAddr = r.RemoteAddr
	}
	if Config.Verbose > 0 {
		log.Printf("HTTPError: %+v", hrec)
	}
	data, e := json.MarshalIndent(hrec, "", "   ")
	if e != nil {
		data = []byte(e.Error())
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpCode)
	w.Write(data)
}

// helper function to map registry errors to HTTP codes
func registryError(w http.ResponseWriter, r *http.Request, code int, err error) {
	if errors.Is(err, ErrNotFound) {
		httpError(w, r, NotFoundError, err, http.StatusNotFound)
		return
	}
	httpError(w, r, code, err, http.StatusBadRequest)
}

// helper function to decode JSON body of HTTP request
func decodeBody(r *http.Request, rec any) error {
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(rec); err != nil {
		return fmt.Errorf("unable to decode request body: %w", err)
	}
	return nil
}

// ModelsHandler lists registered ML models or registers new one
func ModelsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		writeJSON(w, http.StatusOK, models.List())
		return
	}
	var rec ModelConfig
	if err := decodeBody(r, &rec); err != nil {
		httpError(w, r, BadRequest, err, http.StatusBadRequest)
		return
	}
	if err := rec.Validate(); err != nil {
		httpError(w, r, ModelRecordError, err, http.StatusBadRequest)
		return
	}
	rec = NewModelConfig(rec)
	if Config.Verbose > 1 {
		log.Println("register model", rec.ToJSON())
	}
	if err := models.Add(rec); err != nil {
		httpError(w, r, StorageError, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// ModelHandler handles GET, PUT and DELETE requests of single ML model
func ModelHandler(w http.ResponseWriter, r *http.Request) {
	id := routeParam(r, "id")
	switch r.Method {
	case http.MethodGet:
		rec, err := models.Get(id)
		if err != nil {
			registryError(w, r, ModelRecordError, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	case http.MethodPut:
		var rec ModelConfig
		if err := decodeBody(r, &rec); err != nil {
			httpError(w, r, BadRequest, err, http.StatusBadRequest)
			return
		}
		rec, err := models.Update(id, updateModel(rec))
		if err != nil {
			registryError(w, r, ModelRecordError, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	case http.MethodDelete:
		if err := models.Delete(id); err != nil {
			registryError(w, r, StorageError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": id})
	default:
		msg := fmt.Sprintf("Unsupport HTTP method %s", r.Method)
		httpError(w, r, BadRequest, errors.New(msg), http.StatusMethodNotAllowed)
	}
}

// PredictHandler calls ML endpoint of registered model and returns
// normalized prediction
func PredictHandler(w http.ResponseWriter, r *http.Request) {
	id := routeParam(r, "id")
	rec, err := models.Get(id)
	if err != nil {
		registryError(w, r, ModelRecordError, err)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxPredictBody)
	var preq PredictRequest
	if formData(r) {
		preq, err = formPredictRequest(r, rec)
	} else {
		err = decodeBody(r, &preq)
	}
	if err != nil {
		httpError(w, r, BadRequest, err, http.StatusBadRequest)
		return
	}
	if err := validateMethod(preq.Method); err != nil {
		httpError(w, r, BadRequest, err, http.StatusBadRequest)
		return
	}

	// only one prediction per model is allowed at a time
	if !inflight.Acquire(id) {
		msg := fmt.Sprintf("prediction for model %s is already in progress", id)
		httpError(w, r, BusyError, errors.New(msg), http.StatusConflict)
		return
	}
	defer inflight.Release(id)

	pred := predict(r, rec, preq)
	writeJSON(w, http.StatusOK, pred)
}

// helper function to perform ML endpoint call for given model
func predict(r *http.Request, rec ModelConfig, preq PredictRequest) Prediction {
	endpoint := rec.Endpoint
	if preq.Endpoint != "" {
		endpoint = preq.Endpoint
	}
	method := rec.HTTPMethod()
	if preq.Method != "" {
		method = strings.ToUpper(preq.Method)
	}
	opts := CallOptions{
		Method:  method,
		Headers: preq.Headers,
		Timeout: time.Duration(preq.Timeout) * time.Millisecond,
	}
	if method == http.MethodGet {
		endpoint = BuildGetURL(normalizeURL(endpoint), preq.Data)
	} else {
		opts.Data = preq.Data
	}
	if Config.Verbose > 0 {
		log.Printf("predict model=%s type=%s endpoint=%s method=%s", rec.ID, rec.Type, endpoint, method)
	}
	res := apiClient.Call(r.Context(), endpoint, opts)
	return normalizer.NormalizeResult(res, rec.Type, rec.DefaultStats)
}

// PresetsHandler lists API presets or adds new one
func PresetsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		writeJSON(w, http.StatusOK, presets.List())
		return
	}
	var rec APIPreset
	if err := decodeBody(r, &rec); err != nil {
		httpError(w, r, BadRequest, err, http.StatusBadRequest)
		return
	}
	if err := rec.Validate(); err != nil {
		httpError(w, r, PresetRecordError, err, http.StatusBadRequest)
		return
	}
	rec = NewPreset(rec)
	if err := presets.Add(rec); err != nil {
		httpError(w, r, StorageError, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// PresetHandler handles GET, PUT and DELETE requests of single API preset
func PresetHandler(w http.ResponseWriter, r *http.Request) {
	id := routeParam(r, "id")
	switch r.Method {
	case http.MethodGet:
		rec, err := presets.Get(id)
		if err != nil {
			registryError(w, r, PresetRecordError, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	case http.MethodPut:
		var rec APIPreset
		if err := decodeBody(r, &rec); err != nil {
			httpError(w, r, BadRequest, err, http.StatusBadRequest)
			return
		}
		rec, err := presets.Update(id, updatePreset(rec))
		if err != nil {
			registryError(w, r, PresetRecordError, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	case http.MethodDelete:
		if err := presets.Delete(id); err != nil {
			registryError(w, r, StorageError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": id})
	default:
		msg := fmt.Sprintf("Unsupport HTTP method %s", r.Method)
		httpError(w, r, BadRequest, errors.New(msg), http.StatusMethodNotAllowed)
	}
}

// ProxyHandler relays ML endpoint request on behalf of the client
func ProxyHandler(w http.ResponseWriter, r *http.Request) {
	var preq ProxyRequest
	if err := decodeBody(r, &preq); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	res := apiClient.Relay(r.Context(), preq)
	if res.OK() {
		writeJSON(w, http.StatusOK, res.Success.Data)
		return
	}
	status := http.StatusInternalServerError
	var serr *HTTPStatusError
	var uerr *InvalidURLError
	if errors.As(res.Failure.Err, &serr) {
		status = serr.StatusCode
	} else if errors.As(res.Failure.Err, &uerr) {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, map[string]string{"error": res.Failure.Message})
}

// URLHandler provides final request URL for given endpoint and method
func URLHandler(w http.ResponseWriter, r *http.Request) {
	endpoint := r.FormValue("endpoint")
	method := strings.ToUpper(r.FormValue("method"))
	if method == "" {
		method = http.MethodPost
	}
	rurl, err := BuildRequestURL(endpoint, method)
	if err != nil {
		rec := map[string]any{"url": "Invalid URL", "valid": false, "error": err.Error()}
		writeJSON(w, http.StatusBadRequest, rec)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"url": rurl, "method": method, "valid": true})
}

// StatusHandler handles status of MLBoard server
func StatusHandler(w http.ResponseWriter, r *http.Request) {
	rec := map[string]any{
		"server":           info(),
		"store":            Config.Store,
		"models":           len(models.List()),
		"presets":          len(presets.List()),
		"default_endpoint": DefaultAPIURL(),
		"timeout":          Config.Timeout().String(),
		"time":             time.Now().Format(time.RFC3339),
	}
	writeJSON(w, http.StatusOK, rec)
}

// DocsHandler provides MLBoard documentation
func DocsHandler(w http.ResponseWriter, r *http.Request) {
	content, err := mdToHTML("static/md/docs.md")
	if err != nil {
		httpError(w, r, FileIOError, err, http.StatusInternalServerError)
		return
	}
	tmpl := makeTmpl("MLBoard documentation")
	tmpl["Content"] = template.HTML(content)
	page := tmplPage("docs.tmpl", tmpl)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(tmpl.String("Top") + page + tmpl.String("Bottom")))
}

// IndexHandler provides MLBoard index page with registered models
func IndexHandler(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Accept") == "application/json" {
		ModelsHandler(w, r)
		return
	}
	tmpl := makeTmpl("MLBoard")
	tmpl["Models"] = models.List()
	tmpl["Presets"] = presets.List()
	page := tmplPage("index.tmpl", tmpl)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(tmpl.String("Top") + page + tmpl.String("Bottom")))
}

// helper function to check if request carries multipart form
func formData(r *http.Request) bool {
	ctype := r.Header.Get("Content-Type")
	return strings.HasPrefix(ctype, "multipart/form-data")
}

// helper function to convert multipart form into prediction request.
// Form fields keep their order, uploaded files become base64 data URLs
// and number inputs of the model are converted to numbers.
func formPredictRequest(r *http.Request, rec ModelConfig) (PredictRequest, error) {
	var preq PredictRequest
	reader, err := r.MultipartReader()
	if err != nil {
		return preq, err
	}
	inputs := make(map[string]string)
	for _, input := range rec.Inputs {
		inputs[input.Name] = input.Type
	}
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return preq, err
		}
		name := part.FormName()
		if part.FileName() != "" {
			durl, err := dataURL(part)
			part.Close()
			if err != nil {
				return preq, err
			}
			if name == "" || name == "file" {
				name = "image"
			}
			preq.Data.Set(name, durl)
			continue
		}
		data, err := io.ReadAll(io.LimitReader(part, maxFormValue))
		part.Close()
		if err != nil {
			return preq, err
		}
		value := string(data)
		switch name {
		case "endpoint":
			preq.Endpoint = value
		case "method":
			preq.Method = value
		case "":
		default:
			if inputs[name] == "number" {
				if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
					preq.Data.Set(name, f)
					continue
				}
			}
			preq.Data.Set(name, value)
		}
	}
	return preq, nil
}

// helper function to read uploaded file into base64 data URL
func dataURL(part *multipart.Part) (string, error) {
	data, err := io.ReadAll(io.LimitReader(part, maxUploadSize+1))
	if err != nil {
		return "", err
	}
	if len(data) > maxUploadSize {
		return "", fmt.Errorf("uploaded file %s exceeds %d bytes", part.FileName(), maxUploadSize)
	}
	ctype := part.Header.Get("Content-Type")
	if ctype == "" || ctype == "application/octet-stream" {
		ctype = http.DetectContentType(data)
	}
	return fmt.Sprintf("data:%s;base64,%s", ctype, base64.StdEncoding.EncodeToString(data)), nil
}
