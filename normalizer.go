package main

// normalizer module maps ML endpoint responses into predictions
//
// Copyright (c) 2023 - Valentin Kuznetsov <vkuznet@gmail.com>
//

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// DefaultConfidence is used when response does not carry any confidence
const DefaultConfidence = 0.85

// Prediction represents canonical prediction record, it is one of
// RegressionPrediction, ClassificationPrediction, ErrorPrediction or
// GenericPrediction
type Prediction interface {
	PredictionType() string
}

// RegressionMetrics represents regression model statistics
type RegressionMetrics struct {
	R2           *float64  `json:"r2,omitempty"`
	MSE          *float64  `json:"mse,omitempty"`
	RMSE         *float64  `json:"rmse,omitempty"`
	MAE          *float64  `json:"mae,omitempty"`
	Coefficients []float64 `json:"coefficients,omitempty"`
	Intercept    *float64  `json:"intercept,omitempty"`
}

// RegressionPrediction represents prediction of regression model
type RegressionPrediction struct {
	Type           string            `json:"type"`
	PredictedValue any               `json:"prediction"` // number or string
	Confidence     float64           `json:"confidence"`
	Metrics        RegressionMetrics `json:"metrics"`
	RawResponse    any               `json:"rawResponse"`
}

// PredictionType implements Prediction interface
func (p RegressionPrediction) PredictionType() string { return p.Type }

// LabelProbability represents probability of single class label
type LabelProbability struct {
	Label       string  `json:"label"`
	Probability float64 `json:"probability"`
}

// ClassificationPrediction represents prediction of classification
// and image classification models
type ClassificationPrediction struct {
	Type           string             `json:"type"`
	PredictedLabel string             `json:"prediction"`
	Probabilities  []LabelProbability `json:"probabilities"`
	Confidence     float64            `json:"confidence"`
	Metrics        map[string]any     `json:"metrics"`
	RawResponse    any                `json:"rawResponse"`
}

// PredictionType implements Prediction interface
func (p ClassificationPrediction) PredictionType() string { return p.Type }

// GenericPrediction represents prediction of model of unknown type
type GenericPrediction struct {
	Type        string         `json:"type"`
	Prediction  any            `json:"prediction"`
	Confidence  float64        `json:"confidence"`
	Metrics     map[string]any `json:"metrics"`
	RawResponse any            `json:"rawResponse"`
}

// PredictionType implements Prediction interface
func (p GenericPrediction) PredictionType() string { return p.Type }

// ErrorPrediction represents failed prediction
type ErrorPrediction struct {
	Type    string `json:"type"`
	Error   bool   `json:"error"`
	Message string `json:"message"`
	Details string `json:"details"`
}

// PredictionType implements Prediction interface
func (p ErrorPrediction) PredictionType() string { return p.Type }

// NewErrorPrediction wraps given error into displayable prediction
func NewErrorPrediction(err error) ErrorPrediction {
	msg := "Failed to get prediction from API"
	details := msg
	if err != nil {
		details = err.Error()
		msg = details
		var serr *HTTPStatusError
		if errors.As(err, &serr) {
			msg = fmt.Sprintf("API error: %d %s", serr.StatusCode, serr.StatusText)
		}
	}
	return ErrorPrediction{Type: "error", Error: true, Message: msg, Details: details}
}

// fieldAccessor extracts single field from JSON object, it returns false
// when field is absent or null
type fieldAccessor func(rec map[string]any) (any, bool)

// jsonKey accessor looks up top level field
func jsonKey(name string) fieldAccessor {
	return jsonPath(name)
}

// jsonPath accessor looks up nested field, e.g. jsonPath("model_metrics", "r2")
func jsonPath(names ...string) fieldAccessor {
	return func(rec map[string]any) (any, bool) {
		var val any = rec
		for _, name := range names {
			obj, ok := val.(map[string]any)
			if !ok {
				return nil, false
			}
			val, ok = obj[name]
			if !ok || val == nil {
				return nil, false
			}
		}
		return val, true
	}
}

// firstOf tries given accessors in order and returns first present value
func firstOf(rec map[string]any, accessors []fieldAccessor) (any, bool) {
	for _, acc := range accessors {
		if val, ok := acc(rec); ok {
			return val, true
		}
	}
	return nil, false
}

// ordered lists of response fields checked for every logical field
var (
	regressionValueFields      = []fieldAccessor{jsonKey("predicted_sales"), jsonKey("prediction"), jsonKey("value")}
	regressionConfidenceFields = []fieldAccessor{jsonKey("confidence"), jsonPath("model_metrics", "r2")}
	labelFields                = []fieldAccessor{jsonKey("prediction"), jsonKey("predicted_class")}
	confidenceFields           = []fieldAccessor{jsonKey("confidence")}
	metricsFields              = []fieldAccessor{jsonKey("model_metrics")}
	classProbabilityFields     = []fieldAccessor{jsonKey("probabilities")}
	imageProbabilityFields     = []fieldAccessor{jsonKey("probabilities"), jsonKey("class_probabilities")}
	genericValueFields         = []fieldAccessor{jsonKey("prediction"), jsonKey("result")}
	regressionMetricNames      = []string{"r2", "mse", "rmse", "mae"}
)

// Normalizer maps raw ML endpoint responses into predictions
type Normalizer struct {
	DefaultConfidence float64 // confidence used when response has none
}

// NewNormalizer creates new Normalizer with given default confidence
func NewNormalizer(confidence float64) *Normalizer {
	if confidence <= 0 || confidence > 1 {
		confidence = DefaultConfidence
	}
	return &Normalizer{DefaultConfidence: confidence}
}

// Normalize maps raw response into prediction of given model type, fallback
// metrics are used for statistics absent in the response
func (n *Normalizer) Normalize(raw any, mtype ModelType, fallback map[string]any) Prediction {
	rec, ok := raw.(map[string]any)
	if !ok {
		rec = map[string]any{}
	}
	switch mtype {
	case Regression:
		return n.regression(raw, rec, fallback)
	case Classification:
		return n.classification(raw, rec, fallback)
	case ImageClassification:
		return n.imageClassification(raw, rec, fallback)
	}
	return n.generic(raw, rec, fallback)
}

// NormalizeResult maps outcome of ML endpoint call into prediction, failed
// calls are represented by ErrorPrediction
func (n *Normalizer) NormalizeResult(res CallResult, mtype ModelType, fallback map[string]any) Prediction {
	if res.Failure != nil {
		err := res.Failure.Err
		if err == nil {
			err = errors.New(res.Failure.Message)
		}
		return NewErrorPrediction(err)
	}
	if res.Success == nil {
		return NewErrorPrediction(errors.New("empty API response"))
	}
	return n.Normalize(res.Success.Data, mtype, fallback)
}

// helper function to resolve confidence, it falls back to default one
func (n *Normalizer) confidence(rec map[string]any, accessors []fieldAccessor) float64 {
	if val, ok := firstOf(rec, accessors); ok {
		if f, ok := toFloat(val); ok {
			return clamp(f)
		}
	}
	return n.defaultConfidence()
}

func (n *Normalizer) defaultConfidence() float64 {
	if n == nil || n.DefaultConfidence <= 0 {
		return DefaultConfidence
	}
	return n.DefaultConfidence
}

func (n *Normalizer) regression(raw any, rec, fallback map[string]any) RegressionPrediction {
	pred := RegressionPrediction{
		Type:        string(Regression),
		Confidence:  n.confidence(rec, regressionConfidenceFields),
		RawResponse: raw,
	}
	if val, ok := firstOf(rec, regressionValueFields); ok {
		if f, ok := toFloat(val); ok {
			pred.PredictedValue = f
		} else {
			pred.PredictedValue = fmt.Sprintf("%v", val)
		}
	}

	metrics, _ := jsonPath("model_metrics")(rec)
	mrec, _ := metrics.(map[string]any)
	values := make(map[string]*float64)
	for _, name := range regressionMetricNames {
		accessors := []fieldAccessor{jsonPath("model_metrics", name), fallbackField(fallback, name)}
		if val, ok := firstOf(rec, accessors); ok {
			if f, ok := toFloat(val); ok {
				values[name] = &f
			}
		}
	}
	pred.Metrics = RegressionMetrics{
		R2:   values["r2"],
		MSE:  values["mse"],
		RMSE: values["rmse"],
		MAE:  values["mae"],
	}
	if val, ok := mrec["coefficients"].([]any); ok {
		for _, v := range val {
			if f, ok := toFloat(v); ok {
				pred.Metrics.Coefficients = append(pred.Metrics.Coefficients, f)
			}
		}
	}
	if f, ok := toFloat(mrec["intercept"]); ok {
		pred.Metrics.Intercept = &f
	}
	return pred
}

func (n *Normalizer) classification(raw any, rec, fallback map[string]any) ClassificationPrediction {
	pred := ClassificationPrediction{
		Type:        string(Classification),
		Metrics:     metricsOf(rec, fallback),
		RawResponse: raw,
	}
	label, hasLabel := firstOf(rec, labelFields)
	if val, ok := firstOf(rec, classProbabilityFields); ok {
		if probs := toProbabilities(val); len(probs) > 0 {
			pred.Probabilities = probs
			pred.Confidence = maxProbability(probs)
			pred.PredictedLabel = topLabel(probs)
			if hasLabel {
				pred.PredictedLabel = fmt.Sprintf("%v", label)
			}
			return pred
		}
	}
	pred.PredictedLabel = "positive"
	if hasLabel {
		pred.PredictedLabel = fmt.Sprintf("%v", label)
	}
	pred.Confidence = n.confidence(rec, confidenceFields)
	pred.Probabilities = []LabelProbability{{Label: pred.PredictedLabel, Probability: pred.Confidence}}
	return pred
}

func (n *Normalizer) imageClassification(raw any, rec, fallback map[string]any) ClassificationPrediction {
	pred := ClassificationPrediction{
		Type:          string(ImageClassification),
		Metrics:       metricsOf(rec, fallback),
		RawResponse:   raw,
		Probabilities: []LabelProbability{},
	}
	if val, ok := firstOf(rec, imageProbabilityFields); ok {
		if probs := toProbabilities(val); probs != nil {
			pred.Probabilities = probs
		}
	}
	if label, ok := firstOf(rec, labelFields); ok {
		pred.PredictedLabel = fmt.Sprintf("%v", label)
	} else if len(pred.Probabilities) > 0 {
		pred.PredictedLabel = topLabel(pred.Probabilities)
	}
	switch {
	case hasField(rec, confidenceFields):
		pred.Confidence = n.confidence(rec, confidenceFields)
	case len(pred.Probabilities) > 0:
		pred.Confidence = maxProbability(pred.Probabilities)
	default:
		pred.Confidence = n.defaultConfidence()
	}
	return pred
}

func (n *Normalizer) generic(raw any, rec, fallback map[string]any) GenericPrediction {
	pred := GenericPrediction{
		Type:        "generic",
		Prediction:  "Unknown",
		Confidence:  n.confidence(rec, confidenceFields),
		Metrics:     metricsOf(rec, fallback),
		RawResponse: raw,
	}
	if val, ok := firstOf(rec, genericValueFields); ok {
		pred.Prediction = val
	}
	return pred
}

// helper function to build accessor over fallback metrics
func fallbackField(fallback map[string]any, name string) fieldAccessor {
	return func(map[string]any) (any, bool) {
		return jsonPath(name)(fallback)
	}
}

// helper function to check if any of accessors yields value
func hasField(rec map[string]any, accessors []fieldAccessor) bool {
	val, ok := firstOf(rec, accessors)
	if !ok {
		return false
	}
	_, ok = toFloat(val)
	return ok
}

// helper function to resolve model metrics
func metricsOf(rec, fallback map[string]any) map[string]any {
	if val, ok := firstOf(rec, metricsFields); ok {
		if m, ok := val.(map[string]any); ok {
			return m
		}
	}
	if fallback == nil {
		return map[string]any{}
	}
	return fallback
}

// helper function to convert probabilities given either as label to
// probability mapping or as list of {label, probability} records.
// Mapping entries are ordered by decreasing probability.
func toProbabilities(val any) []LabelProbability {
	switch v := val.(type) {
	case map[string]any:
		out := make([]LabelProbability, 0, len(v))
		for label, p := range v {
			if f, ok := toFloat(p); ok {
				out = append(out, LabelProbability{Label: label, Probability: clamp(f)})
			}
		}
		sort.SliceStable(out, func(i, j int) bool {
			if out[i].Probability == out[j].Probability {
				return out[i].Label < out[j].Label
			}
			return out[i].Probability > out[j].Probability
		})
		return out
	case []any:
		out := make([]LabelProbability, 0, len(v))
		for _, item := range v {
			obj, ok := item.(map[string]any)
			if !ok {
				continue
			}
			label, ok := firstOf(obj, []fieldAccessor{jsonKey("label"), jsonKey("class"), jsonKey("name")})
			if !ok {
				continue
			}
			prob, ok := firstOf(obj, []fieldAccessor{jsonKey("probability"), jsonKey("score"), jsonKey("confidence")})
			if !ok {
				continue
			}
			if f, ok := toFloat(prob); ok {
				out = append(out, LabelProbability{Label: fmt.Sprintf("%v", label), Probability: clamp(f)})
			}
		}
		return out
	}
	return nil
}

func maxProbability(probs []LabelProbability) float64 {
	var best float64
	for _, p := range probs {
		if p.Probability > best {
			best = p.Probability
		}
	}
	return best
}

func topLabel(probs []LabelProbability) string {
	var label string
	best := -1.0
	for _, p := range probs {
		if p.Probability > best {
			best = p.Probability
			label = p.Label
		}
	}
	return label
}

// helper function to convert JSON value to float, non-finite values such
// as "NaN" or "Infinity" are rejected since they can not be encoded as JSON
func toFloat(val any) (float64, bool) {
	var f float64
	switch v := val.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case json.Number:
		n, err := v.Float64()
		if err != nil {
			return 0, false
		}
		f = n
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		f = n
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// helper function to keep probabilities within [0,1]
func clamp(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
