package main

import (
	"encoding/json"
	"testing"
)

// helper function to decode JSON response in tests
func decodeResponse(t *testing.T, data string) any {
	var raw any
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		t.Fatalf("unable to decode %s: %v", data, err)
	}
	return raw
}

// TestNormalizeRegression
func TestNormalizeRegression(t *testing.T) {
	raw := decodeResponse(t, `{"predicted_sales": 123.4, "model_metrics": {"r2": 0.9, "rmse": 1.2, "mae": 0.8}}`)
	fallback := map[string]any{"r2": 0.5, "mse": 230.56}
	pred := NewNormalizer(0).Normalize(raw, Regression, fallback)
	rec, ok := pred.(RegressionPrediction)
	if !ok {
		t.Fatalf("unexpected prediction %T", pred)
	}
	if rec.Type != "regression" || rec.PredictedValue != 123.4 || rec.Confidence != 0.9 {
		t.Errorf("unexpected regression prediction %+v", rec)
	}
	if rec.Metrics.RMSE == nil || *rec.Metrics.RMSE != 1.2 {
		t.Errorf("unexpected rmse %v", rec.Metrics.RMSE)
	}
	if rec.Metrics.R2 == nil || *rec.Metrics.R2 != 0.9 {
		t.Errorf("response r2 should take precedence, got %v", rec.Metrics.R2)
	}
	if rec.Metrics.MSE == nil || *rec.Metrics.MSE != 230.56 {
		t.Errorf("mse should come from fallback metrics, got %v", rec.Metrics.MSE)
	}
	if rec.RawResponse == nil {
		t.Error("raw response should be kept")
	}
}

// TestNormalizeRegressionDefaults
func TestNormalizeRegressionDefaults(t *testing.T) {
	raw := decodeResponse(t, `{"prediction": "high", "model_metrics": {"coefficients": [1.5, -2], "intercept": 0.3}}`)
	rec := NewNormalizer(0).Normalize(raw, Regression, nil).(RegressionPrediction)
	if rec.PredictedValue != "high" || rec.Confidence != DefaultConfidence {
		t.Errorf("unexpected regression prediction %+v", rec)
	}
	if len(rec.Metrics.Coefficients) != 2 || rec.Metrics.Intercept == nil || *rec.Metrics.Intercept != 0.3 {
		t.Errorf("unexpected regression metrics %+v", rec.Metrics)
	}

	raw = decodeResponse(t, `{"value": 0, "confidence": 1.7}`)
	rec = NewNormalizer(0.6).Normalize(raw, Regression, nil).(RegressionPrediction)
	if rec.PredictedValue != 0.0 || rec.Confidence != 1 {
		t.Errorf("zero value should be kept and confidence clamped, got %+v", rec)
	}

	rec = NewNormalizer(0.6).Normalize(decodeResponse(t, `{}`), Regression, nil).(RegressionPrediction)
	if rec.PredictedValue != nil || rec.Confidence != 0.6 {
		t.Errorf("unexpected empty regression prediction %+v", rec)
	}
}

// TestNormalizeClassification
func TestNormalizeClassification(t *testing.T) {
	raw := decodeResponse(t, `{"prediction": "positive", "probabilities": {"negative": 0.1, "positive": 0.7, "neutral": 0.2}}`)
	rec := NewNormalizer(0).Normalize(raw, Classification, nil).(ClassificationPrediction)
	if rec.Type != "classification" || rec.PredictedLabel != "positive" || rec.Confidence != 0.7 {
		t.Errorf("unexpected classification prediction %+v", rec)
	}
	if len(rec.Probabilities) != 3 || rec.Probabilities[0].Label != "positive" || rec.Probabilities[2].Label != "negative" {
		t.Errorf("probabilities should be ordered by decreasing probability, got %+v", rec.Probabilities)
	}

	raw = decodeResponse(t, `{"probabilities": [{"label": "neg", "probability": 0.2}, {"label": "pos", "probability": 0.8}]}`)
	rec = NewNormalizer(0).Normalize(raw, Classification, nil).(ClassificationPrediction)
	if rec.PredictedLabel != "pos" || rec.Confidence != 0.8 || rec.Probabilities[0].Label != "neg" {
		t.Errorf("unexpected classification prediction %+v", rec)
	}
}

// TestNormalizeClassificationFallback
func TestNormalizeClassificationFallback(t *testing.T) {
	stats := map[string]any{"accuracy": 0.92}
	raw := decodeResponse(t, `{"predicted_class": "spam", "confidence": 0.95}`)
	rec := NewNormalizer(0).Normalize(raw, Classification, stats).(ClassificationPrediction)
	if rec.PredictedLabel != "spam" || rec.Confidence != 0.95 || len(rec.Probabilities) != 1 {
		t.Errorf("unexpected classification prediction %+v", rec)
	}
	if rec.Metrics["accuracy"] != 0.92 {
		t.Errorf("metrics should fall back to model statistics, got %+v", rec.Metrics)
	}

	rec = NewNormalizer(0).Normalize(decodeResponse(t, `{}`), Classification, nil).(ClassificationPrediction)
	if rec.PredictedLabel != "positive" || rec.Confidence != DefaultConfidence {
		t.Errorf("unexpected synthesized prediction %+v", rec)
	}
	if rec.Probabilities[0].Probability != DefaultConfidence {
		t.Errorf("unexpected synthesized probabilities %+v", rec.Probabilities)
	}
}

// TestNormalizeImageClassification
func TestNormalizeImageClassification(t *testing.T) {
	raw := decodeResponse(t, `{"class_probabilities": {"cat": 0.6, "dog": 0.4}}`)
	rec := NewNormalizer(0).Normalize(raw, ImageClassification, nil).(ClassificationPrediction)
	if rec.Type != "image_classification" || rec.PredictedLabel != "cat" || rec.Confidence != 0.6 {
		t.Errorf("unexpected image prediction %+v", rec)
	}

	raw = decodeResponse(t, `{"prediction": "dog", "confidence": 0.3, "probabilities": {"cat": 0.6, "dog": 0.4}}`)
	rec = NewNormalizer(0).Normalize(raw, ImageClassification, nil).(ClassificationPrediction)
	if rec.PredictedLabel != "dog" || rec.Confidence != 0.3 {
		t.Errorf("explicit label and confidence should be kept, got %+v", rec)
	}

	rec = NewNormalizer(0).Normalize(decodeResponse(t, `{}`), ImageClassification, nil).(ClassificationPrediction)
	if rec.Confidence != DefaultConfidence || len(rec.Probabilities) != 0 || rec.Probabilities == nil {
		t.Errorf("unexpected empty image prediction %+v", rec)
	}
}

// TestNormalizeGeneric
func TestNormalizeGeneric(t *testing.T) {
	rec := NewNormalizer(0).Normalize(decodeResponse(t, `{"result": 5}`), "", nil).(GenericPrediction)
	if rec.Type != "generic" || rec.Prediction != 5.0 || rec.Confidence != DefaultConfidence {
		t.Errorf("unexpected generic prediction %+v", rec)
	}
	rec = NewNormalizer(0).Normalize(decodeResponse(t, `[1, 2]`), "clustering", nil).(GenericPrediction)
	if rec.Prediction != "Unknown" {
		t.Errorf("unexpected generic prediction %+v", rec)
	}
}

// TestNormalizeResult
func TestNormalizeResult(t *testing.T) {
	serr := &HTTPStatusError{StatusCode: 500, StatusText: "Internal Server Error", Body: "server error"}
	res := callFailure("http://localhost:5000/predict", serr)
	pred := NewNormalizer(0).NormalizeResult(res, Regression, nil)
	rec, ok := pred.(ErrorPrediction)
	if !ok {
		t.Fatalf("unexpected prediction %T", pred)
	}
	if !rec.Error || rec.PredictionType() != "error" || rec.Message != "API error: 500 Internal Server Error" {
		t.Errorf("unexpected error prediction %+v", rec)
	}
	if rec.Details != "API error: 500 Internal Server Error - server error" {
		t.Errorf("unexpected error details %s", rec.Details)
	}

	res = CallResult{Success: &CallSuccess{Data: decodeResponse(t, `{"prediction": 1.5}`), Status: 200}}
	pred = NewNormalizer(0).NormalizeResult(res, Regression, nil)
	if pred.PredictionType() != "regression" {
		t.Errorf("unexpected prediction %+v", pred)
	}

	pred = NewNormalizer(0).NormalizeResult(CallResult{}, Regression, nil)
	if pred.PredictionType() != "error" {
		t.Errorf("empty call result should give error prediction, got %+v", pred)
	}
}

// TestNormalizeNonFinite
func TestNormalizeNonFinite(t *testing.T) {
	norm := NewNormalizer(0)
	cases := []struct {
		mtype ModelType
		data  string
	}{
		{Regression, `{"predicted_sales": "NaN"}`},
		{Regression, `{"predicted_sales": "Infinity", "confidence": "NaN"}`},
		{Regression, `{"value": 1, "model_metrics": {"r2": "-Inf", "rmse": "NaN", "intercept": "NaN"}}`},
		{Classification, `{"probabilities": {"cat": "NaN"}}`},
		{Classification, `{"prediction": "cat", "confidence": "Inf"}`},
		{ImageClassification, `{"class_probabilities": {"cat": "NaN", "dog": 0.4}, "confidence": "NaN"}`},
		{"", `{"result": 1, "confidence": "NaN"}`},
	}
	for _, c := range cases {
		pred := norm.Normalize(decodeResponse(t, c.data), c.mtype, nil)
		if _, err := json.Marshal(pred); err != nil {
			t.Errorf("prediction of %s should be encodable: %v", c.data, err)
		}
	}

	rec := norm.Normalize(decodeResponse(t, `{"predicted_sales": "NaN"}`), Regression, nil).(RegressionPrediction)
	if rec.PredictedValue != "NaN" || rec.Confidence != DefaultConfidence {
		t.Errorf("non-finite value should be kept as text, got %+v", rec)
	}
	crec := norm.Normalize(decodeResponse(t, `{"probabilities": {"cat": "NaN"}}`), Classification, nil).(ClassificationPrediction)
	if crec.Confidence != DefaultConfidence || len(crec.Probabilities) != 1 || crec.PredictedLabel != "positive" {
		t.Errorf("non-finite probabilities should be skipped, got %+v", crec)
	}
	irec := norm.Normalize(decodeResponse(t, `{"class_probabilities": {"cat": "NaN", "dog": 0.4}}`), ImageClassification, nil).(ClassificationPrediction)
	if irec.PredictedLabel != "dog" || irec.Confidence != 0.4 || len(irec.Probabilities) != 1 {
		t.Errorf("unexpected image prediction %+v", irec)
	}
	for _, v := range []any{"NaN", "Inf", "-Infinity", "abc", nil} {
		if _, ok := toFloat(v); ok {
			t.Errorf("value %v should not be converted to float", v)
		}
	}
}
