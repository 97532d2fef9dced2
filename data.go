package main

// data module holds all data representations used in our package
//
// Copyright (c) 2023 - Valentin Kuznetsov <vkuznet@gmail.com>
//

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ModelType represents type of ML model
type ModelType string

const (
	Regression          ModelType = "regression"
	Classification      ModelType = "classification"
	ImageClassification ModelType = "image_classification"
)

// ModelTypes defines supported ML model types
var ModelTypes = []string{string(Regression), string(Classification), string(ImageClassification)}

// ParseModelType converts given string to ModelType
func ParseModelType(s string) (ModelType, error) {
	mtype := strings.ToLower(strings.TrimSpace(s))
	mtype = strings.ReplaceAll(mtype, "-", "_")
	if !InList(mtype, ModelTypes) {
		return "", fmt.Errorf("ML type %q is not supported, please provide one of %v", s, ModelTypes)
	}
	return ModelType(mtype), nil
}

// ModelInput describes single input field of ML model
type ModelInput struct {
	Name        string `json:"name" bson:"name"`
	Label       string `json:"label" bson:"label"`
	Type        string `json:"type" bson:"type"` // text, number, textarea or file
	Required    bool   `json:"required" bson:"required"`
	Placeholder string `json:"placeholder,omitempty" bson:"placeholder,omitempty"`
	Accept      string `json:"accept,omitempty" bson:"accept,omitempty"`
}

// ModelCapabilities describes ML model input and output formats
type ModelCapabilities struct {
	InputFormat      string   `json:"inputFormat" bson:"inputFormat"`
	OutputFormat     string   `json:"outputFormat" bson:"outputFormat"`
	Metrics          []string `json:"metrics" bson:"metrics"`
	SupportedFormats []string `json:"supportedFormats" bson:"supportedFormats"`
}

// UsageStats represents monthly number of ML model calls
type UsageStats struct {
	Month string `json:"month" bson:"month"`
	Calls int    `json:"calls" bson:"calls"`
}

// ModelConfig represents registered ML model
type ModelConfig struct {
	ID           string            `json:"id" bson:"id"`
	Name         string            `json:"name" bson:"name"`
	Purpose      string            `json:"purpose" bson:"purpose"`
	Type         ModelType         `json:"type" bson:"type"`
	Capabilities ModelCapabilities `json:"capabilities" bson:"capabilities"`
	Endpoint     string            `json:"endpoint" bson:"endpoint"`
	Method       string            `json:"method,omitempty" bson:"method,omitempty"`
	Description  string            `json:"description" bson:"description"`
	Inputs       []ModelInput      `json:"inputs" bson:"inputs"`
	DefaultStats map[string]any    `json:"defaultStats" bson:"defaultStats"` // fallback metrics
	UsageStats   []UsageStats      `json:"usageStats" bson:"usageStats"`
	CreatedAt    string            `json:"createdAt" bson:"createdAt"`
	UpdatedAt    string            `json:"updatedAt" bson:"updatedAt"`
}

// RecordID implements Record interface
func (m ModelConfig) RecordID() string { return m.ID }

// ToJSON provides string representation of ModelConfig
func (m ModelConfig) ToJSON() string {
	data, _ := json.MarshalIndent(m, "", "    ")
	return string(data)
}

// HTTPMethod returns endpoint method of the model, POST by default
func (m ModelConfig) HTTPMethod() string {
	if m.Method == "" {
		return http.MethodPost
	}
	return strings.ToUpper(m.Method)
}

// Validate checks model configuration attributes
func (m ModelConfig) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return errors.New("model name is required")
	}
	if m.Type == "" {
		return fmt.Errorf("ML type is missing, please provide one of %v", ModelTypes)
	}
	if _, err := ParseModelType(string(m.Type)); err != nil {
		return err
	}
	if !IsValidURL(m.Endpoint) {
		return &InvalidURLError{URL: m.Endpoint}
	}
	if err := validateMethod(m.Method); err != nil {
		return err
	}
	return nil
}

// APIPreset represents named endpoint and method pair
type APIPreset struct {
	ID          string `json:"id" bson:"id"`
	Name        string `json:"name" bson:"name"`
	Endpoint    string `json:"endpoint" bson:"endpoint"`
	Method      string `json:"method" bson:"method"`
	Description string `json:"description,omitempty" bson:"description,omitempty"`
	CreatedAt   string `json:"createdAt" bson:"createdAt"`
}

// RecordID implements Record interface
func (p APIPreset) RecordID() string { return p.ID }

// Validate checks preset attributes
func (p APIPreset) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("preset name is required")
	}
	if !IsValidURL(p.Endpoint) {
		return &InvalidURLError{URL: p.Endpoint}
	}
	return validateMethod(p.Method)
}

// helper function to check endpoint HTTP method
func validateMethod(method string) error {
	if method == "" {
		return nil
	}
	m := strings.ToUpper(method)
	if m != http.MethodGet && m != http.MethodPost {
		return fmt.Errorf("unsupported method %q, please use GET or POST", method)
	}
	return nil
}

// helper function to provide record timestamp
func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// Normalize brings model type and method to their canonical form
func (m ModelConfig) Normalize() ModelConfig {
	if mtype, err := ParseModelType(string(m.Type)); err == nil {
		m.Type = mtype
	}
	m.Method = strings.ToUpper(strings.TrimSpace(m.Method))
	m.Endpoint = strings.TrimSpace(m.Endpoint)
	if m.DefaultStats == nil {
		m.DefaultStats = map[string]any{}
	}
	return m
}

// NewModelConfig assigns id and timestamps to given model configuration
func NewModelConfig(m ModelConfig) ModelConfig {
	m = m.Normalize()
	m.ID = fmt.Sprintf("model-%s", uuid.NewString())
	m.CreatedAt = timestamp()
	m.UpdatedAt = m.CreatedAt
	return m
}

// NewPreset assigns id and creation time to given preset
func NewPreset(p APIPreset) APIPreset {
	p.ID = fmt.Sprintf("preset-%s", uuid.NewString())
	p.CreatedAt = timestamp()
	p.Method = strings.ToUpper(p.Method)
	if p.Method == "" {
		p.Method = http.MethodPost
	}
	return p
}

// DefaultPresets provides presets used when none were stored
func DefaultPresets() []APIPreset {
	now := timestamp()
	return []APIPreset{
		{
			ID:          "local-dev",
			Name:        "Local Development",
			Endpoint:    "http://localhost:5000",
			Method:      http.MethodPost,
			Description: "Local Flask development server",
			CreatedAt:   now,
		},
		{
			ID:          "ngrok-tunnel",
			Name:        "Ngrok Tunnel",
			Endpoint:    "https://your-tunnel.ngrok-free.app",
			Method:      http.MethodPost,
			Description: "Ngrok tunnel for local development",
			CreatedAt:   now,
		},
		{
			ID:          "production-api",
			Name:        "Production API",
			Endpoint:    "https://api.yourcompany.com",
			Method:      http.MethodPost,
			Description: "Production ML API endpoint",
			CreatedAt:   now,
		},
	}
}

// helper function to provide monthly usage statistics of default models
func defaultUsage(calls ...int) []UsageStats {
	months := []string{"Jan", "Feb", "Mar", "Apr", "May", "Jun"}
	var out []UsageStats
	for i, c := range calls {
		out = append(out, UsageStats{Month: months[i%len(months)], Calls: c})
	}
	return out
}

// DefaultModels provides models used when none were stored
func DefaultModels() []ModelConfig {
	now := timestamp()
	return []ModelConfig{
		{
			ID:      "sales-prediction",
			Name:    "Sales Prediction API",
			Purpose: "Predict sales based on temperature and promotions",
			Type:    Regression,
			Capabilities: ModelCapabilities{
				InputFormat:      "numeric",
				OutputFormat:     "numeric prediction",
				Metrics:          []string{"R²", "MSE", "RMSE", "MAE"},
				SupportedFormats: []string{"JSON"},
			},
			Endpoint:    "https://api.example.com/predict/sales",
			Method:      http.MethodPost,
			Description: "Linear Regression model trained on historical sales data, returns prediction and model performance metrics.",
			Inputs: []ModelInput{
				{Name: "temperature", Label: "Temperature (°C)", Type: "number", Required: true},
				{Name: "promotions", Label: "Promotions", Type: "number", Required: true},
			},
			DefaultStats: map[string]any{"r2": 0.85, "mse": 230.56, "rmse": 15.19, "mae": 10.23},
			UsageStats:   defaultUsage(100, 200, 150, 180, 170, 160),
			CreatedAt:    now,
			UpdatedAt:    now,
		},
		{
			ID:      "sentiment-analysis",
			Name:    "Sentiment Analysis API",
			Purpose: "Classify sentiment of a text",
			Type:    Classification,
			Capabilities: ModelCapabilities{
				InputFormat:      "text",
				OutputFormat:     "class label with probabilities",
				Metrics:          []string{"Accuracy", "Precision", "Recall", "F1"},
				SupportedFormats: []string{"JSON"},
			},
			Endpoint:    "https://api.example.com/predict/sentiment",
			Method:      http.MethodPost,
			Description: "Text classification model returning positive, negative or neutral sentiment.",
			Inputs: []ModelInput{
				{Name: "text", Label: "Text", Type: "textarea", Required: true, Placeholder: "Enter text to analyze"},
			},
			DefaultStats: map[string]any{"accuracy": 0.92, "precision": 0.91, "recall": 0.9, "f1": 0.905},
			UsageStats:   defaultUsage(80, 120, 140, 110, 130, 150),
			CreatedAt:    now,
			UpdatedAt:    now,
		},
		{
			ID:      "image-classifier",
			Name:    "Image Classification API",
			Purpose: "Classify objects in images",
			Type:    ImageClassification,
			Capabilities: ModelCapabilities{
				InputFormat:      "image",
				OutputFormat:     "class label with probabilities",
				Metrics:          []string{"Accuracy", "Top-5 Accuracy"},
				SupportedFormats: []string{"JPEG", "PNG"},
			},
			Endpoint:    "https://api.example.com/predict/image",
			Method:      http.MethodPost,
			Description: "Convolutional neural network classifying images into known categories.",
			Inputs: []ModelInput{
				{Name: "image", Label: "Image", Type: "file", Required: true, Accept: "image/*"},
			},
			DefaultStats: map[string]any{"accuracy": 0.88, "top5_accuracy": 0.97},
			UsageStats:   defaultUsage(50, 70, 90, 60, 80, 100),
			CreatedAt:    now,
			UpdatedAt:    now,
		},
	}
}
