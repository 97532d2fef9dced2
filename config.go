package main

// config module
//
// Copyright (c) 2023 - Valentin Kuznetsov <vkuznet@gmail.com>
//

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// Configuration stores server configuration parameters
type Configuration struct {
	// web server parts
	Base    string `json:"base" yaml:"base"`         // base URL
	LogFile string `json:"log_file" yaml:"log_file"` // server log file
	Port    int    `json:"port" yaml:"port"`         // server port number
	Verbose int    `json:"verbose" yaml:"verbose"`   // verbose output

	// server parts
	RootCAs       string   `json:"rootCAs" yaml:"rootCAs"`           // server Root CAs path
	ServerCrt     string   `json:"server_cert" yaml:"server_cert"`   // server certificate
	ServerKey     string   `json:"server_key" yaml:"server_key"`     // server certificate
	DomainNames   []string `json:"domain_names" yaml:"domain_names"` // LetsEncrypt domain names
	CertCache     string   `json:"cert_cache" yaml:"cert_cache"`     // LetsEncrypt certificates cache directory
	LimiterPeriod string   `json:"rate" yaml:"rate"`                 // limiter rate value

	// ML endpoint client parts
	DefaultEndpoint   string  `json:"default_endpoint" yaml:"default_endpoint"`     // default ML endpoint
	TimeoutMillis     int     `json:"timeout" yaml:"timeout"`                       // ML endpoint call timeout in milliseconds
	DefaultConfidence float64 `json:"default_confidence" yaml:"default_confidence"` // confidence used when response has none

	// storage parts
	Store      string `json:"store" yaml:"store"`             // storage backend: file, sqlite or mongo
	StorageDir string `json:"storage_dir" yaml:"storage_dir"` // storage directory for file store
	SQLiteFile string `json:"sqlite_file" yaml:"sqlite_file"` // sqlite database file
	DBURI      string `json:"db_uri" yaml:"db_uri"`           // MongoDB URI
	DBName     string `json:"db_name" yaml:"db_name"`         // MongoDB database name
}

// Config variable represents configuration object
var Config Configuration

// Timeout returns ML endpoint call timeout
func (c *Configuration) Timeout() time.Duration {
	if c.TimeoutMillis <= 0 {
		return defaultTimeout
	}
	return time.Duration(c.TimeoutMillis) * time.Millisecond
}

// String provides configuration representation without credentials
func (c Configuration) String() string {
	dburi := c.DBURI
	if dburi != "" {
		dburi = "***"
	}
	return fmt.Sprintf("Config{port=%d base=%q store=%s storage=%s sqlite=%s db_uri=%s db_name=%s timeout=%v rate=%s verbose=%d}",
		c.Port, c.Base, c.Store, c.StorageDir, c.SQLiteFile, dburi, c.DBName, c.Timeout(), c.LimiterPeriod, c.Verbose)
}

// helper function to parse server configuration file
func parseConfig(configFile string) error {
	data, err := os.ReadFile(filepath.Clean(configFile))
	if err != nil {
		log.Println("Unable to read", err)
		return err
	}
	ext := strings.ToLower(filepath.Ext(configFile))
	if ext == ".yaml" || ext == ".yml" {
		err = yaml.Unmarshal(data, &Config)
	} else {
		err = json.Unmarshal(data, &Config)
	}
	if err != nil {
		log.Println("Unable to parse", err)
		return err
	}
	setDefaults()
	return nil
}

// helper function to assign default configuration values
func setDefaults() {
	if Config.Port == 0 {
		Config.Port = 8181
	}
	if Config.LimiterPeriod == "" {
		Config.LimiterPeriod = "100-S"
	}
	if Config.CertCache == "" {
		Config.CertCache = "certs"
	}
	if Config.TimeoutMillis <= 0 {
		Config.TimeoutMillis = int(defaultTimeout / time.Millisecond)
	}
	if Config.DefaultConfidence <= 0 || Config.DefaultConfidence > 1 {
		Config.DefaultConfidence = DefaultConfidence
	}
	if Config.Store == "" {
		Config.Store = "file"
	}
	if Config.StorageDir == "" {
		Config.StorageDir = "/tmp"
	}
	if Config.SQLiteFile == "" {
		Config.SQLiteFile = filepath.Join(Config.StorageDir, "mlboard.db")
	}
	if Config.DBName == "" {
		Config.DBName = "mlboard"
	}
}
