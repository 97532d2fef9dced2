package main

// utils module
//
// Copyright (c) 2023 - Valentin Kuznetsov <vkuznet@gmail.com>
//

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"

	"golang.org/x/crypto/acme/autocert"
)

// RootCAs loads PEM certificates found in given directory into cert pool.
// Sub-directories and files which are not valid PEM are skipped.
func RootCAs(dir string) *x509.CertPool {
	pool := x509.NewCertPool()
	if dir == "" {
		return pool
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Printf("unable to read root CAs directory %s: %v", dir, err)
		return pool
	}
	var loaded int
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		fname := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(filepath.Clean(fname))
		if err != nil {
			log.Printf("skip root CA %s: %v", fname, err)
			continue
		}
		if !pool.AppendCertsFromPEM(data) {
			if Config.Verbose > 1 {
				log.Printf("skip root CA %s: no PEM certificates", fname)
			}
			continue
		}
		loaded++
	}
	log.Printf("loaded %d root CA files from %s", loaded, dir)
	return pool
}

// LetsEncryptServer returns HTTPs server which obtains certificates for
// given hosts from LetsEncrypt and keeps them in cache directory. The
// ACME http-01 challenge is served on :http in background.
func LetsEncryptServer(cacheDir string, hosts ...string) *http.Server {
	manager := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(hosts...),
		Cache:      autocert.DirCache(cacheDir),
	}
	go func() {
		if err := http.ListenAndServe(":http", manager.HTTPHandler(nil)); err != nil {
			log.Println("ACME challenge server failed", err)
		}
	}()
	return &http.Server{
		Addr: ":https",
		TLSConfig: &tls.Config{
			RootCAs:        RootCAs(Config.RootCAs),
			GetCertificate: manager.GetCertificate,
			MinVersion:     tls.VersionTLS12,
		},
	}
}

// LogName returns rotatelogs pattern of Config.LogFile, the pattern carries
// k8s pod name or hostname to keep logs of server replicas apart
func LogName() string {
	host := os.Getenv("MY_POD_NAME")
	if host == "" {
		name, err := os.Hostname()
		if err != nil {
			log.Println("unable to get hostname", err)
		}
		host = name
	}
	if host == "" {
		return Config.LogFile + "_%Y%m%d"
	}
	return fmt.Sprintf("%s_%s_%%Y%%m%%d", Config.LogFile, host)
}

// ListEntry identifies types used by list's generics function
type ListEntry interface {
	int | int64 | float64 | string
}

// InList checks item in a list
func InList[T ListEntry](a T, list []T) bool {
	for _, b := range list {
		if b == a {
			return true
		}
	}
	return false
}
