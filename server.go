package main

// server module
//
// Copyright (c) 2023 - Valentin Kuznetsov <vkuznet@gmail.com>
//

import (
	"crypto/tls"
	"embed"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/uptrace/bunrouter"
)

// content is our static web server content.
//
//go:embed static
var StaticFs embed.FS

// server services
var (
	models     *ModelRegistry
	presets    *PresetRegistry
	apiClient  *APIClient
	normalizer *Normalizer
	inflight   = newInflightGuard()
)

// inflightGuard keeps track of models with prediction in progress
type inflightGuard struct {
	mutex sync.Mutex
	busy  map[string]struct{}
}

func newInflightGuard() *inflightGuard {
	return &inflightGuard{busy: make(map[string]struct{})}
}

// Acquire marks given model as busy, it returns false if model is already busy
func (g *inflightGuard) Acquire(id string) bool {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	if _, ok := g.busy[id]; ok {
		return false
	}
	g.busy[id] = struct{}{}
	return true
}

// Release marks given model as idle
func (g *inflightGuard) Release(id string) {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	delete(g.busy, id)
}

// helper function to initialize server services from configuration
func initServices() error {
	mstore, err := newStore[ModelConfig](ModelsKey)
	if err != nil {
		return err
	}
	pstore, err := newStore[APIPreset](PresetsKey)
	if err != nil {
		return err
	}
	models = NewModelRegistry(mstore)
	presets = NewPresetRegistry(pstore)
	apiClient = NewAPIClient(Config.Timeout())
	normalizer = NewNormalizer(Config.DefaultConfidence)
	return nil
}

// helper function to get base path
func basePath(s string) string {
	if Config.Base != "" {
		if strings.HasPrefix(s, "/") {
			s = strings.Replace(s, "/", "", 1)
		}
		if strings.HasPrefix(Config.Base, "/") {
			return fmt.Sprintf("%s/%s", Config.Base, s)
		}
		return fmt.Sprintf("/%s/%s", Config.Base, s)
	}
	return s
}

// bunrouter implementation of the compatible (with net/http) router handlers
func bunRouter() *bunrouter.CompatRouter {
	router := bunrouter.New(
		bunrouter.Use(bunrouterLoggingMiddleware),
		bunrouter.Use(bunrouterLimitMiddleware),
	).Compat()
	base := Config.Base
	router.GET(base+"/", IndexHandler)

	// model APIs
	router.GET(base+"/models", ModelsHandler)
	router.POST(base+"/models", ModelsHandler)
	router.GET(base+"/model/:id", ModelHandler)
	router.PUT(base+"/model/:id", ModelHandler)
	router.DELETE(base+"/model/:id", ModelHandler)
	router.POST(base+"/model/:id/predict", PredictHandler)

	// preset APIs
	router.GET(base+"/presets", PresetsHandler)
	router.POST(base+"/presets", PresetsHandler)
	router.GET(base+"/preset/:id", PresetHandler)
	router.PUT(base+"/preset/:id", PresetHandler)
	router.DELETE(base+"/preset/:id", PresetHandler)

	// web APIs
	router.GET(base+"/url", URLHandler)
	router.POST(base+"/proxy", ProxyHandler)
	router.GET(base+"/status", StatusHandler)
	router.GET(base+"/docs", DocsHandler)

	// static handlers
	for _, dir := range []string{"css"} {
		filesFS, err := fs.Sub(StaticFs, "static/"+dir)
		if err != nil {
			panic(err)
		}
		m := fmt.Sprintf("%s/%s", Config.Base, dir)
		fileServer := http.FileServer(http.FS(filesFS))
		hdlr := http.StripPrefix(m, fileServer)
		router.Router.GET(m+"/*path", bunrouter.HTTPHandler(hdlr))
	}
	return router
}

// Server implements MLBoard server
func Server() {

	// initialize server middleware
	if err := initLimiter(Config.LimiterPeriod); err != nil {
		log.Fatal(err)
	}

	// initialize registries and ML client
	if err := initServices(); err != nil {
		log.Fatal("unable to initialize services: ", err)
	}

	// setup server router
	router := bunRouter()

	// start HTTPs server
	if len(Config.DomainNames) > 0 {
		server := LetsEncryptServer(Config.CertCache, Config.DomainNames...)
		server.Handler = router
		log.Println("Start HTTPs server with LetsEncrypt", Config.DomainNames)
		log.Fatal(server.ListenAndServeTLS("", ""))
	} else if Config.ServerCrt != "" && Config.ServerKey != "" {
		tlsConfig := &tls.Config{
			RootCAs: RootCAs(Config.RootCAs),
		}
		server := &http.Server{
			Addr:      fmt.Sprintf(":%d", Config.Port),
			TLSConfig: tlsConfig,
			Handler:   router,
		}
		log.Printf("Start HTTPs server with %s and %s on :%d", Config.ServerCrt, Config.ServerKey, Config.Port)
		log.Fatal(server.ListenAndServeTLS(Config.ServerCrt, Config.ServerKey))
	} else {
		log.Printf("Start HTTP server on :%d", Config.Port)
		log.Fatal(http.ListenAndServe(fmt.Sprintf(":%d", Config.Port), router))
	}
}
