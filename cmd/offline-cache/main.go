package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"regexp"

	offlinecache "github.com/always-cache/offline-cache"
	"github.com/always-cache/offline-cache/cache"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// envDefaults can be set via the environment; flags override them.
type envDefaults struct {
	Port         int    `env:"PORT" envDefault:"8080"`
	DBFilename   string `env:"CACHE_DB" envDefault:"cache.db"`
	Origin       string `env:"ORIGIN"`
	DataEndpoint string `env:"DATA_ENDPOINT"`
	ConfigFile   string `env:"CONFIG_FILE"`
}

var (
	portFlag           int
	originFlag         string
	dataEndpointFlag   string
	dbFilenameFlag     string
	configFileFlag     string
	verbosityTraceFlag bool

	// this is set by goreleaser
	version string
)

func init() {
	defaults := envDefaults{}
	if err := env.Parse(&defaults); err != nil {
		panic(err)
	}

	flag.StringVar(&originFlag, "origin", defaults.Origin, "Origin URL to serve offline-resiliently")
	flag.IntVar(&portFlag, "port", defaults.Port, "Port to listen on")
	flag.StringVar(&dataEndpointFlag, "data-endpoint", defaults.DataEndpoint,
		"Pattern of the POST data endpoint (defaults to <origin>/graphql)")
	flag.StringVar(&dbFilenameFlag, "db", defaults.DBFilename, "Cache DB file name (use 'memory' for in-memory db)")
	flag.StringVar(&configFileFlag, "config", defaults.ConfigFile, "Optional YAML file with rules and precache manifest")
	flag.BoolVar(&verbosityTraceFlag, "vv", false, "Verbosity: trace logging")

	if version == "" {
		version = "DEV"
	}
}

func main() {
	flag.Parse()

	logLevel := zerolog.DebugLevel
	if verbosityTraceFlag {
		logLevel = zerolog.TraceLevel
	}
	log.Logger = log.Level(logLevel).Output(zerolog.ConsoleWriter{Out: os.Stdout}).
		With().Str("version", version).Logger()

	if originFlag == "" {
		log.Fatal().Msg("Please specify origin")
	}
	originURL, err := url.Parse(originFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not parse origin url")
	}

	dbFilename := dbFilenameFlag
	if dbFilename == "memory" {
		dbFilename = "file::memory:?cache=shared"
	}

	config := offlinecache.Config{
		Cache:  cache.NewSQLiteCache(dbFilename),
		Logger: &log.Logger,
	}

	if configFileFlag != "" {
		configFile, err := getConfig(configFileFlag)
		if err != nil {
			log.Fatal().Err(err).Msg("Could not read config file")
		}
		rules, err := configFile.rules()
		if err != nil {
			log.Fatal().Err(err).Msg("Could not parse rules")
		}
		config.Rules = rules
		config.Precache = configFile.Precache
		config.FallbackURL = configFile.Fallback
	} else {
		dataEndpoint := dataEndpointFlag
		if dataEndpoint == "" {
			dataEndpoint = regexp.QuoteMeta(originURL.String()) + "/graphql(/)?"
		}
		pattern, err := regexp.Compile(dataEndpoint)
		if err != nil {
			log.Fatal().Err(err).Msg("Could not parse data endpoint pattern")
		}
		config.Rules = offlinecache.DefaultRules(pattern)
	}

	controller := offlinecache.New(config)
	if err := controller.Activate(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Could not activate precache")
	}

	router := chi.NewRouter()
	router.Handle("/*", proxyHandler(controller, originURL))

	log.Info().Msgf("Serving port %v offline-resiliently for %s", portFlag, originURL)
	if err := http.ListenAndServe(fmt.Sprintf(":%d", portFlag), router); err != nil {
		log.Fatal().Err(err).Msg("Server stopped")
	}
}

// proxyHandler rewrites every incoming request to the origin and lets the
// controller answer it, from the store or live.
func proxyHandler(controller *offlinecache.Controller, origin *url.URL) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := http.NewRequestWithContext(
			r.Context(), r.Method, origin.String()+r.URL.RequestURI(), r.Body)
		if err != nil {
			http.Error(w, "Bad request", http.StatusBadRequest)
			return
		}
		copyHeader(req.Header, r.Header)

		res, err := controller.Handle(req)
		if err != nil {
			http.Error(w, "Could not answer request", http.StatusBadGateway)
			return
		}
		defer res.Body.Close()
		copyHeader(w.Header(), res.Header)
		w.WriteHeader(res.StatusCode)
		if _, err := io.Copy(w, res.Body); err != nil {
			log.Error().Err(err).Msg("Error writing to client")
		}
	}
}

func copyHeader(dst, src http.Header) {
	for k, vv := range src {
		// do not forward proxy headers, some servers do not like them
		if k != "X-Forwarded-For" && k != "X-Forwarded-Proto" && k != "X-Forwarded-Host" {
			for _, v := range vv {
				dst.Add(k, v)
			}
		}
	}
}
