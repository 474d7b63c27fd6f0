package main

import (
	"net/http"
	"strings"

	"github.com/joeshaw/envdecode"
	"github.com/sirupsen/logrus"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/mediora-tech/mediora/core"
	"github.com/mediora-tech/mediora/core/access"
	"github.com/mediora-tech/mediora/core/csql"
	"github.com/mediora-tech/mediora/core/dispatch"
	"github.com/mediora-tech/mediora/core/logger"
	"github.com/mediora-tech/mediora/core/notify"
	"github.com/mediora-tech/mediora/services/mediora/catalog"
)

// Service holds the configuration for this service
//
// use POSTGRES="host=localhost port=5432 user=postgres password=docker dbname=postgres sslmode=disable"
type Service struct {
	Postgres         string `env:"POSTGRES,required" description:"the connection string for the Postgres DB"`
	PostgresPassword string `env:"POSTGRES_PASSWORD,default=" description:"password to the Postgres DB"`
	Redis            string `env:"REDIS,default=localhost:6379" description:"address of the Redis session store"`
	RedisPassword    string `env:"REDIS_PASSWORD,default=" description:"password to the Redis session store"`
	KafkaBrokers     string `env:"KAFKA_BROKERS,default=" description:"comma separated Kafka brokers, empty disables notifications"`
	KafkaTopic       string `env:"KAFKA_TOPIC,default=mediora.changes" description:"topic for change notifications"`
	SessionSecret    string `env:"SESSION_SECRET,required" description:"secret for verifying signed session tokens"`
	CORSOrigins      string `env:"CORS_ORIGINS,default=*" description:"comma separated origins allowed for cross-origin requests"`
	Addr             string `env:"ADDR,default=:3000" description:"listen address"`
	LogLevel         string `env:"LOG_LEVEL,default=info" description:"log level"`
}

func main() {
	service := &Service{}
	if err := envdecode.Decode(service); err != nil {
		panic(err)
	}

	level, err := logrus.ParseLevel(service.LogLevel)
	if err != nil {
		panic(err)
	}
	logger.InitLogger(level)
	log := logger.Default()

	db := csql.OpenWithSchema(service.Postgres, service.PostgresPassword, "mediora")
	defer db.Close()

	registry := catalog.NewRegistry()
	validator, err := catalog.NewValidator()
	if err != nil {
		log.WithError(err).Fatal("cannot compile catalog schemas")
	}

	store, err := dispatch.NewPostgresStore(db, registry)
	if err != nil {
		log.WithError(err).Fatal("cannot create catalog store")
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     service.Redis,
		Password: service.RedisPassword,
	})
	defer redisClient.Close()

	authenticator := access.NewAuthenticator(
		access.NewRedisSessions(redisClient),
		access.NewSQLKeys(db),
		[]byte(service.SessionSecret),
	)

	var notifier core.Notifier
	if brokers := notify.ParseBrokers(service.KafkaBrokers); len(brokers) > 0 {
		kafkaNotifier := notify.NewKafkaNotifier(brokers, service.KafkaTopic)
		defer kafkaNotifier.Close()
		notifier = kafkaNotifier
	}

	router := mux.NewRouter()
	logger.AddRequestID(router)
	dispatch.New(&dispatch.Builder{
		Registry:      registry,
		Validator:     validator,
		Store:         store,
		Router:        router,
		Authenticator: authenticator,
		Notifier:      notifier,
	})

	log.Infoln("listen on", service.Addr)
	if err := http.ListenAndServe(service.Addr, corsHandler(service.CORSOrigins)(router)); err != nil {
		log.WithError(err).Fatal("server stopped")
	}
}

// corsHandler builds the CORS middleware for the configured origins.
func corsHandler(origins string) func(http.Handler) http.Handler {
	return handlers.CORS(
		handlers.AllowedOrigins(strings.Split(origins, ",")),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization", "Accept"}),
	)
}
