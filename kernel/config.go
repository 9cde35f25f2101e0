package kernel

import (
	"context"
	"log"
	"os"
	"strconv"
	"sync"
	"time"

	jwt "github.com/appleboy/gin-jwt/v2"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel"
	"gorm.io/gorm"

	"github.com/Esja2001/CoopVilcabamba-sub000/flow"
	"github.com/Esja2001/CoopVilcabamba-sub000/gateway"
)

var (
	once       sync.Once
	appRuntime *AppRuntime
)

type AppRuntime struct {
	Host string

	ServiceName           string
	ServiceVersion        string
	DeploymentEnvironment string

	DatabaseDSN    string
	DatabaseClient *gorm.DB

	JaegerEndpoint string
	Insecure       bool

	// prctrans gateway; when the URL is empty the in-memory gateway is
	// used (local development).
	GatewayURL     string
	GatewayTimeout time.Duration
	Gateway        gateway.Client

	// OTP authorization policy
	FlowConfig flow.Config
	Flows      *flow.Registry

	SessionTTL time.Duration

	Diagnostic *AppDiagnostic

	Context context.Context

	// Admin JWT
	Realm       string
	IdentityKey string
	SecretKey   []byte
	JWT         *jwt.GinJWTMiddleware
}

func LoadConfig() *AppRuntime {
	once.Do(func() {
		appEnv := os.Getenv("API_ENV")
		if appEnv == "" {
			appEnv = "development"
		}

		var env map[string]string
		env, err := godotenv.Read(".env." + appEnv)
		if err != nil {
			log.Fatal(err)
		}

		appRuntime = &AppRuntime{
			Host:        env["HOST"],
			DatabaseDSN: env["DATABASE_DSN"],

			ServiceName:           env["SERVICE_NAME"],
			ServiceVersion:        env["SERVICE_VERSION"],
			DeploymentEnvironment: env["DEPLOY_ENV"],

			JaegerEndpoint: env["JAEGER_ENDPOINT"],
			Insecure:       env["INSECURE"] == "true",

			GatewayURL:     env["GATEWAY_URL"],
			GatewayTimeout: durationOr(env, "GATEWAY_TIMEOUT", gateway.DefaultTimeout),

			FlowConfig: flow.Config{
				MaxAttempts:           intOr(env, "OTP_MAX_ATTEMPTS", 3),
				Deadline:              durationOr(env, "OTP_DEADLINE", 300*time.Second),
				ResendCooldown:        durationOr(env, "OTP_RESEND_COOLDOWN", 120*time.Second),
				MaxAttemptsDwell:      durationOr(env, "OTP_MAX_ATTEMPTS_DWELL", 5*time.Second),
				CommunicationDwell:    durationOr(env, "OTP_COMMUNICATION_DWELL", 300*time.Second),
				ResetAttemptsOnResend: env["OTP_RESET_ATTEMPTS_ON_RESEND"] != "false",
			},
			Flows: flow.NewRegistry(),

			SessionTTL: durationOr(env, "SESSION_TTL", 15*time.Minute),

			Diagnostic: &AppDiagnostic{
				Tracer: otel.Tracer(env["SERVICE_NAME"] + "-tracer"),
				Meter:  otel.Meter(env["SERVICE_NAME"] + "-meter"),
			},

			Realm:       env["SEC_JWT_REALM"],
			IdentityKey: env["SEC_JWT_IDENTITY_KEY"],
			SecretKey:   []byte(env["SEC_JWT_SECRET_KEY"]),
		}

		if appRuntime.GatewayURL == "" {
			log.Printf(" * No GATEWAY_URL configured, using the in-memory gateway")
			appRuntime.Gateway = gateway.NewMemoryClient()
		} else {
			appRuntime.Gateway = gateway.NewHTTPClient(appRuntime.GatewayURL, appRuntime.GatewayTimeout)
		}
	})
	return appRuntime
}

func durationOr(env map[string]string, key string, fallback time.Duration) time.Duration {
	v, ok := env[key]
	if !ok || v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("invalid %s value %q, using default %s", key, v, fallback)
		return fallback
	}
	return d
}

func intOr(env map[string]string, key string, fallback int) int {
	v, ok := env[key]
	if !ok || v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("invalid %s value %q, using default %d", key, v, fallback)
		return fallback
	}
	return n
}
