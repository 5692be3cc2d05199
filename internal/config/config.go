package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// VerifierErrorPolicy decides what to do with claims whose verifier call
// returned an error outcome rather than a clean verdict.
type VerifierErrorPolicy string

const (
	// VerifierErrorTreatAsIneligible derives claim status from an error
	// outcome exactly as from a business-ineligible verdict.
	VerifierErrorTreatAsIneligible VerifierErrorPolicy = "treat-as-ineligible"
	// VerifierErrorPark leaves the triggering message queued for manual
	// reprocessing instead of deriving a status.
	VerifierErrorPark VerifierErrorPolicy = "park"
)

type Config struct {
	DBConfig struct {
		Host     string
		Port     int
		User     string
		Password string
		Name     string
		SSLMode  string
	}

	HTTPPort      int
	MigrationsURL string

	KafkaBrokerURL   string
	KafkaReportTopic string

	VerifierBaseURL     string
	CardProviderBaseURL string
	NotifyBaseURL       string
	NotifyAPIKey        string
	ExternalCallTimeout time.Duration

	Entitlement struct {
		SingleVoucherValueInPence int
		VouchersPerChildUnderOne  int
		VouchersPerChildOneToFour int
		VouchersPerPregnancy      int
		PregnancyGracePeriodWeeks int
		WeeksPerCycle             int
	}

	Payment struct {
		// BalanceMultiple is N in the capping rule: full payment below T*N,
		// tapered in [T*N, T*2N), nothing at or above T*2N.
		BalanceMultiple int
	}

	MessageProcessing struct {
		TickInterval time.Duration
		BatchSize    int
		MaxAttempts  int
		LockMinHold  time.Duration
		LockMaxHold  time.Duration
	}

	Scheduling struct {
		PaymentCycleInterval        time.Duration
		CardCancellationInterval    time.Duration
		CardCancellationGracePeriod time.Duration
		CardCancellationSettleDelay time.Duration
	}

	VerifierErrorPolicy VerifierErrorPolicy

	NotifyTemplates struct {
		NewCardEmail           string
		PaymentEmail           string
		CardCancellationLetter string
	}
}

func LoadConfig() (*Config, error) {
	cfg := &Config{}

	cfg.DBConfig.Host = getEnvOrDefault("CLAIMS_DB_HOST", "localhost")
	cfg.DBConfig.Port = getEnvAsInt("CLAIMS_DB_PORT", 5432)
	cfg.DBConfig.User = getEnvOrDefault("CLAIMS_DB_USER", "user")
	cfg.DBConfig.Password = getEnvOrDefault("CLAIMS_DB_PASSWORD", "password")
	cfg.DBConfig.Name = getEnvOrDefault("CLAIMS_DB_NAME", "claims_db")
	cfg.DBConfig.SSLMode = getEnvOrDefault("CLAIMS_DB_SSLMODE", "disable")

	cfg.HTTPPort = getEnvAsInt("CLAIMS_HTTP_PORT", 8080)
	cfg.MigrationsURL = getEnvOrDefault("CLAIMS_MIGRATIONS_URL", "file://migrations")

	cfg.KafkaBrokerURL = getEnvOrDefault("KAFKA_BROKER_URL", "localhost:9092")
	cfg.KafkaReportTopic = getEnvOrDefault("KAFKA_REPORT_TOPIC", "claim_report_events")

	cfg.VerifierBaseURL = getEnvOrDefault("ELIGIBILITY_VERIFIER_URL", "http://localhost:8100")
	cfg.CardProviderBaseURL = getEnvOrDefault("CARD_PROVIDER_URL", "http://localhost:8110")
	cfg.NotifyBaseURL = getEnvOrDefault("NOTIFY_URL", "http://localhost:8120")
	cfg.NotifyAPIKey = getEnvOrDefault("NOTIFY_API_KEY", "")
	cfg.ExternalCallTimeout = getEnvAsDuration("EXTERNAL_CALL_TIMEOUT", 10*time.Second)

	cfg.Entitlement.SingleVoucherValueInPence = getEnvAsInt("ENTITLEMENT_VOUCHER_VALUE_PENCE", 310)
	cfg.Entitlement.VouchersPerChildUnderOne = getEnvAsInt("ENTITLEMENT_VOUCHERS_UNDER_ONE", 2)
	cfg.Entitlement.VouchersPerChildOneToFour = getEnvAsInt("ENTITLEMENT_VOUCHERS_ONE_TO_FOUR", 1)
	cfg.Entitlement.VouchersPerPregnancy = getEnvAsInt("ENTITLEMENT_VOUCHERS_PREGNANCY", 1)
	cfg.Entitlement.PregnancyGracePeriodWeeks = getEnvAsInt("ENTITLEMENT_PREGNANCY_GRACE_WEEKS", 12)
	cfg.Entitlement.WeeksPerCycle = getEnvAsInt("ENTITLEMENT_WEEKS_PER_CYCLE", 4)

	cfg.Payment.BalanceMultiple = getEnvAsInt("PAYMENT_BALANCE_MULTIPLE", 2)

	cfg.MessageProcessing.TickInterval = getEnvAsDuration("MESSAGE_TICK_INTERVAL", 30*time.Second)
	cfg.MessageProcessing.BatchSize = getEnvAsInt("MESSAGE_BATCH_SIZE", 100)
	cfg.MessageProcessing.MaxAttempts = getEnvAsInt("MESSAGE_MAX_ATTEMPTS", 10)
	cfg.MessageProcessing.LockMinHold = getEnvAsDuration("MESSAGE_LOCK_MIN_HOLD", 5*time.Second)
	cfg.MessageProcessing.LockMaxHold = getEnvAsDuration("MESSAGE_LOCK_MAX_HOLD", 15*time.Minute)

	cfg.Scheduling.PaymentCycleInterval = getEnvAsDuration("PAYMENT_CYCLE_SCHEDULE_INTERVAL", 5*time.Minute)
	cfg.Scheduling.CardCancellationInterval = getEnvAsDuration("CARD_CANCELLATION_SCHEDULE_INTERVAL", 1*time.Hour)
	cfg.Scheduling.CardCancellationGracePeriod = getEnvAsDuration("CARD_CANCELLATION_GRACE_PERIOD", 16*7*24*time.Hour)
	cfg.Scheduling.CardCancellationSettleDelay = getEnvAsDuration("CARD_CANCELLATION_SETTLE_DELAY", 7*24*time.Hour)

	policy := VerifierErrorPolicy(getEnvOrDefault("VERIFIER_ERROR_POLICY", string(VerifierErrorTreatAsIneligible)))
	switch policy {
	case VerifierErrorTreatAsIneligible, VerifierErrorPark:
		cfg.VerifierErrorPolicy = policy
	default:
		return nil, fmt.Errorf("unknown VERIFIER_ERROR_POLICY %q", policy)
	}

	cfg.NotifyTemplates.NewCardEmail = getEnvOrDefault("NOTIFY_TEMPLATE_NEW_CARD", "new-card-email")
	cfg.NotifyTemplates.PaymentEmail = getEnvOrDefault("NOTIFY_TEMPLATE_PAYMENT", "payment-email")
	cfg.NotifyTemplates.CardCancellationLetter = getEnvOrDefault("NOTIFY_TEMPLATE_CARD_CANCELLATION", "card-cancellation-letter")

	return cfg, nil
}

func (c *Config) GetDBConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DBConfig.Host, c.DBConfig.Port, c.DBConfig.User, c.DBConfig.Password, c.DBConfig.Name, c.DBConfig.SSLMode)
}

func (c *Config) GetDBMigrationConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBConfig.User, c.DBConfig.Password, c.DBConfig.Host, c.DBConfig.Port, c.DBConfig.Name, c.DBConfig.SSLMode)
}

func (c *Config) GetKafkaBrokers() []string {
	return strings.Split(c.KafkaBrokerURL, ",")
}

func (c *Config) PregnancyGracePeriod() time.Duration {
	return time.Duration(c.Entitlement.PregnancyGracePeriodWeeks) * 7 * 24 * time.Hour
}

func (c *Config) CycleLength() time.Duration {
	return time.Duration(c.Entitlement.WeeksPerCycle) * 7 * 24 * time.Hour
}

func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnvOrDefault(key, strconv.Itoa(defaultValue))
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnvOrDefault(key, defaultValue.String())
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
