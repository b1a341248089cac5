package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"

	"github.com/angelmondragon/salesmetrics-etl/pkg/enums"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Source       SourceConfig
	Pipeline     PipelineConfig
	Metrics      MetricsConfig
	GCP          GCPConfig
	BigQuery     BigQueryConfig
	FeatureFlags FeatureFlagsConfig
}

var validate = validator.New()

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints envconfig cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := enums.ParseDBDriver(c.DB.Driver); err != nil {
		return fmt.Errorf("invalid config: %s: %w", EnvDBDriver, err)
	}
	if c.Source.Driver != "" {
		if _, err := enums.ParseDBDriver(c.Source.Driver); err != nil {
			return fmt.Errorf("invalid config: %s: %w", EnvSourceDriver, err)
		}
	}
	if c.BigQuery.Enabled && strings.TrimSpace(c.GCP.ProjectID) == "" {
		return fmt.Errorf("invalid config: %s is required when %s is set", EnvGCPProjectID, EnvBigQueryEnabled)
	}
	return nil
}

type AppConfig struct {
	Env          string `envconfig:"SALESMETRICS_APP_ENV" default:"dev"`
	LogLevel     string `envconfig:"SALESMETRICS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SALESMETRICS_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"SALESMETRICS_LOG_FORMAT" default:"json" validate:"oneof=json console"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// DBConfig describes the reporting database the metrics table is loaded into.
type DBConfig struct {
	DSN    string `envconfig:"SALESMETRICS_DB_DSN"`
	Driver string `envconfig:"SALESMETRICS_DB_DRIVER" default:"sqlserver"`

	LegacyHost     string `envconfig:"SALESMETRICS_DB_HOST"`
	LegacyPort     int    `envconfig:"SALESMETRICS_DB_PORT"`
	LegacyUser     string `envconfig:"SALESMETRICS_DB_USER"`
	LegacyPassword string `envconfig:"SALESMETRICS_DB_PASSWORD"`
	LegacyName     string `envconfig:"SALESMETRICS_DB_NAME"`
	LegacySSLMode  string `envconfig:"SALESMETRICS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SALESMETRICS_DB_MAX_OPEN_CONNS" default:"10" validate:"gte=0"`
	MaxIdleConns    int           `envconfig:"SALESMETRICS_DB_MAX_IDLE_CONNS" default:"5" validate:"gte=0"`
	ConnMaxLifetime time.Duration `envconfig:"SALESMETRICS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SALESMETRICS_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// DriverName returns the parsed driver, falling back to SQL Server.
func (db DBConfig) DriverName() enums.DBDriver {
	driver, err := enums.ParseDBDriver(db.Driver)
	if err != nil {
		return enums.DBDriverSQLServer
	}
	return driver
}

// SourceConfig describes where the sales and catalog tables are read from.
// An empty DSN reuses the reporting database.
type SourceConfig struct {
	DSN    string `envconfig:"SALESMETRICS_SOURCE_DSN"`
	Driver string `envconfig:"SALESMETRICS_SOURCE_DRIVER"`

	SalesDetailTable string `envconfig:"SALESMETRICS_SOURCE_SALES_DETAIL_TABLE" default:"Sales.SalesOrderDetail" validate:"required"`
	SalesHeaderTable string `envconfig:"SALESMETRICS_SOURCE_SALES_HEADER_TABLE" default:"Sales.SalesOrderHeader" validate:"required"`
	ProductsTable    string `envconfig:"SALESMETRICS_SOURCE_PRODUCTS_TABLE" default:"Production.Product" validate:"required"`
}

// UsesReportingDB reports whether the source shares the reporting connection.
func (s SourceConfig) UsesReportingDB() bool {
	return strings.TrimSpace(s.DSN) == ""
}

// DBConfig derives the connection settings for the source database.
func (s SourceConfig) DBConfig(reporting DBConfig) DBConfig {
	if s.UsesReportingDB() {
		return reporting
	}
	out := reporting
	out.DSN = s.DSN
	if s.Driver != "" {
		out.Driver = s.Driver
	}
	return out
}

type PipelineConfig struct {
	YearsToAnalyze   int           `envconfig:"SALESMETRICS_YEARS_TO_ANALYZE" default:"2" validate:"gte=1"`
	PercentileA      float64       `envconfig:"SALESMETRICS_PERCENTIL_A" default:"95" validate:"gte=0,lte=100,gtefield=PercentileB"`
	PercentileB      float64       `envconfig:"SALESMETRICS_PERCENTIL_B" default:"80" validate:"gte=0,lte=100"`
	TargetTable      string        `envconfig:"SALESMETRICS_TARGET_TABLE" default:"Analytics.ProductSalesMetrics" validate:"required"`
	BatchSize        int           `envconfig:"SALESMETRICS_LOAD_BATCH_SIZE" default:"100" validate:"gte=1"`
	Truncate         bool          `envconfig:"SALESMETRICS_LOAD_TRUNCATE" default:"true"`
	ScheduleInterval time.Duration `envconfig:"SALESMETRICS_SCHEDULE_INTERVAL" default:"24h"`
	DryRun           bool          `envconfig:"SALESMETRICS_DRY_RUN" default:"false"`
}

type MetricsConfig struct {
	Addr           string `envconfig:"SALESMETRICS_METRICS_ADDR" default:":9090"`
	PushgatewayURL string `envconfig:"SALESMETRICS_PUSHGATEWAY_URL" validate:"omitempty,url"`
	JobName        string `envconfig:"SALESMETRICS_METRICS_JOB_NAME" default:"salesmetrics_etl"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"SALESMETRICS_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"SALESMETRICS_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"SALESMETRICS_GOOGLE_APPLICATION_CREDENTIALS"`
}

type BigQueryConfig struct {
	Enabled      bool   `envconfig:"SALESMETRICS_BIGQUERY_ENABLED" default:"false"`
	Dataset      string `envconfig:"SALESMETRICS_BIGQUERY_DATASET" default:"analytics"`
	MetricsTable string `envconfig:"SALESMETRICS_BIGQUERY_METRICS_TABLE" default:"product_sales_metrics"`
	RunsTable    string `envconfig:"SALESMETRICS_BIGQUERY_RUNS_TABLE" default:"pipeline_runs"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"SALESMETRICS_AUTO_MIGRATE" default:"false"`
}

var defaultPorts = map[enums.DBDriver]int{
	enums.DBDriverSQLServer: 1433,
	enums.DBDriverPostgres:  5432,
	enums.DBDriverMySQL:     3306,
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	driver := db.DriverName()
	for _, env := range legacyDBEnvVars {
		if driver == enums.DBDriverSQLite && env != EnvDBName {
			continue
		}
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	port := db.LegacyPort
	if port == 0 {
		port = defaultPorts[driver]
	}

	switch driver {
	case enums.DBDriverSQLite:
		db.DSN = db.LegacyName
	case enums.DBDriverMySQL:
		creds := db.LegacyUser
		if db.LegacyPassword != "" {
			creds = db.LegacyUser + ":" + db.LegacyPassword
		}
		db.DSN = fmt.Sprintf("%s@tcp(%s:%d)/%s?parseTime=true", creds, db.LegacyHost, port, db.LegacyName)
	default:
		userInfo := url.User(db.LegacyUser)
		if db.LegacyPassword != "" {
			userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
		}
		u := &url.URL{
			Scheme: string(driver),
			User:   userInfo,
			Host:   fmt.Sprintf("%s:%d", db.LegacyHost, port),
		}
		q := u.Query()
		if driver == enums.DBDriverPostgres {
			u.Path = db.LegacyName
			if db.LegacySSLMode != "" {
				q.Set("sslmode", db.LegacySSLMode)
			}
		} else {
			q.Set("database", db.LegacyName)
		}
		u.RawQuery = q.Encode()
		db.DSN = u.String()
	}
	return nil
}
