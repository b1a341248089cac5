package config

const (
	EnvPrefix = "SALESMETRICS"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv       = "SALESMETRICS_APP_ENV"
	EnvLogLevel     = "SALESMETRICS_LOG_LEVEL"
	EnvLogWarnStack = "SALESMETRICS_LOG_WARN_STACK"
	EnvLogFormat    = "SALESMETRICS_LOG_FORMAT"

	EnvDBDSN      = "SALESMETRICS_DB_DSN"
	EnvDBDriver   = "SALESMETRICS_DB_DRIVER"
	EnvDBHost     = "SALESMETRICS_DB_HOST"
	EnvDBPort     = "SALESMETRICS_DB_PORT"
	EnvDBUser     = "SALESMETRICS_DB_USER"
	EnvDBPassword = "SALESMETRICS_DB_PASSWORD"
	EnvDBName     = "SALESMETRICS_DB_NAME"

	EnvSourceDSN          = "SALESMETRICS_SOURCE_DSN"
	EnvSourceDriver       = "SALESMETRICS_SOURCE_DRIVER"
	EnvSourceSalesDetail  = "SALESMETRICS_SOURCE_SALES_DETAIL_TABLE"
	EnvSourceSalesHeader  = "SALESMETRICS_SOURCE_SALES_HEADER_TABLE"
	EnvSourceProductTable = "SALESMETRICS_SOURCE_PRODUCTS_TABLE"

	EnvYearsToAnalyze   = "SALESMETRICS_YEARS_TO_ANALYZE"
	EnvPercentileA      = "SALESMETRICS_PERCENTIL_A"
	EnvPercentileB      = "SALESMETRICS_PERCENTIL_B"
	EnvTargetTable      = "SALESMETRICS_TARGET_TABLE"
	EnvLoadBatchSize    = "SALESMETRICS_LOAD_BATCH_SIZE"
	EnvLoadTruncate     = "SALESMETRICS_LOAD_TRUNCATE"
	EnvScheduleInterval = "SALESMETRICS_SCHEDULE_INTERVAL"
	EnvDryRun           = "SALESMETRICS_DRY_RUN"

	EnvMetricsAddr    = "SALESMETRICS_METRICS_ADDR"
	EnvPushgatewayURL = "SALESMETRICS_PUSHGATEWAY_URL"
	EnvMetricsJobName = "SALESMETRICS_METRICS_JOB_NAME"

	EnvGCPProjectID         = "SALESMETRICS_GCP_PROJECT_ID"
	EnvBigQueryEnabled      = "SALESMETRICS_BIGQUERY_ENABLED"
	EnvBigQueryDataset      = "SALESMETRICS_BIGQUERY_DATASET"
	EnvBigQueryMetricsTable = "SALESMETRICS_BIGQUERY_METRICS_TABLE"
	EnvBigQueryRunsTable    = "SALESMETRICS_BIGQUERY_RUNS_TABLE"

	EnvAutoMigrate = "SALESMETRICS_AUTO_MIGRATE"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
