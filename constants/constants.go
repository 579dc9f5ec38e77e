package constants

// Component

const (
	MergeDiffValueNew            = "N"
	MergeDiffValueChanged        = "C"
	MergeDiffValueDeleted        = "D"
	MergeDiffValueIdentical      = "I"
	DiffStatusFieldName          = "#diffStatus"
	FileNameFieldName            = "#fileName"
	ChanSize                     = 20000
	StatsCaptureFrequencySeconds = 5
	ParquetReadBatchSize         = 256
	TimeFormatYearSeconds        = "20060102T150405" // used for dev mode dataset suffixes
	TimeFormatYearSecondsTZ      = "20060102T150405-0700"
	TimeFormatDate               = "2006-01-02"
	ServiceName                  = "sunglass-etl"
)

// Write strategies.

const (
	WriteStrategyReplace     = "replace"
	WriteStrategyAppend      = "append"
	WriteStrategyMergeUpsert = "merge-upsert"
	WriteStrategyMergeScd2   = "merge-scd2"
)

// System columns and tables added to every dataset.

const (
	ColumnValidFrom     = "valid_from"
	ColumnValidTo       = "valid_to"
	ColumnLoadId        = "_load_id"
	ColumnRowHash       = "_row_hash"
	TableLoads          = "_loads"
	TablePipelineState  = "_pipeline_state"
	LoadStatusSucceeded = "succeeded"
	LoadStatusFailed    = "failed"
)

// Destination types.

const (
	ConnectionTypePostgres  = "postgres"
	ConnectionTypeSnowflake = "snowflake"
	ConnectionTypeSqlServer = "sqlserver"
	ConnectionTypeSqlite    = "sqlite"
	ConnectionTypeS3        = "s3"
	ConnectionTypeFile      = "file"
)

// Transform runners and state backends.

const (
	TransformRunnerNative = "native"
	TransformRunnerDbt    = "dbt"
	StateBackendWarehouse = "warehouse"
	StateBackendLocal     = "local"
)

// Environment variables.

const (
	EnvVarS3BaseUrl              = "S3_BASE_URL"
	EnvVarS3Region               = "S3_REGION"
	EnvVarFileGlob               = "FILE_GLOB"
	EnvVarPipelineName           = "PIPELINE_NAME"
	EnvVarRawDataset             = "RAW_DATASET"
	EnvVarDbtDataset             = "DBT_DATASET"
	EnvVarDestination            = "DESTINATION"
	EnvVarUsersPath              = "USERS_PATH"
	EnvVarProductsPath           = "PRODUCTS_PATH"
	EnvVarOrdersPath             = "ORDERS_PATH"
	EnvVarInteractionsPath       = "INTERACTIONS_PATH"
	EnvVarInteractionTypesPath   = "INTERACTION_TYPES_PATH"
	EnvVarDbtPackageLocation     = "DBT_PACKAGE_LOCATION"
	EnvVarTransformRunner        = "TRANSFORM_RUNNER"
	EnvVarDbtExecutable          = "DBT_EXECUTABLE"
	EnvVarDimensionWriteStrategy = "DIMENSION_WRITE_STRATEGY"
	EnvVarDevMode                = "DEV_MODE"
	EnvVarStateBackend           = "STATE_BACKEND"
	EnvVarPipelinesDir           = "PIPELINES_DIR"
	EnvVarLoadWorkers            = "LOAD_WORKERS"
	EnvVarScd2RetireAbsent       = "SCD2_RETIRE_ABSENT"
	EnvVarPushgatewayUrl         = "PUSHGATEWAY_URL"
	EnvVarLogLevel               = "LOG_LEVEL"
	EnvVarPrefix                 = "SUNGLASS"
	EnvVarTwelveFactorMode       = EnvVarPrefix + "_12FACTOR_MODE"
	EnvVarCommand                = EnvVarPrefix + "_COMMAND"
	EnvVarFilterSuffix           = "_FILTER"
)

// Defaults.

const (
	DefaultDbtPackageLocation = "../dbt_sunglass_store"
	DefaultDbtExecutable      = "dbt"
	DefaultS3Region           = "eu-west-2"
	DefaultLogLevel           = "info"
	DefaultPipelinesDir       = ".sunglass-etl/pipelines"
	DefaultLoadWorkers        = 1
	DefaultListenPort         = "8080"
)
