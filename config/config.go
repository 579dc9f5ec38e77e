// Package config reads the process configuration from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	c "github.com/relloyd/sunglass-etl/constants"
	"github.com/relloyd/sunglass-etl/etlerr"
	"github.com/relloyd/sunglass-etl/helper"
	"github.com/relloyd/sunglass-etl/pipeline"
	"github.com/relloyd/sunglass-etl/schema"
)

// Config is the explicit configuration passed to the pipeline components.
type Config struct {
	S3BaseUrl            string `mandatory:"yes" errorTxt:"S3_BASE_URL"`
	FileGlob             string `mandatory:"yes" errorTxt:"FILE_GLOB"`
	PipelineName         string `mandatory:"yes" errorTxt:"PIPELINE_NAME"`
	RawDataset           string `mandatory:"yes" errorTxt:"RAW_DATASET"`
	DbtDataset           string `mandatory:"yes" errorTxt:"DBT_DATASET"`
	Destination          string `mandatory:"yes" errorTxt:"DESTINATION"`
	UsersPath            string `mandatory:"yes" errorTxt:"USERS_PATH"`
	ProductsPath         string `mandatory:"yes" errorTxt:"PRODUCTS_PATH"`
	OrdersPath           string `mandatory:"yes" errorTxt:"ORDERS_PATH"`
	InteractionsPath     string `mandatory:"yes" errorTxt:"INTERACTIONS_PATH"`
	InteractionTypesPath string `mandatory:"yes" errorTxt:"INTERACTION_TYPES_PATH"`

	S3Region               string
	DbtPackageLocation     string
	TransformRunner        string
	DbtExecutable          string
	DimensionWriteStrategy string
	DevMode                bool
	StateBackend           string
	PipelinesDir           string
	LoadWorkers            int
	Scd2RetireAbsent       bool
	PushgatewayUrl         string
	LogLevel               string
	Filters                map[string]string // table name -> JSON Logic rule
}

// dimensionStrategies are the write strategies that make sense for users and products.
var dimensionStrategies = []string{c.WriteStrategyMergeScd2, c.WriteStrategyMergeUpsert, c.WriteStrategyReplace}

// FromEnv reads the configuration from the environment. Every missing required variable is reported in one
// *etlerr.ConfigurationError. now is used for the DEV_MODE dataset suffix.
func FromEnv(now time.Time) (*Config, error) {
	cfg := &Config{
		S3BaseUrl:              helper.ReadValueFromEnvWithDefault(c.EnvVarS3BaseUrl, ""),
		FileGlob:               helper.ReadValueFromEnvWithDefault(c.EnvVarFileGlob, ""),
		PipelineName:           helper.ReadValueFromEnvWithDefault(c.EnvVarPipelineName, ""),
		RawDataset:             helper.ReadValueFromEnvWithDefault(c.EnvVarRawDataset, ""),
		DbtDataset:             helper.ReadValueFromEnvWithDefault(c.EnvVarDbtDataset, ""),
		Destination:            helper.ReadValueFromEnvWithDefault(c.EnvVarDestination, ""),
		UsersPath:              helper.ReadValueFromEnvWithDefault(c.EnvVarUsersPath, ""),
		ProductsPath:           helper.ReadValueFromEnvWithDefault(c.EnvVarProductsPath, ""),
		OrdersPath:             helper.ReadValueFromEnvWithDefault(c.EnvVarOrdersPath, ""),
		InteractionsPath:       helper.ReadValueFromEnvWithDefault(c.EnvVarInteractionsPath, ""),
		InteractionTypesPath:   helper.ReadValueFromEnvWithDefault(c.EnvVarInteractionTypesPath, ""),
		S3Region:               helper.ReadValueFromEnvWithDefault(c.EnvVarS3Region, c.DefaultS3Region),
		DbtPackageLocation:     helper.ReadValueFromEnvWithDefault(c.EnvVarDbtPackageLocation, c.DefaultDbtPackageLocation),
		TransformRunner:        strings.ToLower(helper.ReadValueFromEnvWithDefault(c.EnvVarTransformRunner, c.TransformRunnerNative)),
		DbtExecutable:          helper.ReadValueFromEnvWithDefault(c.EnvVarDbtExecutable, c.DefaultDbtExecutable),
		DimensionWriteStrategy: strings.ToLower(helper.ReadValueFromEnvWithDefault(c.EnvVarDimensionWriteStrategy, c.WriteStrategyMergeScd2)),
		DevMode:                helper.ReadBoolFromEnvWithDefault(c.EnvVarDevMode, false),
		StateBackend:           strings.ToLower(helper.ReadValueFromEnvWithDefault(c.EnvVarStateBackend, c.StateBackendWarehouse)),
		PipelinesDir:           helper.ReadValueFromEnvWithDefault(c.EnvVarPipelinesDir, ""),
		Scd2RetireAbsent:       helper.ReadBoolFromEnvWithDefault(c.EnvVarScd2RetireAbsent, false),
		PushgatewayUrl:         helper.ReadValueFromEnvWithDefault(c.EnvVarPushgatewayUrl, ""),
		LogLevel:               helper.ReadValueFromEnvWithDefault(c.EnvVarLogLevel, c.DefaultLogLevel),
		Filters:                make(map[string]string),
	}
	if missing := helper.MissingMandatoryFields(cfg); len(missing) > 0 {
		return nil, &etlerr.ConfigurationError{Missing: missing}
	}
	var err error
	if cfg.LoadWorkers, err = helper.ReadIntFromEnvWithDefault(c.EnvVarLoadWorkers, c.DefaultLoadWorkers); err != nil {
		return nil, etlerr.NewConfigurationError("%v", err)
	}
	for _, d := range schema.All() {
		if rule := helper.ReadValueFromEnvWithDefault(filterEnvVar(d.Table), ""); rule != "" {
			cfg.Filters[d.Table] = rule
		}
	}
	if cfg.PipelinesDir, err = pipelinesDir(cfg.PipelinesDir); err != nil {
		return nil, etlerr.NewConfigurationError("unable to resolve %v: %v", c.EnvVarPipelinesDir, err)
	}
	if cfg.DevMode {
		cfg.RawDataset = DevDatasetName(cfg.RawDataset, now)
	}
	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// filterEnvVar returns the name of the row filter variable of a table, e.g. INTERACTION_TYPES_FILTER.
func filterEnvVar(table string) string {
	return strings.ToUpper(table) + c.EnvVarFilterSuffix
}

// DevDatasetName suffixes dataset with the run time so each development run loads into a fresh dataset.
func DevDatasetName(dataset string, now time.Time) string {
	return fmt.Sprintf("%v_%v", dataset, strings.ToLower(now.UTC().Format(c.TimeFormatYearSeconds)))
}

// Validate checks the settings that have a fixed set of values.
func (cfg *Config) Validate() error {
	if missing := helper.MissingMandatoryFields(cfg); len(missing) > 0 {
		return &etlerr.ConfigurationError{Missing: missing}
	}
	if !oneOf(cfg.TransformRunner, c.TransformRunnerNative, c.TransformRunnerDbt) {
		return etlerr.NewConfigurationError("%v must be %v or %v, got %q", c.EnvVarTransformRunner,
			c.TransformRunnerNative, c.TransformRunnerDbt, cfg.TransformRunner)
	}
	if !oneOf(cfg.StateBackend, c.StateBackendWarehouse, c.StateBackendLocal) {
		return etlerr.NewConfigurationError("%v must be %v or %v, got %q", c.EnvVarStateBackend,
			c.StateBackendWarehouse, c.StateBackendLocal, cfg.StateBackend)
	}
	if !oneOf(cfg.DimensionWriteStrategy, dimensionStrategies...) {
		return etlerr.NewConfigurationError("%v must be one of %v, got %q", c.EnvVarDimensionWriteStrategy,
			strings.Join(dimensionStrategies, ", "), cfg.DimensionWriteStrategy)
	}
	if cfg.LoadWorkers < 1 {
		return etlerr.NewConfigurationError("%v must be at least 1", c.EnvVarLoadWorkers)
	}
	return nil
}

func oneOf(s string, values ...string) bool {
	for _, v := range values {
		if s == v {
			return true
		}
	}
	return false
}

// JobSpecs returns the settings of the five table loads in load order.
func (cfg *Config) JobSpecs() []pipeline.JobSpec {
	spec := func(path, table, strategy, key, cursor string) pipeline.JobSpec {
		return pipeline.JobSpec{
			BaseLocation:      cfg.S3BaseUrl,
			RelativePath:      path,
			FilePattern:       cfg.FileGlob,
			TableName:         table,
			WriteStrategy:     strategy,
			PrimaryKey:        key,
			IncrementalColumn: cursor,
			Filter:            cfg.Filters[helper.ToSnakeCase(table)],
		}
	}
	return []pipeline.JobSpec{
		spec(cfg.UsersPath, schema.TableUsers, cfg.DimensionWriteStrategy, "user_id", ""),
		spec(cfg.ProductsPath, schema.TableProducts, cfg.DimensionWriteStrategy, "item_id", ""),
		spec(cfg.OrdersPath, schema.TableOrders, c.WriteStrategyAppend, "", "purchase_date"),
		spec(cfg.InteractionsPath, schema.TableInteraction, c.WriteStrategyAppend, "", "interaction_date"),
		spec(cfg.InteractionTypesPath, "interactionTypes", c.WriteStrategyMergeUpsert, "id", ""),
	}
}

// Jobs builds the five table loads. Any invalid setting fails before I/O.
func (cfg *Config) Jobs() ([]*pipeline.Job, error) {
	specs := cfg.JobSpecs()
	retval := make([]*pipeline.Job, 0, len(specs))
	for _, s := range specs {
		j, err := pipeline.BuildJob(s)
		if err != nil {
			return nil, err
		}
		retval = append(retval, j)
	}
	return retval, nil
}
