package shared

func FixSqlStatementGeneratorConfig(cfg *SqlStatementGeneratorConfig) {
	if cfg.OutputTable == "" {
		cfg.Log.Panic("Error, missing output table name.")
	}
}
