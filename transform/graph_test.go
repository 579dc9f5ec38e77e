package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseModel(t *testing.T) {
	m := parseModel("marts/core/dim_users.sql", `{{ config(materialized = "table") }}
{# joins users to orders #}
select * from {{ ref('stg_users') }} u join {{ ref('pkg', 'stg_orders') }} o on o.user_id = u.user_id
join {{ source('raw', 'products') }} p on p.item_id = o.item_id`)
	assert.Equal(t, "dim_users", m.Name)
	assert.Equal(t, []string{"marts", "core"}, m.Dirs)
	assert.Equal(t, "table", m.configMaterialized)
	assert.Equal(t, []string{"stg_orders", "stg_users"}, m.Refs)
	assert.NoError(t, m.invalid)
	sql := m.render(
		func(model string) string { return "dbt." + model },
		func(s sourceRef) string { return s.source + "_schema." + s.table })
	assert.Equal(t, "select * from dbt.stg_users u join dbt.stg_orders o on o.user_id = u.user_id\njoin raw_schema.products p on p.item_id = o.item_id", sql)
}

func TestParseModelRejectsOtherTemplates(t *testing.T) {
	for _, sql := range []string{"select {{ var('x') }}", "{% if true %}select 1{% endif %}"} {
		assert.Error(t, parseModel("m.sql", sql).invalid, sql)
	}
}

func TestExecutionPlanOrdersByLevelThenName(t *testing.T) {
	models := []*Model{
		{Name: "fct", Refs: []string{"stg_a", "stg_b"}},
		{Name: "stg_b"},
		{Name: "stg_a"},
		{Name: "rpt", Refs: []string{"fct"}},
		{Name: "stg_a", Path: "other/stg_a.sql"},
	}
	p := newExecutionPlan(models)
	names := make([]string, 0)
	for _, m := range p.order {
		names = append(names, m.Name)
	}
	assert.Equal(t, []string{"stg_a", "stg_b", "fct", "rpt"}, names)
	require.Len(t, p.duplicates, 1)
	assert.Equal(t, "other/stg_a.sql", p.duplicates[0].Path)
	assert.Empty(t, p.failures)
}

func TestProjectMaterializationFor(t *testing.T) {
	p := &Project{
		Name: "sunglass",
		Models: map[string]interface{}{
			"sunglass": map[interface{}]interface{}{
				"+materialized": "view",
				"marts": map[interface{}]interface{}{
					"+materialized": "table",
					"legacy":        map[interface{}]interface{}{"materialized": "view"},
				},
			},
		},
	}
	assert.Equal(t, MaterializedView, p.materializationFor(nil))
	assert.Equal(t, MaterializedView, p.materializationFor([]string{"staging"}))
	assert.Equal(t, MaterializedTable, p.materializationFor([]string{"marts"}))
	assert.Equal(t, MaterializedTable, p.materializationFor([]string{"marts", "core"}))
	assert.Equal(t, MaterializedView, p.materializationFor([]string{"marts", "legacy"}))
}
