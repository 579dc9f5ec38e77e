package transform

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/relloyd/sunglass-etl/etlerr"
	"github.com/relloyd/sunglass-etl/logger"
	"github.com/relloyd/sunglass-etl/rdbms"
	"github.com/relloyd/sunglass-etl/rdbms/shared"
)

const testProject = `name: sunglass
version: "1.0.0"
model-paths: ["models"]
models:
  sunglass:
    marts:
      +materialized: table
`

const testSources = `version: 2
sources:
  - name: raw
    tables:
      - name: users
`

func writePackageFiles(dir string, files map[string]string) {
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		Expect(os.MkdirAll(filepath.Dir(path), 0o755)).To(Succeed())
		Expect(os.WriteFile(path, []byte(content), 0o644)).To(Succeed())
	}
}

func resultStatuses(results []ModelResult) map[string]string {
	m := make(map[string]string)
	for _, r := range results {
		m[r.Name] = r.Status
	}
	return m
}

func resultNames(results []ModelResult) []string {
	names := make([]string, len(results))
	for i, r := range results {
		names[i] = r.Name
	}
	return names
}

var _ = Describe("NativeRunner", func() {
	var (
		ctx    context.Context
		log    logger.Logger
		tmp    string
		pkg    string
		db     shared.Connector
		runner *NativeRunner
	)

	BeforeEach(func() {
		var err error
		ctx = context.Background()
		log = logger.NewNullLogger()
		tmp, err = os.MkdirTemp("", "transform")
		Expect(err).ToNot(HaveOccurred())
		pkg = filepath.Join(tmp, "dbt_sunglass_store")
		db, err = rdbms.OpenDbConnection(log, shared.DsnConnectionDetails{Dsn: "sqlite://" + filepath.Join(tmp, "warehouse.db")})
		Expect(err).ToNot(HaveOccurred())
		for _, stmt := range []string{
			`create table "raw__users" ("user_id" integer, "email" text, "valid_to" text)`,
			`insert into "raw__users" values (1, 'a@x', null), (2, 'b@x', null), (3, 'c@x', '2024-01-01')`,
		} {
			_, err = db.ExecContext(ctx, stmt)
			Expect(err).ToNot(HaveOccurred())
		}
		runner = NewNativeRunner(log, db, "raw", nil)
		writePackageFiles(pkg, map[string]string{
			ProjectFileName:                testProject,
			"models/sources.yml":           testSources,
			"models/staging/stg_users.sql": "select user_id, email from {{ source('raw', 'users') }} where valid_to is null",
			"models/marts/dim_users.sql":   "-- current users\nselect * from {{ ref('stg_users') }};\n",
			"models/marts/user_count.sql":  "{{ config(materialized='view') }}\nselect count(*) as n from {{ ref(\"dim_users\") }}",
		})
	})

	AfterEach(func() {
		db.Close()
		Expect(os.RemoveAll(tmp)).To(Succeed())
	})

	kindOf := func(name string) string {
		kind, err := rdbms.RelationKind(ctx, log, db, db.GetDialect(), "dbt", name)
		Expect(err).ToNot(HaveOccurred())
		return kind
	}

	It("runs models in dependency order with their materializations", func() {
		results, err := runner.RunTransform(ctx, pkg, "dbt")
		Expect(err).ToNot(HaveOccurred())
		Expect(resultNames(results)).To(Equal([]string{"stg_users", "dim_users", "user_count"}))
		for _, r := range results {
			Expect(r.Status).To(Equal(StatusSuccess), r.Message)
		}
		Expect(kindOf("stg_users")).To(Equal(rdbms.RelationView))
		Expect(kindOf("dim_users")).To(Equal(rdbms.RelationTable))
		Expect(kindOf("user_count")).To(Equal(rdbms.RelationView))
		n, _, err := rdbms.QueryString(ctx, log, db, `select n from "dbt__user_count"`)
		Expect(err).ToNot(HaveOccurred())
		Expect(n).To(Equal("2"))
	})

	It("rebuilds existing models on a second run", func() {
		_, err := runner.RunTransform(ctx, pkg, "dbt")
		Expect(err).ToNot(HaveOccurred())
		_, err = db.ExecContext(ctx, `insert into "raw__users" values (4, 'd@x', null)`)
		Expect(err).ToNot(HaveOccurred())
		_, err = runner.RunTransform(ctx, pkg, "dbt")
		Expect(err).ToNot(HaveOccurred())
		n, _, err := rdbms.QueryString(ctx, log, db, `select n from "dbt__user_count"`)
		Expect(err).ToNot(HaveOccurred())
		Expect(n).To(Equal("3"))
	})

	It("skips dependents of a failed model and runs independent models", func() {
		writePackageFiles(pkg, map[string]string{
			"models/broken.sql":       "select * from missing_table",
			"models/after_broken.sql": "select * from {{ ref('broken') }}",
			"models/independent.sql":  "select 1 as x",
		})
		results, err := runner.RunTransform(ctx, pkg, "dbt")
		Expect(err).To(HaveOccurred())
		var te *etlerr.TransformationError
		Expect(errors.As(err, &te)).To(BeTrue())
		Expect(te.Failed).To(Equal([]string{"broken"}))
		Expect(te.Skipped).To(Equal([]string{"after_broken"}))
		statuses := resultStatuses(results)
		Expect(statuses).To(HaveLen(6))
		Expect(statuses["independent"]).To(Equal(StatusSuccess))
		Expect(statuses["dim_users"]).To(Equal(StatusSuccess))
		Expect(statuses["after_broken"]).To(Equal(StatusSkipped))
	})

	It("fails a view model that selects from a missing relation", func() {
		writePackageFiles(pkg, map[string]string{
			"models/dangling.sql": `select id from "raw__gone"`,
		})
		results, err := runner.RunTransform(ctx, pkg, "dbt")
		Expect(etlerr.KindOf(err)).To(Equal(etlerr.KindTransformation))
		Expect(resultStatuses(results)).To(HaveKeyWithValue("dangling", StatusFailure))
		for _, r := range results {
			if r.Name == "dangling" {
				Expect(r.Message).To(ContainSubstring("does not compile"))
			}
		}
	})

	It("reports cycles, unknown refs and unsupported templates as failures", func() {
		writePackageFiles(pkg, map[string]string{
			"models/cycle_a.sql":  "select * from {{ ref('cycle_b') }}",
			"models/cycle_b.sql":  "select * from {{ ref('cycle_a') }}",
			"models/cycle_c.sql":  "select * from {{ ref('cycle_a') }}",
			"models/unknown.sql":  "select * from {{ ref('nope') }}",
			"models/template.sql": "select {{ var('x') }} as x",
		})
		results, err := runner.RunTransform(ctx, pkg, "dbt")
		Expect(etlerr.KindOf(err)).To(Equal(etlerr.KindTransformation))
		statuses := resultStatuses(results)
		Expect(statuses["cycle_a"]).To(Equal(StatusFailure))
		Expect(statuses["cycle_b"]).To(Equal(StatusFailure))
		Expect(statuses["cycle_c"]).To(Equal(StatusSkipped))
		Expect(statuses["unknown"]).To(Equal(StatusFailure))
		Expect(statuses["template"]).To(Equal(StatusFailure))
		Expect(statuses["stg_users"]).To(Equal(StatusSuccess))
		for _, r := range results {
			if r.Name == "cycle_a" {
				Expect(r.Message).To(ContainSubstring("cycle_a -> cycle_b -> cycle_a"))
			}
		}
	})

	It("fails with PackageNotFoundError for a missing package", func() {
		results, err := runner.RunTransform(ctx, filepath.Join(tmp, "nope"), "dbt")
		Expect(results).To(BeEmpty())
		Expect(etlerr.KindOf(err)).To(Equal(etlerr.KindPackageNotFound))
		Expect(os.Remove(filepath.Join(pkg, ProjectFileName))).To(Succeed())
		_, err = runner.RunTransform(ctx, pkg, "dbt")
		Expect(etlerr.KindOf(err)).To(Equal(etlerr.KindPackageNotFound))
	})
})
