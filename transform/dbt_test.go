package transform

import (
	"context"
	"os"
	"path/filepath"
	"runtime"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/relloyd/sunglass-etl/etlerr"
	"github.com/relloyd/sunglass-etl/logger"
)

const fakeDbt = `#!/bin/sh
mkdir -p target
cat > target/run_results.json <<JSON
{"results": [
  {"unique_id": "model.sunglass.stg_users", "status": "success", "execution_time": 0.5, "message": "dataset $DBT_DATASET"},
  {"unique_id": "test.sunglass.not_null_users", "status": "pass", "execution_time": 0.1, "message": null},
  {"unique_id": "model.sunglass.dim_users", "status": "error", "execution_time": 0.2, "message": "relation does not exist"},
  {"unique_id": "model.sunglass.user_count", "status": "skipped", "execution_time": 0, "message": null}
]}
JSON
exit 1
`

var _ = Describe("DbtRunner", func() {
	var (
		tmp string
		pkg string
	)

	BeforeEach(func() {
		if runtime.GOOS == "windows" {
			Skip("shell scripts required")
		}
		var err error
		tmp, err = os.MkdirTemp("", "dbt")
		Expect(err).ToNot(HaveOccurred())
		pkg = filepath.Join(tmp, "pkg")
		writePackageFiles(pkg, map[string]string{ProjectFileName: testProject})
	})

	AfterEach(func() {
		Expect(os.RemoveAll(tmp)).To(Succeed())
	})

	script := func(body string) string {
		path := filepath.Join(tmp, "dbt")
		Expect(os.WriteFile(path, []byte(body), 0o755)).To(Succeed())
		return path
	}

	It("maps run results onto model results", func() {
		r := NewDbtRunner(logger.NewNullLogger(), script(fakeDbt), nil, nil)
		results, err := r.RunTransform(context.Background(), pkg, "dbt_prod")
		Expect(etlerr.KindOf(err)).To(Equal(etlerr.KindTransformation))
		Expect(err.(*etlerr.TransformationError).Failed).To(Equal([]string{"dim_users"}))
		Expect(results).To(HaveLen(3))
		Expect(results[0]).To(Equal(ModelResult{Name: "stg_users", Status: StatusSuccess, Duration: 500_000_000, Message: "dataset dbt_prod"}))
		Expect(results[1].Status).To(Equal(StatusFailure))
		Expect(results[1].Message).To(Equal("relation does not exist"))
		Expect(results[2].Status).To(Equal(StatusSkipped))
	})

	It("fails when dbt leaves no results", func() {
		r := NewDbtRunner(logger.NewNullLogger(), script("#!/bin/sh\necho 'profile not found'\nexit 2\n"), nil, nil)
		results, err := r.RunTransform(context.Background(), pkg, "dbt")
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("profile not found"))
		Expect(etlerr.KindOf(err)).To(Equal(etlerr.KindUnknown))
		Expect(results).To(BeNil())
	})

	It("fails with PackageNotFoundError before running dbt", func() {
		r := NewDbtRunner(logger.NewNullLogger(), "/does/not/exist", nil, nil)
		_, err := r.RunTransform(context.Background(), filepath.Join(tmp, "nope"), "dbt")
		Expect(etlerr.KindOf(err)).To(Equal(etlerr.KindPackageNotFound))
	})
})
