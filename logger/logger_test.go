package logger_test

import (
	"bytes"
	"encoding/json"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/relloyd/sunglass-etl/logger"
	log "github.com/sirupsen/logrus"
)

var _ = Describe("Logger", func() {
	var (
		l         *logger.LoggerImpl
		logOutput *bytes.Buffer
	)

	BeforeEach(func() {
		var err error
		l, err = logger.NewLogger("test-service", "debug", true)
		Expect(err).ToNot(HaveOccurred())
		logOutput = bytes.NewBufferString("")
		l.SetOutput(logOutput)
		l.SetFormatter(&log.JSONFormatter{})
	})

	decode := func() map[string]interface{} {
		var actual map[string]interface{}
		Expect(json.Unmarshal(logOutput.Bytes(), &actual)).To(Succeed())
		return actual
	}

	It("Should have `test-service` as service name", func() {
		l.Info("Testing")
		Expect(decode()["service"]).To(Equal("test-service"))
	})

	It("Should have info as log level", func() {
		l.Info("Testing")
		Expect(decode()["level"]).To(Equal("info"))
	})

	It("Should have warn as log level", func() {
		l.Warn("Testing")
		Expect(decode()["level"]).To(Equal("warning"))
	})

	It("Should have error as log level with a stack trace", func() {
		l.Error("Testing")
		actual := decode()
		Expect(actual["level"]).To(Equal("error"))
		Expect(actual["stackTrace"]).ToNot(BeNil())
	})

	It("Should carry extra fields", func() {
		l.WithField("table", "users").Info("Testing")
		actual := decode()
		Expect(actual["table"]).To(Equal("users"))
		Expect(actual["msg"]).To(Equal("Testing"))
	})

	It("Should reject an unknown level", func() {
		_, err := logger.NewLogger("test-service", "chatty", false)
		Expect(err).To(HaveOccurred())
	})
})
