package logging

import (
	"testing"

	. "github.com/onsi/gomega"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	g := NewWithT(t)

	logger, err := New("warn", false)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(logger.Core().Enabled(zapcore.WarnLevel)).To(BeTrue())
	g.Expect(logger.Core().Enabled(zapcore.InfoLevel)).To(BeFalse())

	_, err = New("loud", false)
	g.Expect(err).To(HaveOccurred())
}

func TestDevelopmentConfig(t *testing.T) {
	g := NewWithT(t)
	cfg := Config(zapcore.DebugLevel, true)
	g.Expect(cfg.Development).To(BeTrue())
	g.Expect(cfg.EncoderConfig.CallerKey).To(Equal("caller"))
	g.Expect(Config(zapcore.InfoLevel, false).DisableStacktrace).To(BeTrue())
}
