package log

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type LogSuite struct {
	suite.Suite
	logs *observer.ObservedLogs
}

func TestLogSuite(t *testing.T) {
	suite.Run(t, new(LogSuite))
}

func (s *LogSuite) SetupTest() {
	core, logs := observer.New(zapcore.DebugLevel)
	SetLogger(zap.New(core))
	s.logs = logs
}

func (s *LogSuite) TestLevels() {
	Debugf("debug %d", 1)
	Infof("info %d", 2)
	Warnf("warn %d", 3)
	Errorf("error %d", 4)

	entries := s.logs.AllUntimed()
	s.Require().Len(entries, 4)
	s.Equal(zapcore.DebugLevel, entries[0].Level)
	s.Equal("debug 1", entries[0].Message)
	s.Equal(zapcore.WarnLevel, entries[2].Level)
	s.Equal("error 4", entries[3].Message)
}

func (s *LogSuite) TestWithCarriesMeta() {
	l := With("chain-id", "31337").With("sponsor", "0xabc")
	l.Infof("cycle started")

	entries := s.logs.FilterMessage("cycle started").AllUntimed()
	s.Require().Len(entries, 1)
	fields := entries[0].ContextMap()
	s.Equal("31337", fields["chain-id"])
	s.Equal("0xabc", fields["sponsor"])
}

func (s *LogSuite) TestAddFields() {
	AddFields("coordinator-id", "abc")
	Infof("started")

	entries := s.logs.FilterMessage("started").AllUntimed()
	s.Require().Len(entries, 1)
	s.Equal("abc", entries[0].ContextMap()["coordinator-id"])
}

func (s *LogSuite) TestLoggerConfig() {
	testCases := []struct {
		name   string
		level  string
		format string
		expErr bool
	}{
		{"defaults", "", "", false},
		{"json debug", "debug", "json", false},
		{"plain warn", "warn", "plain", false},
		{"unknown format", "info", "xml", true},
		{"unknown level", "loud", "plain", true},
	}

	for _, tc := range testCases {
		s.Run(tc.name, func() {
			_, err := loggerConfig(tc.level, tc.format)
			if tc.expErr {
				s.Require().Error(err)
			} else {
				s.Require().NoError(err)
			}
		})
	}
}

func (s *LogSuite) TestResetLogger() {
	home := s.T().TempDir()

	s.Require().NoError(ResetLogger(home, "info", "json"))
	Infof("written to file")
	Sync()

	files, err := os.ReadDir(filepath.Join(home, "logs"))
	s.Require().NoError(err)
	s.Require().Len(files, 1)
}
