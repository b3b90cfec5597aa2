package logging

import (
	"strings"
	"testing"

	"go.viam.com/test"
)

func verifySetLevels(registry *Registry, expectedMatches map[string]string) bool {
	for name, level := range expectedMatches {
		logger, ok := registry.loggerNamed(name)
		if !ok || !strings.EqualFold(level, logger.GetLevel().String()) {
			return false
		}
	}
	return true
}

func createTestRegistry(loggerNames []string) *Registry {
	manager := newRegistry()
	for _, name := range loggerNames {
		manager.registerLogger(name, NewLogger(name))
	}
	return manager
}

func TestUpdateLoggerRegistry(t *testing.T) {
	type testCfg struct {
		loggerConfig    []LoggerPatternConfig
		loggerNames     []string
		expectedMatches map[string]string
	}

	tests := []testCfg{
		{
			loggerConfig: []LoggerPatternConfig{
				{
					Pattern: "corecalib.bundle",
					Level:   "WARN",
				},
			},
			loggerNames: []string{
				"corecalib.bundle",
				"corecalib.bundle.solver",
				"corecalib.triangulate",
			},
			expectedMatches: map[string]string{
				"corecalib.bundle":        "WARN",
				"corecalib.bundle.solver": "INFO",
				"corecalib.triangulate":   "INFO",
			},
		},
		{
			loggerConfig: []LoggerPatternConfig{
				{
					Pattern: "corecalib.*",
					Level:   "DEBUG",
				},
			},
			loggerNames: []string{
				"corecalib.bundle",
				"corecalib.session.worker",
				"corecalib.bundle.pair.solver",
			},
			expectedMatches: map[string]string{
				"corecalib.bundle":            "DEBUG",
				"corecalib.session.worker":    "DEBUG",
				"corecalib.bundle.pair.solver": "DEBUG",
			},
		},
		{
			loggerConfig: []LoggerPatternConfig{
				{
					Pattern: "corecalib.*.solver",
					Level:   "ERROR",
				},
			},
			loggerNames: []string{
				"corecalib.bundle.solver",
				"corecalib.session.solver",
				"corecalib.bundle.session",
			},
			expectedMatches: map[string]string{
				"corecalib.bundle.solver":  "ERROR",
				"corecalib.session.solver": "ERROR",
				"corecalib.bundle.session": "INFO",
			},
		},
		{
			loggerConfig: []LoggerPatternConfig{
				{
					Pattern: "corecalib.*",
					Level:   "DEBUG",
				},
				{
					Pattern: "corecalib.bundle",
					Level:   "WARN",
				},
			},
			loggerNames: []string{
				"corecalib.bundle",
			},
			expectedMatches: map[string]string{
				"corecalib.bundle": "WARN",
			},
		},
		{
			loggerConfig: []LoggerPatternConfig{
				{
					Pattern: "corecalib.*.solver",
					Level:   "WARN",
				},
			},
			loggerNames: []string{
				"corecalib.bundle.solver",
				"corecalib.bundle.pair_manager.solver",
			},
			expectedMatches: map[string]string{
				"corecalib.bundle.solver":              "WARN",
				"corecalib.bundle.pair_manager.solver": "WARN",
			},
		},
		{
			loggerConfig: []LoggerPatternConfig{
				{
					Pattern: "a.b",
					Level:   "DEBUG",
				},
			},
			loggerNames: []string{
				"a.b.c",
			},
			expectedMatches: map[string]string{
				"a.b.c": "INFO",
			},
		},
	}

	for _, tc := range tests {
		testRegistry := createTestRegistry(tc.loggerNames)

		testRegistry.Update(tc.loggerConfig, NewLogger("error-logger"))
		test.That(t, verifySetLevels(testRegistry, tc.expectedMatches), test.ShouldBeTrue)
	}
}
