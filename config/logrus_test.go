package config

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestLevelFromEnv(t *testing.T) {
	assert.Equal(t, logrus.ErrorLevel, levelFromEnv(""))
	assert.Equal(t, logrus.ErrorLevel, levelFromEnv("loud"))
	assert.Equal(t, logrus.InfoLevel, levelFromEnv("info"))
	assert.Equal(t, logrus.DebugLevel, levelFromEnv(" debug "))
}
