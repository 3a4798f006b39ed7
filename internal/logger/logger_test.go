package logger

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, parseLevel("DEBUG"))
	assert.Equal(t, logrus.WarnLevel, parseLevel("warning"))
	assert.Equal(t, logrus.ErrorLevel, parseLevel("error"))
	assert.Equal(t, logrus.InfoLevel, parseLevel("nonsense"))
}

func TestNewFormatterByEnv(t *testing.T) {
	_, isJSON := New("info", "production").Formatter.(*logrus.JSONFormatter)
	assert.True(t, isJSON)

	_, isText := New("info", "development").Formatter.(*logrus.TextFormatter)
	assert.True(t, isText)
}

func TestPaymentFields(t *testing.T) {
	entry := Payment(Discard(), "p1", "123")
	assert.Equal(t, "p1", entry.Data["chair_id"])
	assert.Equal(t, "123", entry.Data["payment_id"])
}
