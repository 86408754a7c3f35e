package inspect

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Simonization/webservTester/internal/model"
)

func TestUnavailableInspector(t *testing.T) {
	u := unavailable{reason: "no procfs"}

	strategy, err := u.ClassifyIOStrategy(context.Background(), 1, time.Millisecond)
	assert.Equal(t, model.IOStrategyUnknown, strategy)
	assert.ErrorAs(t, err, &model.InspectionUnavailableError{})

	_, err = u.SampleMemory(1)
	assert.ErrorAs(t, err, &model.InspectionUnavailableError{})

	_, err = u.CountEstablishedConnections(8888)
	assert.ErrorAs(t, err, &model.InspectionUnavailableError{})
	assert.Contains(t, err.Error(), "no procfs")
}
