package scheduler

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"fantasy-exchange/internal/model"
)

func TestJobStatusFailsOnFatalError(t *testing.T) {
	assert.Equal(t, model.JobFailed, jobStatus(0, 0, errors.New("boom")))
}

func TestJobStatusDegradesOnPartialErrors(t *testing.T) {
	assert.Equal(t, model.JobDegraded, jobStatus(5, 2, nil))
}

func TestJobStatusSucceedsWithNoErrors(t *testing.T) {
	assert.Equal(t, model.JobSuccess, jobStatus(5, 0, nil))
}

func TestJobStatusFatalErrorOutranksPartialProgress(t *testing.T) {
	assert.Equal(t, model.JobFailed, jobStatus(3, 1, errors.New("boom")))
}
