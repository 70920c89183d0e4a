package scheduler_test

import (
	"net/url"
	"testing"

	"github.com/rohmanhakim/docs-crawler/internal/normalize"
	"github.com/rohmanhakim/docs-crawler/internal/storage"
	"github.com/rohmanhakim/docs-crawler/pkg/failure"
	"github.com/stretchr/testify/mock"
)

type storageMock struct {
	mock.Mock
}

func (s *storageMock) Begin(outputDir string) failure.ClassifiedError {
	args := s.Called(outputDir)
	if args.Get(0) != nil {
		return args.Get(0).(failure.ClassifiedError)
	}
	return nil
}

func (s *storageMock) Save(
	sourceURL url.URL,
	normalizedDoc normalize.NormalizedMarkdownDoc,
) (storage.WriteResult, failure.ClassifiedError) {
	args := s.Called(sourceURL, normalizedDoc)
	res := args.Get(0).(storage.WriteResult)
	var err failure.ClassifiedError
	if args.Get(1) != nil {
		err = args.Get(1).(failure.ClassifiedError)
	}
	return res, err
}

func (s *storageMock) Merge(outputDir string, mergedFilename string) (string, failure.ClassifiedError) {
	args := s.Called(outputDir, mergedFilename)
	var err failure.ClassifiedError
	if args.Get(1) != nil {
		err = args.Get(1).(failure.ClassifiedError)
	}
	return args.String(0), err
}

func newStorageMockForTest(t *testing.T) *storageMock {
	t.Helper()
	m := new(storageMock)
	m.On("Begin", mock.Anything).Return(nil)
	m.On("Merge", mock.Anything, mock.Anything).Return("", nil)
	return m
}
