// Package test provides testify mocks for the module's interfaces.
package test

import (
	"github.com/stretchr/testify/mock"

	"github.com/Raikerian/go-voicerelay/pkg/voice/capture"
)

// MockCaptureService is a mock type for the capture.Service type.
type MockCaptureService struct {
	mock.Mock
}

var _ capture.Service = (*MockCaptureService)(nil)

// NewMockCaptureService creates a new instance of MockCaptureService. It also
// registers a cleanup function to assert the mock's expectations.
func NewMockCaptureService(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockCaptureService {
	m := &MockCaptureService{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}

// StartRecording provides a mock function.
func (m *MockCaptureService) StartRecording() error {
	ret := m.Called()
	return ret.Error(0)
}

// StopRecording provides a mock function.
func (m *MockCaptureService) StopRecording() error {
	ret := m.Called()
	return ret.Error(0)
}

// AvailableBytes provides a mock function.
func (m *MockCaptureService) AvailableBytes() (uint32, error) {
	ret := m.Called()
	return ret.Get(0).(uint32), ret.Error(1)
}

// FetchBytes provides a mock function.
func (m *MockCaptureService) FetchBytes(dst []byte) (int, error) {
	ret := m.Called(dst)
	return ret.Int(0), ret.Error(1)
}

// Decode provides a mock function.
func (m *MockCaptureService) Decode(compressed, dst []byte, sampleRate int) (int, error) {
	ret := m.Called(compressed, dst, sampleRate)
	return ret.Int(0), ret.Error(1)
}

// FillArg returns a Run function that copies data into the byte slice
// argument at index i, for mocking FetchBytes and Decode output.
func FillArg(i int, data []byte) func(mock.Arguments) {
	return func(args mock.Arguments) {
		copy(args.Get(i).([]byte), data)
	}
}
