// Hand-authored in the shape mockgen would generate for Backend
// (mockgen itself isn't run in this exercise); kept next to the
// interface it mocks rather than under a separate mocks/ package since
// it backs exactly one test file.
package oci

import (
	context "context"
	io "io"
	reflect "reflect"

	gomock "github.com/golang/mock/gomock"
	v1 "github.com/google/go-containerregistry/pkg/v1"
)

type MockBackend struct {
	ctrl     *gomock.Controller
	recorder *MockBackendMockRecorder
}

type MockBackendMockRecorder struct {
	mock *MockBackend
}

func NewMockBackend(ctrl *gomock.Controller) *MockBackend {
	mock := &MockBackend{ctrl: ctrl}
	mock.recorder = &MockBackendMockRecorder{mock}
	return mock
}

func (m *MockBackend) EXPECT() *MockBackendMockRecorder {
	return m.recorder
}

func (m *MockBackend) StartUpload(ctx context.Context, project string) (*UploadSession, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "StartUpload", ctx, project)
	ret0, _ := ret[0].(*UploadSession)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

func (mr *MockBackendMockRecorder) StartUpload(ctx, project interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "StartUpload", reflect.TypeOf((*MockBackend)(nil).StartUpload), ctx, project)
}

func (m *MockBackend) AppendUpload(ctx context.Context, project, sessionID string, chunk io.Reader) (*UploadSession, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "AppendUpload", ctx, project, sessionID, chunk)
	ret0, _ := ret[0].(*UploadSession)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

func (mr *MockBackendMockRecorder) AppendUpload(ctx, project, sessionID, chunk interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "AppendUpload", reflect.TypeOf((*MockBackend)(nil).AppendUpload), ctx, project, sessionID, chunk)
}

func (m *MockBackend) CompleteUpload(ctx context.Context, project, sessionID string, expected v1.Hash) (v1.Hash, int64, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "CompleteUpload", ctx, project, sessionID, expected)
	ret0, _ := ret[0].(v1.Hash)
	ret1, _ := ret[1].(int64)
	ret2, _ := ret[2].(error)
	return ret0, ret1, ret2
}

func (mr *MockBackendMockRecorder) CompleteUpload(ctx, project, sessionID, expected interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "CompleteUpload", reflect.TypeOf((*MockBackend)(nil).CompleteUpload), ctx, project, sessionID, expected)
}

func (m *MockBackend) CancelUpload(ctx context.Context, project, sessionID string) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "CancelUpload", ctx, project, sessionID)
	ret0, _ := ret[0].(error)
	return ret0
}

func (mr *MockBackendMockRecorder) CancelUpload(ctx, project, sessionID interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "CancelUpload", reflect.TypeOf((*MockBackend)(nil).CancelUpload), ctx, project, sessionID)
}

func (m *MockBackend) UploadStatus(ctx context.Context, project, sessionID string) (*UploadSession, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "UploadStatus", ctx, project, sessionID)
	ret0, _ := ret[0].(*UploadSession)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

func (mr *MockBackendMockRecorder) UploadStatus(ctx, project, sessionID interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "UploadStatus", reflect.TypeOf((*MockBackend)(nil).UploadStatus), ctx, project, sessionID)
}

func (m *MockBackend) BlobExists(ctx context.Context, project string, digest v1.Hash) (bool, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "BlobExists", ctx, project, digest)
	ret0, _ := ret[0].(bool)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

func (mr *MockBackendMockRecorder) BlobExists(ctx, project, digest interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "BlobExists", reflect.TypeOf((*MockBackend)(nil).BlobExists), ctx, project, digest)
}

func (m *MockBackend) GetBlob(ctx context.Context, project string, digest v1.Hash) (io.ReadCloser, int64, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "GetBlob", ctx, project, digest)
	ret0, _ := ret[0].(io.ReadCloser)
	ret1, _ := ret[1].(int64)
	ret2, _ := ret[2].(error)
	return ret0, ret1, ret2
}

func (mr *MockBackendMockRecorder) GetBlob(ctx, project, digest interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "GetBlob", reflect.TypeOf((*MockBackend)(nil).GetBlob), ctx, project, digest)
}

func (m *MockBackend) DeleteBlob(ctx context.Context, project string, digest v1.Hash) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "DeleteBlob", ctx, project, digest)
	ret0, _ := ret[0].(error)
	return ret0
}

func (mr *MockBackendMockRecorder) DeleteBlob(ctx, project, digest interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "DeleteBlob", reflect.TypeOf((*MockBackend)(nil).DeleteBlob), ctx, project, digest)
}

func (m *MockBackend) MountBlob(ctx context.Context, fromProject, toProject string, digest v1.Hash) (bool, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "MountBlob", ctx, fromProject, toProject, digest)
	ret0, _ := ret[0].(bool)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

func (mr *MockBackendMockRecorder) MountBlob(ctx, fromProject, toProject, digest interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "MountBlob", reflect.TypeOf((*MockBackend)(nil).MountBlob), ctx, fromProject, toProject, digest)
}

func (m *MockBackend) PutManifest(ctx context.Context, project, ref string, rec ManifestRecord) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "PutManifest", ctx, project, ref, rec)
	ret0, _ := ret[0].(error)
	return ret0
}

func (mr *MockBackendMockRecorder) PutManifest(ctx, project, ref, rec interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "PutManifest", reflect.TypeOf((*MockBackend)(nil).PutManifest), ctx, project, ref, rec)
}

func (m *MockBackend) GetManifestByDigest(ctx context.Context, project string, digest v1.Hash) (*ManifestRecord, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "GetManifestByDigest", ctx, project, digest)
	ret0, _ := ret[0].(*ManifestRecord)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

func (mr *MockBackendMockRecorder) GetManifestByDigest(ctx, project, digest interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "GetManifestByDigest", reflect.TypeOf((*MockBackend)(nil).GetManifestByDigest), ctx, project, digest)
}

func (m *MockBackend) ResolveTag(ctx context.Context, project, tag string) (v1.Hash, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "ResolveTag", ctx, project, tag)
	ret0, _ := ret[0].(v1.Hash)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

func (mr *MockBackendMockRecorder) ResolveTag(ctx, project, tag interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "ResolveTag", reflect.TypeOf((*MockBackend)(nil).ResolveTag), ctx, project, tag)
}

func (m *MockBackend) ListTags(ctx context.Context, project string, n int, last string) ([]string, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "ListTags", ctx, project, n, last)
	ret0, _ := ret[0].([]string)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

func (mr *MockBackendMockRecorder) ListTags(ctx, project, n, last interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "ListTags", reflect.TypeOf((*MockBackend)(nil).ListTags), ctx, project, n, last)
}

func (m *MockBackend) PutReferrer(ctx context.Context, project string, subject v1.Hash, desc v1.Descriptor) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "PutReferrer", ctx, project, subject, desc)
	ret0, _ := ret[0].(error)
	return ret0
}

func (mr *MockBackendMockRecorder) PutReferrer(ctx, project, subject, desc interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "PutReferrer", reflect.TypeOf((*MockBackend)(nil).PutReferrer), ctx, project, subject, desc)
}

func (m *MockBackend) ListReferrers(ctx context.Context, project string, subject v1.Hash, artifactType string) ([]v1.Descriptor, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "ListReferrers", ctx, project, subject, artifactType)
	ret0, _ := ret[0].([]v1.Descriptor)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

func (mr *MockBackendMockRecorder) ListReferrers(ctx, project, subject, artifactType interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "ListReferrers", reflect.TypeOf((*MockBackend)(nil).ListReferrers), ctx, project, subject, artifactType)
}

var _ Backend = (*MockBackend)(nil)
