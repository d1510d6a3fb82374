// Package mocks provides mock implementations for testing the prediction job system.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for the ports in internal/core.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	store := mocks.NewMockJobStore(ctrl)
//	store.EXPECT().Create(gomock.Any()).Return("job-1", nil)
package mocks

// Generate mock for JobStore interface from internal/core package.
// This creates MockJobStore with methods: Create, Complete, Fail, Get
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=job_store_mock.go github.com/rohittupe/prediction-service/internal/core JobStore

// Generate mock for JobReaper interface from internal/core package.
// This creates MockJobReaper with methods: FailStalePending, DeleteExpired
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=job_reaper_mock.go github.com/rohittupe/prediction-service/internal/core JobReaper

// Generate mock for Predictor interface from internal/core package.
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=predictor_mock.go github.com/rohittupe/prediction-service/internal/core Predictor

// Generate mock for JobScheduler interface from internal/core package.
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=job_scheduler_mock.go github.com/rohittupe/prediction-service/internal/core JobScheduler
