package keyfence

import (
	fence "github.com/KanavDutta/keyfence/pkg/keyfence"
)

// Re-export main types for convenience
type (
	Fence  = fence.Fence
	Option = fence.Option
)

// New builds an in-process Fence; see package pkg/keyfence for the options.
var New = fence.New

var (
	WithDefaultLimit  = fence.WithDefaultLimit
	WithConfigFile    = fence.WithConfigFile
	WithFailurePolicy = fence.WithFailurePolicy
	WithBucketStore   = fence.WithBucketStore
	WithRepository    = fence.WithRepository
	WithAnalytics     = fence.WithAnalytics
	WithLogger        = fence.WithLogger
)
